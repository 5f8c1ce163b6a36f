package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/lavishq/lavis/internal/agent/turn"
	"github.com/lavishq/lavis/internal/screen"
)

// scriptedPerceiver replays a fixed sequence of frames, repeating the
// last one once the script runs out.
type scriptedPerceiver struct {
	frames []*screen.Frame
	calls  int
}

func (p *scriptedPerceiver) Capture(ctx context.Context) (*screen.Frame, error) {
	if len(p.frames) == 0 {
		return nil, errors.New("no frames scripted")
	}
	i := p.calls
	if i >= len(p.frames) {
		i = len(p.frames) - 1
	}
	p.calls++
	return p.frames[i], nil
}

type failingPerceiver struct{}

func (failingPerceiver) Capture(ctx context.Context) (*screen.Frame, error) {
	return nil, errors.New("display asleep")
}

// gradientFrame renders a horizontal gradient. Ascending and descending
// gradients hash to opposite bit patterns, so they are maximally far
// apart; two frames with the same direction hash identically.
func gradientFrame(t *testing.T, descending bool) *screen.Frame {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(x * 4)
			if descending {
				v = uint8(255 - x*4)
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return &screen.Frame{Data: buf.Bytes(), Width: 64, Height: 64}
}

func newTestCapturer(t *testing.T, frames ...*screen.Frame) *Capturer {
	t.Helper()
	cold, err := NewColdStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewCapturer(&scriptedPerceiver{frames: frames}, cold, -1)
}

func TestCaptureStoresFreshFrame(t *testing.T) {
	frame := gradientFrame(t, false)
	c := newTestCapturer(t, frame)

	tc := turn.New()
	tc.Begin()

	cap1, err := c.Capture(context.Background(), tc, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cap1.Reused {
		t.Error("first capture should not be reused")
	}
	if cap1.ImageID == "" {
		t.Fatal("capture should carry an image ID")
	}
	if !c.cold.Has(cap1.ImageID) {
		t.Error("fresh frame should land in cold storage")
	}
	if imgs := tc.Images(); len(imgs) != 1 || imgs[0] != cap1.ImageID {
		t.Errorf("turn images = %v, want [%s]", imgs, cap1.ImageID)
	}
}

func TestCaptureReusesUnchangedFrame(t *testing.T) {
	frame := gradientFrame(t, false)
	c := newTestCapturer(t, frame)

	tc := turn.New()
	tc.Begin()

	cap1, err := c.Capture(context.Background(), tc, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	cap2, err := c.Capture(context.Background(), tc, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !cap2.Reused {
		t.Error("unchanged frame should be reused")
	}
	if cap2.ImageID != cap1.ImageID {
		t.Errorf("reused ID = %s, want %s", cap2.ImageID, cap1.ImageID)
	}
	// Reuse must not re-record the image on the turn.
	if imgs := tc.Images(); len(imgs) != 1 {
		t.Errorf("turn images = %v, want exactly one", imgs)
	}
}

func TestCaptureStoresChangedFrame(t *testing.T) {
	c := newTestCapturer(t, gradientFrame(t, false), gradientFrame(t, true))

	cap1, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	cap2, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cap2.Reused {
		t.Error("changed frame should not be reused")
	}
	if cap2.ImageID == cap1.ImageID {
		t.Error("changed frame should get its own image ID")
	}
	if !c.cold.Has(cap1.ImageID) || !c.cold.Has(cap2.ImageID) {
		t.Error("both frames should be in cold storage")
	}
}

func TestCaptureForceStoresDuplicate(t *testing.T) {
	frame := gradientFrame(t, false)
	c := newTestCapturer(t, frame)

	cap1, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	cap2, err := c.Capture(context.Background(), nil, CaptureOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if cap2.Reused {
		t.Error("forced capture should never be reused")
	}
	if cap2.ImageID == cap1.ImageID {
		t.Error("forced capture should store under a new ID")
	}
}

func TestCaptureSkipDedup(t *testing.T) {
	frame := gradientFrame(t, false)
	c := newTestCapturer(t, frame)

	if _, err := c.Capture(context.Background(), nil, CaptureOptions{}); err != nil {
		t.Fatal(err)
	}
	cap2, err := c.Capture(context.Background(), nil, CaptureOptions{SkipDedup: true})
	if err != nil {
		t.Fatal(err)
	}
	if cap2.Reused {
		t.Error("SkipDedup should bypass the similarity check")
	}
}

func TestCaptureResetForgetsLastFrame(t *testing.T) {
	frame := gradientFrame(t, false)
	c := newTestCapturer(t, frame)

	cap1, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	c.Reset()
	cap2, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cap2.Reused || cap2.ImageID == cap1.ImageID {
		t.Error("capture after Reset should store fresh")
	}
}

func TestCapturePerceiverError(t *testing.T) {
	cold, err := NewColdStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewCapturer(failingPerceiver{}, cold, -1)
	if _, err := c.Capture(context.Background(), nil, CaptureOptions{}); err == nil {
		t.Error("perceiver failure should propagate")
	}
}

func TestCaptureThresholdZeroStoresEverything(t *testing.T) {
	frame := gradientFrame(t, false)
	cold, err := NewColdStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewCapturer(&scriptedPerceiver{frames: []*screen.Frame{frame}}, cold, 0)

	cap1, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	cap2, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cap2.Reused {
		t.Error("threshold 0 must treat every capture as new")
	}
	if cap2.ImageID == cap1.ImageID {
		t.Error("threshold 0 must store identical frames under distinct IDs")
	}
}

func TestCaptureThresholdMaxReusesEverything(t *testing.T) {
	// Opposite gradients hash maximally far apart; threshold 64 still
	// collapses them.
	cold, err := NewColdStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	frames := []*screen.Frame{gradientFrame(t, false), gradientFrame(t, true)}
	c := NewCapturer(&scriptedPerceiver{frames: frames}, cold, 64)

	cap1, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	cap2, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !cap2.Reused || cap2.ImageID != cap1.ImageID {
		t.Error("threshold 64 must reuse every capture after the first")
	}
}

func TestCaptureUndecodableFrame(t *testing.T) {
	junk := &screen.Frame{Data: []byte("not a png"), Width: 1, Height: 1}
	c := newTestCapturer(t, junk)

	// Hashing fails but the frame is still stored; with no dedup state
	// the next junk frame stores fresh too.
	cap1, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cap1.Reused || !c.cold.Has(cap1.ImageID) {
		t.Error("undecodable frame should still be stored fresh")
	}
	cap2, err := c.Capture(context.Background(), nil, CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cap2.Reused {
		t.Error("dedup must stay off while frames cannot be hashed")
	}
}

func TestCapturerDefaultThreshold(t *testing.T) {
	c := newTestCapturer(t, gradientFrame(t, false))
	if c.Threshold() != DefaultDedupThreshold {
		t.Errorf("threshold = %d, want %d", c.Threshold(), DefaultDedupThreshold)
	}
}
