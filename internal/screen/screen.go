package screen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"
)

// Frame is a single captured screenshot, PNG-encoded, plus its pixel
// dimensions. Dimensions are needed to map normalized [0,1000] model
// coordinates back onto real pixels.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Perceiver captures the current screen state. Implementations must be
// safe for concurrent use.
type Perceiver interface {
	Capture(ctx context.Context) (*Frame, error)
}

// DisplayPerceiver captures physical displays via the OS screenshot APIs.
// Display -1 captures the union rectangle of all active displays.
type DisplayPerceiver struct {
	Display     int
	GridOverlay bool
}

// NewDisplayPerceiver returns a perceiver for the given display
// (0 = primary, -1 = all displays combined).
func NewDisplayPerceiver(display int, gridOverlay bool) *DisplayPerceiver {
	return &DisplayPerceiver{Display: display, GridOverlay: gridOverlay}
}

func (p *DisplayPerceiver) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	numDisplays := screenshot.NumActiveDisplays()
	if numDisplays == 0 {
		return nil, fmt.Errorf("no active displays found")
	}

	display := p.Display
	if display < -1 || display >= numDisplays {
		return nil, fmt.Errorf("invalid display %d: available displays 0-%d (or -1 for all)", display, numDisplays-1)
	}

	var bounds image.Rectangle
	if display == -1 {
		bounds = screenshot.GetDisplayBounds(0)
		for i := 1; i < numDisplays; i++ {
			bounds = bounds.Union(screenshot.GetDisplayBounds(i))
		}
	} else {
		bounds = screenshot.GetDisplayBounds(display)
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", display, err)
	}

	var out image.Image = img
	if p.GridOverlay {
		out = DrawGrid(img)
	}

	data, err := EncodePNG(out)
	if err != nil {
		return nil, err
	}
	b := out.Bounds()
	return &Frame{Data: data, Width: b.Dx(), Height: b.Dy()}, nil
}

// PrimaryBounds returns the pixel bounds of the primary display, or the
// union of all displays when display is -1. Used to map normalized
// coordinates onto real pixels without taking a screenshot.
func PrimaryBounds(display int) (image.Rectangle, error) {
	numDisplays := screenshot.NumActiveDisplays()
	if numDisplays == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	if display == -1 {
		bounds := screenshot.GetDisplayBounds(0)
		for i := 1; i < numDisplays; i++ {
			bounds = bounds.Union(screenshot.GetDisplayBounds(i))
		}
		return bounds, nil
	}
	if display < 0 || display >= numDisplays {
		return image.Rectangle{}, fmt.Errorf("invalid display %d", display)
	}
	return screenshot.GetDisplayBounds(display), nil
}

// EncodePNG renders an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
