package vision

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lavishq/lavis/internal/agent/turn"
	"github.com/lavishq/lavis/internal/imagehash"
	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/screen"
)

// DefaultDedupThreshold is the Hamming distance under which two
// consecutive screenshots count as the same view.
const DefaultDedupThreshold = 10

// Capturer layers perceptual dedup over a Perceiver. Consecutive
// captures whose dHash distance stays within the threshold collapse
// onto the previously stored image, so an unchanged screen does not
// flood the conversation or cold storage with near-identical frames.
type Capturer struct {
	perceiver screen.Perceiver
	cold      *ColdStorage
	threshold int

	mu        sync.Mutex
	hasLast   bool
	lastHash  uint64
	lastID    string
	lastFrame *screen.Frame
}

// CaptureOptions tune a single capture.
type CaptureOptions struct {
	// Force stores a fresh image even when the screen is unchanged.
	Force bool
	// SkipDedup bypasses the similarity check entirely.
	SkipDedup bool
}

// Capture is the outcome of one capture request. Reused marks a frame
// that was collapsed onto an earlier identical view; ImageID then
// names the earlier image.
type Capture struct {
	ImageID string
	Frame   *screen.Frame
	Reused  bool
}

// NewCapturer builds a deduplicating capturer. The threshold spans
// 0..64: at 0 every capture is stored as new, at 64 everything after
// the first capture is a reuse. A negative threshold selects the
// default.
func NewCapturer(p screen.Perceiver, cold *ColdStorage, threshold int) *Capturer {
	if threshold < 0 {
		threshold = DefaultDedupThreshold
	}
	if threshold > 64 {
		threshold = 64
	}
	return &Capturer{perceiver: p, cold: cold, threshold: threshold}
}

// Capture grabs the screen, dedups it against the previous capture,
// and stores fresh frames in cold storage. Fresh stores are recorded
// on the open turn; reused captures are not re-recorded.
func (c *Capturer) Capture(ctx context.Context, tc *turn.Context, opts CaptureOptions) (*Capture, error) {
	frame, err := c.perceiver.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}

	hash, hashErr := imagehash.DHashBytes(frame.Data)
	if hashErr != nil {
		// Undecodable frame data: store it anyway, just without dedup.
		logging.Warnf("screenshot hash failed, dedup disabled for this frame: %v", hashErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if hashErr == nil && c.threshold > 0 && !opts.Force && !opts.SkipDedup && c.hasLast {
		if dist := imagehash.Distance(hash, c.lastHash); dist <= c.threshold {
			logging.Debugf("screenshot unchanged (distance %d <= %d), reusing %s", dist, c.threshold, c.lastID)
			return &Capture{ImageID: c.lastID, Frame: c.lastFrame, Reused: true}, nil
		}
	}

	id := uuid.NewString()
	if err := c.cold.Put(id, frame.Data); err != nil {
		return nil, err
	}
	if hashErr == nil {
		c.hasLast = true
		c.lastHash = hash
		c.lastID = id
		c.lastFrame = frame
	}
	if tc != nil {
		tc.RecordImage(id)
	}
	return &Capture{ImageID: id, Frame: frame}, nil
}

// Reset forgets the previous capture, forcing the next one to store.
func (c *Capturer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasLast = false
	c.lastHash = 0
	c.lastID = ""
	c.lastFrame = nil
}

// Threshold returns the configured Hamming distance cutoff.
func (c *Capturer) Threshold() int { return c.threshold }
