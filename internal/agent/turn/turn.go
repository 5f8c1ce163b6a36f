package turn

import (
	"sync"

	"github.com/google/uuid"
)

// Context tracks one reasoning turn: a unique turn ID, the position of
// each message recorded during the turn, and the IDs of images captured
// while the turn was active. It is passed explicitly through the
// perception and memory pipeline; nothing here is goroutine-local.
//
// Begin/End calls nest. Re-entrant Begins join the already-open turn
// (the outer turn wins) and only the matching outermost End closes it.
type Context struct {
	mu       sync.Mutex
	id       string
	depth    int
	seq      int
	imageIDs []string
}

// Summary describes a closed turn.
type Summary struct {
	ID       string
	ImageIDs []string
	Messages int
}

// New returns an idle turn context.
func New() *Context {
	return &Context{}
}

// Begin opens a turn, or joins the one already open. Returns the
// active turn ID.
func (c *Context) Begin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depth == 0 {
		c.id = uuid.NewString()
		c.seq = 0
		c.imageIDs = nil
	}
	c.depth++
	return c.id
}

// End closes one nesting level. The returned Summary is only valid
// when closed is true, which happens on the outermost End.
func (c *Context) End() (sum Summary, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depth == 0 {
		return Summary{}, false
	}
	c.depth--
	if c.depth > 0 {
		return Summary{}, false
	}
	sum = Summary{ID: c.id, ImageIDs: c.imageIDs, Messages: c.seq}
	c.id = ""
	c.seq = 0
	c.imageIDs = nil
	return sum, true
}

// Active reports whether a turn is open.
func (c *Context) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth > 0
}

// ID returns the current turn ID, or "" when idle.
func (c *Context) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// NextPosition stamps the next message recorded in this turn. Returns
// 0, 1, 2... within a turn, or -1 when no turn is open.
func (c *Context) NextPosition() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depth == 0 {
		return -1
	}
	pos := c.seq
	c.seq++
	return pos
}

// RecordImage associates a captured image with the open turn. Captures
// outside any turn are not tracked.
func (c *Context) RecordImage(imageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depth == 0 || imageID == "" {
		return
	}
	c.imageIDs = append(c.imageIDs, imageID)
}

// Images returns a copy of the image IDs captured so far in the open
// turn.
func (c *Context) Images() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.imageIDs))
	copy(out, c.imageIDs)
	return out
}
