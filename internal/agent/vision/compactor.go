package vision

import (
	"fmt"
	"regexp"

	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/store"
)

// Compactor trims a finished turn's visual payload. The first and
// last screenshots of the turn stay inline as anchors, frames whose
// observation text matches an exception pattern stay as evidence, and
// everything in between is flagged compressed so request builders
// substitute a placeholder. The pixels are already in cold storage;
// compaction only flips message flags.
type Compactor struct {
	store    *store.Store
	patterns []*regexp.Regexp
}

// NewCompactor compiles the exception patterns. Invalid patterns are
// skipped with a warning rather than failing startup.
func NewCompactor(st *store.Store, patterns []string) *Compactor {
	c := &Compactor{store: st}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logging.Warnf("invalid exception pattern %q: %v", p, err)
			continue
		}
		c.patterns = append(c.patterns, re)
	}
	return c
}

// CompactTurn archives the non-anchor, non-exception images of a turn
// and returns the archived image ids so in-memory holders can drop
// their payloads too. Turns with two or fewer images have nothing to
// archive.
func (c *Compactor) CompactTurn(turnID string) ([]string, error) {
	if turnID == "" {
		return nil, nil
	}
	msgs, err := c.store.GetTurnMessages(turnID)
	if err != nil {
		return nil, fmt.Errorf("load turn %s: %w", turnID, err)
	}

	var imageMsgs []store.Message
	for _, m := range msgs {
		if m.ImageID != "" && !m.IsCompressed {
			imageMsgs = append(imageMsgs, m)
		}
	}
	if len(imageMsgs) <= 2 {
		return nil, nil
	}

	var archived []string
	for i := 1; i < len(imageMsgs)-1; i++ {
		m := imageMsgs[i]
		if c.isException(m.Content) {
			logging.Debugf("keeping exception frame %s in turn %s", m.ImageID, turnID)
			continue
		}
		if err := c.store.MarkImageCompressed(turnID, m.ImageID); err != nil {
			return archived, err
		}
		archived = append(archived, m.ImageID)
	}

	if len(archived) > 0 {
		logging.Infof("compacted turn %s: archived %d of %d images", turnID, len(archived), len(imageMsgs))
	}
	return archived, nil
}

func (c *Compactor) isException(content string) bool {
	for _, re := range c.patterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}
