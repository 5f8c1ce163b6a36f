package vision

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lavishq/lavis/internal/logging"
)

// ColdStorage archives full-resolution screenshots on disk, addressed
// by image ID. Files fan out over a two-level prefix hierarchy
// (ab/cd/abcd….png) so no single directory grows unbounded. Writes go
// through a temp file and rename, leaving no partial files behind.
type ColdStorage struct {
	root string
}

// NewColdStorage opens (creating if needed) a cold store rooted at dir.
func NewColdStorage(dir string) (*ColdStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cold storage dir: %w", err)
	}
	return &ColdStorage{root: dir}, nil
}

// Put stores PNG data under imageID.
func (c *ColdStorage) Put(imageID string, data []byte) error {
	path, err := c.path(imageID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write image %s: %w", imageID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store image %s: %w", imageID, err)
	}
	return nil
}

// Get loads the PNG data for imageID.
func (c *ColdStorage) Get(imageID string) ([]byte, error) {
	path, err := c.path(imageID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image %s not in cold storage", imageID)
		}
		return nil, fmt.Errorf("read image %s: %w", imageID, err)
	}
	return data, nil
}

// Has reports whether imageID is stored.
func (c *ColdStorage) Has(imageID string) bool {
	path, err := c.path(imageID)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes imageID. Deleting an absent image is not an error.
func (c *ColdStorage) Delete(imageID string) error {
	path, err := c.path(imageID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete image %s: %w", imageID, err)
	}
	return nil
}

// Cleanup removes stored images older than maxAge and prunes empty
// shard directories. Returns the number of images removed.
func (c *ColdStorage) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var dirs []string

	err := filepath.WalkDir(c.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != c.root {
				dirs = append(dirs, path)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cold storage cleanup: %w", err)
	}

	// Deepest first so emptied parents can go too. Remove fails on
	// non-empty dirs, which is what we want.
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i])
	}

	if removed > 0 {
		logging.Infof("cold storage: removed %d images older than %s", removed, maxAge)
	}
	return removed, nil
}

// path maps an image ID onto its shard path. IDs come from uuids; the
// check rejects anything that could escape the root.
func (c *ColdStorage) path(imageID string) (string, error) {
	if len(imageID) < 4 || !validImageID(imageID) {
		return "", fmt.Errorf("invalid image ID %q", imageID)
	}
	return filepath.Join(c.root, imageID[0:2], imageID[2:4], imageID+".png"), nil
}

func validImageID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
