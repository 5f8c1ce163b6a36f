// Package defaults provides embedded default configuration files.
// These are copied to the Lavis data directory on first run.
//
// The data directory is ~/.lavis, overridable with LAVIS_DATA_DIR.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed dotlavis
var defaultFiles embed.FS

// DataDir returns the Lavis data directory (~/.lavis).
// Set LAVIS_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("LAVIS_DATA_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".lavis"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist
// and copies default files if they're missing. It also creates the
// runtime subdirectories the core writes into.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	for _, sub := range []string{"skills", "coldstore"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	if err := copyDefaults(dir, false); err != nil {
		return "", err
	}

	return dir, nil
}

// Reset replaces config files with the embedded defaults.
// The database and cold storage are preserved.
func Reset(dir string) error {
	return copyDefaults(dir, true)
}

// copyDefaults copies embedded default files to the data directory.
// If overwrite is true, existing files are replaced.
func copyDefaults(dir string, overwrite bool) error {
	return fs.WalkDir(defaultFiles, "dotlavis", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == "dotlavis" {
			return nil
		}

		// embed.FS always uses forward slashes; TrimPrefix instead of
		// filepath.Rel keeps this correct on Windows.
		relPath := strings.TrimPrefix(path, "dotlavis/")
		destPath := filepath.Join(dir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}

		if !overwrite {
			if _, err := os.Stat(destPath); err == nil {
				return nil
			}
		}

		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}

		if err := os.WriteFile(destPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}

		return nil
	})
}
