package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileDestination writes exports into a local directory.
type FileDestination struct {
	dir string
}

// NewFileDestination creates a destination rooted at dir.
func NewFileDestination(dir string) *FileDestination {
	return &FileDestination{dir: dir}
}

// Write replaces dir/name with data. The file is written under a temporary
// name first so readers never see a partial export.
func (d *FileDestination) Write(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	path := filepath.Join(d.dir, filepath.Base(name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
