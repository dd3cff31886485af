// Package storage maps animal ids onto the on-disk asset layout and writes files atomically.
//
// A file that exists under one of the asset paths is always complete: every write goes to a
// temporary file in the same directory and is renamed into place only after it was synced.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// DefaultDir is the asset directory relative to the working directory
	DefaultDir = "images"

	imageExt     = ".jpg"
	thumbnailExt = "_thumb.png"
)

// Store resolves asset paths for animal ids
type Store struct {
	dir string
}

// New creates the asset directory if needed and returns a Store rooted at it
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the asset directory
func (s *Store) Dir() string {
	return s.dir
}

// ImagePath returns images/{id}.jpg
func (s *Store) ImagePath(id string) string {
	return filepath.Join(s.dir, id+imageExt)
}

// ThumbnailPath returns images/{id}_thumb.png
func (s *Store) ThumbnailPath(id string) string {
	return filepath.Join(s.dir, id+thumbnailExt)
}

// HasImage reports whether the downloaded photo for id is present
func (s *Store) HasImage(id string) (bool, error) {
	return Exists(s.ImagePath(id))
}

// HasThumbnail reports whether the thumbnail for id is present
func (s *Store) HasThumbnail(id string) (bool, error) {
	return Exists(s.ThumbnailPath(id))
}

// Exists reports whether path is a regular file
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%s is not a regular file", path)
	}
	return true, nil
}

// WriteAtomic streams write's output into a temp file next to path, then renames it into place.
// On any error the temp file is removed and path is left untouched.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// CreateTemp uses 0600
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	success = true
	return nil
}
