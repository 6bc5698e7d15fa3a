// Package storage keeps uploaded chat attachments on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("stored file not found")

// DiskStore saves each file under a random id in a single directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save copies r to a new file and returns its id and size. Partially written files are
// removed.
func (s *DiskStore) Save(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	size, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("write file: %w", err)
	}

	id := uuid.NewString()
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, id)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("store file: %w", err)
	}
	return id, size, nil
}

// Open returns the stored file. Ids that are not UUIDs are never resolved against the
// file system.
func (s *DiskStore) Open(id string) (io.ReadSeekCloser, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, parsed.String()))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Remove deletes a stored file; missing files are ignored.
func (s *DiskStore) Remove(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	err = os.Remove(filepath.Join(s.dir, parsed.String()))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
