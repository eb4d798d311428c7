// Package blob stores uploaded file contents on an afero filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is returned by Get for an unknown location.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key to bytes store. Locations returned by Put are relative
// to the store root and are what callers persist.
type Store struct {
	fs afero.Fs
}

// NewStore wraps an existing filesystem, typically afero.NewMemMapFs in tests.
func NewStore(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// NewOsStore creates a store rooted at dir on the local disk.
func NewOsStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return NewStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// Put writes data under "<id>_<name>" and returns its location. Existing
// blobs are never overwritten.
func (s *Store) Put(ctx context.Context, id, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	location := id + "_" + name
	if err := checkLocation(location); err != nil {
		return "", err
	}

	f, err := s.fs.OpenFile(location, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create blob '%s': %w", location, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(location)
		return "", fmt.Errorf("failed to write blob '%s': %w", location, err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(location)
		return "", fmt.Errorf("failed to close blob '%s': %w", location, err)
	}

	return location, nil
}

// Get reads the blob stored at location.
func (s *Store) Get(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkLocation(location); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("failed to read blob '%s': %w", location, err)
	}
	return data, nil
}

// Exists reports whether a blob is stored at location.
func (s *Store) Exists(ctx context.Context, location string) (bool, error) {
	if err := checkLocation(location); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, location)
}

// Delete removes the blob at location. Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, location string) error {
	if err := checkLocation(location); err != nil {
		return err
	}
	if err := s.fs.Remove(location); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob '%s': %w", location, err)
	}
	return nil
}

func checkLocation(location string) error {
	if location == "" {
		return fmt.Errorf("blob location is empty")
	}
	if strings.ContainsAny(location, `/\`) || path.Clean(location) != location || strings.Contains(location, "..") {
		return fmt.Errorf("blob location '%s' escapes the store root", location)
	}
	return nil
}
