package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBlobs writes one JSON file per key under a directory.
type FileBlobs struct {
	dir string
}

// NewFileBlobs creates dir when it does not exist.
func NewFileBlobs(dir string) (*FileBlobs, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBlobs{dir: dir}, nil
}

func (f *FileBlobs) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Get reads the file for key.
func (f *FileBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put replaces the file for key via a temp file and rename.
func (f *FileBlobs) Put(_ context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

// Healthy reports whether the directory is still there.
func (f *FileBlobs) Healthy(context.Context) bool {
	st, err := os.Stat(f.dir)
	return err == nil && st.IsDir()
}

// Close is a no-op.
func (f *FileBlobs) Close() error { return nil }
