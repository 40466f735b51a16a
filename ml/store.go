package ml

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ModelStore persists models under a string key.
type ModelStore interface {
	Store(ctx context.Context, model Classifier, key string) error
	Retrieve(ctx context.Context, key string) (Classifier, error)
}

// FileStore keeps artifacts on the local filesystem. Keys are paths,
// resolved against Dir when they are relative and Dir is set.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(key string) string {
	if s.Dir == "" || filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.Dir, key)
}

// Store writes the artifact to a temp file in the target directory and
// renames it into place, so readers never observe a partial file.
func (s *FileStore) Store(ctx context.Context, model Classifier, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeArtifact(model)
	if err != nil {
		return err
	}
	path := s.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrIO, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename into %s: %v", ErrIO, path, err)
	}
	return nil
}

func (s *FileStore) Retrieve(ctx context.Context, key string) (Classifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}
	model, _, err := DecodeArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

// SaveModel writes model to path. An existing file is replaced.
func SaveModel(model Classifier, path string) error {
	return NewFileStore("").Store(context.Background(), model, path)
}

// LoadModel reads the model stored at path.
func LoadModel(path string) (Classifier, error) {
	return NewFileStore("").Retrieve(context.Background(), path)
}
