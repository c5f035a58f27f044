package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FSStore is a Store backed by a local directory, used for development and
// CLI runs without an object-store bucket. ETags are content hashes, so
// conditional writes behave like the S3 implementation. Writes are serialized
// within one process only; it is not a substitute for a real bucket when
// several machines share a repository.
type FSStore struct {
	mu   sync.Mutex
	base string
}

// NewFSStore creates a store rooted at base, creating the directory if
// needed.
func NewFSStore(base string) (*FSStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base}, nil
}

func (f *FSStore) path(key string) string {
	return filepath.Join(f.base, filepath.FromSlash(key))
}

func (f *FSStore) Get(_ context.Context, key string) (Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(key)
}

func (f *FSStore) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(key, data)
}

func (f *FSStore) PutIf(_ context.Context, key string, data []byte, cond Condition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.read(key)
	exists := err == nil
	if err != nil && err != ErrNotFound {
		return err
	}
	switch {
	case cond.IfAbsent:
		if exists {
			return ErrPreconditionFailed
		}
	case cond.IfETag != "":
		if !exists || cur.ETag != cond.IfETag {
			return ErrPreconditionFailed
		}
	}
	return f.write(key, data)
}

func (f *FSStore) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	err := filepath.WalkDir(f.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (f *FSStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FSStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := f.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := f.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (f *FSStore) read(key string) (Object, error) {
	data, err := os.ReadFile(f.path(key)) //nolint:gosec // keys are store-internal
	if err != nil {
		if os.IsNotExist(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, err
	}
	sum := sha256.Sum256(data)
	return Object{Data: data, ETag: hex.EncodeToString(sum[:])}, nil
}

func (f *FSStore) write(key string, data []byte) error {
	path := f.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // store content
}
