package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// MemStore is an in-memory Store with the same conditional-write semantics
// as the S3 implementation. It is safe for concurrent use and backs tests
// and local dry runs.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]Object
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]Object)}
}

func (m *MemStore) Get(_ context.Context, key string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	cp := make([]byte, len(obj.Data))
	copy(cp, obj.Data)
	return Object{Data: cp, ETag: obj.ETag}, nil
}

func (m *MemStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(key, data)
	return nil
}

func (m *MemStore) PutIf(_ context.Context, key string, data []byte, cond Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.objects[key]
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
	m.store(key, data)
	return nil
}

func (m *MemStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemStore) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

// store must be called with the mutex held.
func (m *MemStore) store(key string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	sum := sha256.Sum256(data)
	m.objects[key] = Object{Data: cp, ETag: hex.EncodeToString(sum[:])}
}
