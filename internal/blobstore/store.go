package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("blobstore: key not found")

// ErrPreconditionFailed is returned when a conditional Put does not match
// the current state of the key.
var ErrPreconditionFailed = errors.New("blobstore: precondition failed")

// Object is a stored blob together with its version tag.
type Object struct {
	Data []byte
	ETag string
}

// Condition constrains a PutIf write. Exactly one field should be set.
type Condition struct {
	// IfAbsent requires that the key does not exist yet.
	IfAbsent bool
	// IfETag requires that the key's current ETag equals this value.
	IfETag string
}

// Store is a flat key/blob store with prefix listing and conditional writes.
type Store interface {
	// Get returns the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) (Object, error)
	// Put writes data at key unconditionally.
	Put(ctx context.Context, key string, data []byte) error
	// PutIf writes data at key only when cond holds, else ErrPreconditionFailed.
	PutIf(ctx context.Context, key string, data []byte, cond Condition) error
	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key under the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
