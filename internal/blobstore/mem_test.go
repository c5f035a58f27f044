package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_GetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Put(ctx, "a/b", []byte("hello")))
	obj, err := m.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), obj.Data)
	assert.NotEmpty(t, obj.ETag)
}

func TestMemStore_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	cond := Condition{IfAbsent: true}
	require.NoError(t, m.PutIf(ctx, "k", []byte("first"), cond))
	err := m.PutIf(ctx, "k", []byte("second"), cond)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	obj, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), obj.Data)
}

func TestMemStore_PutIfETag(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	require.NoError(t, m.Put(ctx, "k", []byte("v1")))
	obj, err := m.Get(ctx, "k")
	require.NoError(t, err)

	// Swap succeeds against the observed tag, then fails against the stale one.
	require.NoError(t, m.PutIf(ctx, "k", []byte("v2"), Condition{IfETag: obj.ETag}))
	err = m.PutIf(ctx, "k", []byte("v3"), Condition{IfETag: obj.ETag})
	require.ErrorIs(t, err, ErrPreconditionFailed)

	err = m.PutIf(ctx, "missing", []byte("x"), Condition{IfETag: obj.ETag})
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestMemStore_ListAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	require.NoError(t, m.Put(ctx, "repo/tree/a.txt", []byte("a")))
	require.NoError(t, m.Put(ctx, "repo/tree/sub/b.txt", []byte("b")))
	require.NoError(t, m.Put(ctx, "other/c.txt", []byte("c")))

	keys, err := m.List(ctx, "repo/tree/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"repo/tree/a.txt", "repo/tree/sub/b.txt"}, keys)

	require.NoError(t, m.DeletePrefix(ctx, "repo/"))
	keys, err = m.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other/c.txt"}, keys)

	// Deleting a missing key is not an error.
	require.NoError(t, m.Delete(ctx, "gone"))
}
