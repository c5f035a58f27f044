package worktree

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbkclanna/worksync/internal/blobstore"
	"github.com/fbkclanna/worksync/internal/git"
	"github.com/fbkclanna/worksync/internal/retry"
	"github.com/fbkclanna/worksync/internal/testutil"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestEnsureInitialized_bootstrapsFromOrigin(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	store := blobstore.NewMemStore()
	h := workspace.Handle{Tenant: "acme", Repo: "app", Origin: origin, Branch: "main"}
	m := NewManager(store, testPolicy(), t.TempDir(), testLogger())

	require.NoError(t, m.EnsureInitialized(ctx, h))
	assert.True(t, git.IsInitialized(m.Dir(h)))

	// The clone seeded the blob prefix.
	keys, err := store.List(ctx, h.TreePrefix())
	require.NoError(t, err)
	assert.NotEmpty(t, keys)

	// Idempotent.
	require.NoError(t, m.EnsureInitialized(ctx, h))
}

func TestEnsureInitialized_hydratesFromStore(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	store := blobstore.NewMemStore()
	h := workspace.Handle{Tenant: "acme", Repo: "app", Origin: origin, Branch: "main"}

	// Worker 1 bootstraps and seeds the store.
	m1 := NewManager(store, testPolicy(), t.TempDir(), testLogger())
	require.NoError(t, m1.EnsureInitialized(ctx, h))

	// Worker 2 has no local tree and hydrates from the store, not the origin.
	detached := h
	detached.Origin = "" // would fail if it tried to clone
	m2 := NewManager(store, testPolicy(), t.TempDir(), testLogger())
	require.NoError(t, m2.EnsureInitialized(ctx, detached))
	assert.True(t, git.IsInitialized(m2.Dir(h)))

	data, err := os.ReadFile(filepath.Join(m2.Dir(h), "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# test\n", string(data))
}

func TestSyncUpDown_roundTripWithDeletions(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	store := blobstore.NewMemStore()
	h := workspace.Handle{Tenant: "acme", Repo: "app", Origin: origin, Branch: "main"}
	m1 := NewManager(store, testPolicy(), t.TempDir(), testLogger())
	require.NoError(t, m1.EnsureInitialized(ctx, h))

	// Add one file, remove another, sync up.
	dir1 := m1.Dir(h)
	require.NoError(t, os.WriteFile(filepath.Join(dir1, "new.txt"), []byte("fresh\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir1, "README.md")))
	require.NoError(t, m1.SyncUp(ctx, h))

	// A second worker syncing down sees the same tree.
	m2 := NewManager(store, testPolicy(), t.TempDir(), testLogger())
	detached := h
	detached.Origin = ""
	require.NoError(t, m2.EnsureInitialized(ctx, detached))

	dir2 := m2.Dir(h)
	data, err := os.ReadFile(filepath.Join(dir2, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", string(data))
	_, err = os.Stat(filepath.Join(dir2, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestSyncDown_replacesReadOnlyFiles(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	store := blobstore.NewMemStore()
	h := workspace.Handle{Tenant: "acme", Repo: "app", Origin: origin, Branch: "main"}
	m := NewManager(store, testPolicy(), t.TempDir(), testLogger())
	require.NoError(t, m.EnsureInitialized(ctx, h))

	// Git stores loose objects as read-only files; the store copy must still
	// win over them on sync-down.
	dir := m.Dir(h)
	locked := filepath.Join(dir, "locked.txt")
	require.NoError(t, os.WriteFile(locked, []byte("old\n"), 0o444))
	require.NoError(t, store.Put(ctx, h.TreePrefix()+"locked.txt", []byte("new\n")))

	require.NoError(t, m.SyncDown(ctx, h))

	data, err := os.ReadFile(locked)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
	info, err := os.Stat(locked)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o200, "destination is rewritten writable")
}

func TestSyncDown_overwritesLocalEdits(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	store := blobstore.NewMemStore()
	h := workspace.Handle{Tenant: "acme", Repo: "app", Origin: origin, Branch: "main"}
	m := NewManager(store, testPolicy(), t.TempDir(), testLogger())
	require.NoError(t, m.EnsureInitialized(ctx, h))

	dir := m.Dir(h)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("scribbled\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("temp\n"), 0o644))

	require.NoError(t, m.SyncDown(ctx, h))

	data, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# test\n", string(data))
	_, err = os.Stat(filepath.Join(dir, "scratch.txt"))
	assert.True(t, os.IsNotExist(err), "files absent remotely are pruned")
}
