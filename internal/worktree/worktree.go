// Package worktree keeps a handle's persistent local directory consistent
// with its blob-store prefix, in either direction. Transfers fan out over a
// bounded worker pool and every store call runs under the retry policy;
// callers decide when an overwrite of local state is safe.
package worktree

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fbkclanna/worksync/internal/blobstore"
	"github.com/fbkclanna/worksync/internal/git"
	"github.com/fbkclanna/worksync/internal/retry"
	"github.com/fbkclanna/worksync/internal/workspace"
)

// Manager syncs working trees against the blob store.
type Manager struct {
	store   blobstore.Store
	policy  retry.Policy
	root    string
	workers int
	log     *logrus.Entry
}

// NewManager creates a worktree manager. root is the directory under which
// every handle's local tree lives.
func NewManager(store blobstore.Store, policy retry.Policy, root string, log *logrus.Entry) *Manager {
	return &Manager{
		store:   store,
		policy:  policy,
		root:    root,
		workers: 8,
		log:     log,
	}
}

// Dir returns the local directory for a handle.
func (m *Manager) Dir(h workspace.Handle) string {
	return h.Dir(m.root)
}

// EnsureInitialized makes sure the handle has a usable local tree. Existing
// VCS metadata wins; otherwise the tree is hydrated from the blob store, or
// bootstrapped by cloning the handle's origin and seeding the store.
// Idempotent.
func (m *Manager) EnsureInitialized(ctx context.Context, h workspace.Handle) error {
	dir := m.Dir(h)
	if git.IsInitialized(dir) {
		return nil
	}

	var keys []string
	err := m.policy.Do(ctx, func() error {
		var err error
		keys, err = m.store.List(ctx, h.TreePrefix())
		return err
	})
	if err != nil {
		return fmt.Errorf("listing %s: %w", h.TreePrefix(), err)
	}

	if len(keys) > 0 {
		return m.SyncDown(ctx, h)
	}

	// First contact: no durable copy yet. Clone the origin and seed the
	// blob prefix so other workers find it.
	if h.Origin == "" {
		return fmt.Errorf("repository %s has no stored tree and no origin to clone", h.ID())
	}
	m.log.WithField("origin", h.Origin).Info("bootstrapping working tree from origin")
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("creating workspace directory: %w", err)
	}
	if err := git.Clone(ctx, h.Origin, dir, h.Branch); err != nil {
		return err
	}
	return m.SyncUp(ctx, h)
}

// SyncDown replaces the local directory with the blob-store copy, VCS
// metadata included. Local uncommitted state is overwritten; the caller is
// responsible for having verified that no unpushed work is lost.
func (m *Manager) SyncDown(ctx context.Context, h workspace.Handle) error {
	dir := m.Dir(h)
	prefix := h.TreePrefix()

	var keys []string
	err := m.policy.Do(ctx, func() error {
		var err error
		keys, err = m.store.List(ctx, prefix)
		return err
	})
	if err != nil {
		return fmt.Errorf("listing %s: %w", prefix, err)
	}

	remote := make(map[string]bool, len(keys))
	for _, k := range keys {
		remote[strings.TrimPrefix(k, prefix)] = true
	}

	if err := m.forEach(ctx, keys, func(ctx context.Context, key string) error {
		rel := strings.TrimPrefix(key, prefix)
		var obj blobstore.Object
		err := m.policy.Do(ctx, func() error {
			var err error
			obj, err = m.store.Get(ctx, key)
			return err
		})
		if err != nil {
			return fmt.Errorf("downloading %s: %w", key, err)
		}
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(full), err)
		}
		// Git writes loose objects read-only; remove the destination so the
		// overwrite cannot fail on permissions.
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("replacing %s: %w", rel, err)
		}
		if err := os.WriteFile(full, obj.Data, 0o644); err != nil { //nolint:gosec // tree content
			return fmt.Errorf("writing %s: %w", rel, err)
		}
		return nil
	}); err != nil {
		return err
	}

	// Remove local files that no longer exist remotely.
	if err := pruneLocal(dir, remote); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"repo": h.ID(), "objects": len(keys)}).Debug("sync-down complete")
	return nil
}

// SyncUp mirrors the local directory, VCS metadata included, back to the
// blob store so the tree becomes visible outside this process.
func (m *Manager) SyncUp(ctx context.Context, h workspace.Handle) error {
	dir := m.Dir(h)
	prefix := h.TreePrefix()

	local, err := listLocal(dir)
	if err != nil {
		return err
	}

	if err := m.forEach(ctx, local, func(ctx context.Context, rel string) error {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel))) //nolint:gosec // tree content
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		if err := m.policy.Do(ctx, func() error {
			return m.store.Put(ctx, prefix+rel, data)
		}); err != nil {
			return fmt.Errorf("uploading %s: %w", rel, err)
		}
		return nil
	}); err != nil {
		return err
	}

	// Remove remote objects whose files were deleted locally.
	var keys []string
	if err := m.policy.Do(ctx, func() error {
		var err error
		keys, err = m.store.List(ctx, prefix)
		return err
	}); err != nil {
		return fmt.Errorf("listing %s: %w", prefix, err)
	}
	localSet := make(map[string]bool, len(local))
	for _, rel := range local {
		localSet[rel] = true
	}
	for _, key := range keys {
		if localSet[strings.TrimPrefix(key, prefix)] {
			continue
		}
		if err := m.policy.Do(ctx, func() error {
			return m.store.Delete(ctx, key)
		}); err != nil {
			return fmt.Errorf("pruning %s: %w", key, err)
		}
	}
	m.log.WithFields(logrus.Fields{"repo": h.ID(), "objects": len(local)}).Debug("sync-up complete")
	return nil
}

// forEach runs fn over items with bounded parallelism, returning the first
// error.
func (m *Manager) forEach(ctx context.Context, items []string, fn func(context.Context, string) error) error {
	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup
	errCh := make(chan error, len(items))

	for _, item := range items {
		wg.Add(1)
		go func(item string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := fn(ctx, item); err != nil {
				errCh <- err
			}
		}(item)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

// listLocal returns every file under dir as a slash-separated relative path.
func listLocal(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}

// pruneLocal removes files under dir that are absent from the remote set.
func pruneLocal(dir string, remote map[string]bool) error {
	var stale []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if !remote[filepath.ToSlash(rel)] {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("walking %s: %w", dir, err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale %s: %w", path, err)
		}
	}
	return nil
}
