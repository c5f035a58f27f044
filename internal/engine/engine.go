// Package engine orchestrates the repository sync lifecycle: it composes the
// blob store, lease manager, worktree transfers, merge machinery and entity
// import into the operations callers see. Every mutating operation runs under
// the repository lease; reads never take it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fbkclanna/worksync/internal/conflict"
	"github.com/fbkclanna/worksync/internal/git"
	"github.com/fbkclanna/worksync/internal/importer"
	"github.com/fbkclanna/worksync/internal/lease"
	"github.com/fbkclanna/worksync/internal/manifest"
	"github.com/fbkclanna/worksync/internal/workspace"
	"github.com/fbkclanna/worksync/internal/worktree"
)

// DefaultLeaseTTL bounds how long a crashed worker can block a repository.
// Long transfers renew before they start, so the TTL only needs to cover a
// single git or store operation.
const DefaultLeaseTTL = 2 * time.Minute

// Engine drives the sync state machine for repositories addressed by
// workspace handles.
type Engine struct {
	leases *lease.Manager
	trees  *worktree.Manager
	imp    importer.Pipeline
	log    *logrus.Entry
	ttl    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLeaseTTL overrides the lease TTL.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// New assembles an engine from its collaborators. imp may be nil when no
// entity database is configured; successful pushes then skip the import step.
func New(leases *lease.Manager, trees *worktree.Manager, imp importer.Pipeline, log *logrus.Entry, opts ...Option) *Engine {
	e := &Engine{
		leases: leases,
		trees:  trees,
		imp:    imp,
		log:    log,
		ttl:    DefaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch brings the local tree up to date with the durable copy and refreshes
// remote tracking refs. Refuses with ErrLocalAhead when local commits have
// not been pushed, since the sync-down would overwrite them.
func (e *Engine) Fetch(ctx context.Context, h workspace.Handle) (*FetchResult, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	var res *FetchResult
	err := e.withLease(ctx, h, func(token string) error {
		dir := e.trees.Dir(h)
		branch := h.EffectiveBranch()

		if git.IsInitialized(dir) {
			ahead, _, err := git.AheadBehind(ctx, dir, branch)
			if err != nil {
				return &VcsError{Op: "rev-list", Err: err}
			}
			if ahead > 0 {
				return fmt.Errorf("%w: %d unpushed commit(s)", ErrLocalAhead, ahead)
			}
			if err := e.setPhase(dir, workspace.PhaseFetching); err != nil {
				return err
			}
			if err := e.renew(ctx, h, token); err != nil {
				return err
			}
			if err := e.trees.SyncDown(ctx, h); err != nil {
				return &SyncIOError{Op: "sync-down", Err: err}
			}
		} else {
			if err := e.renew(ctx, h, token); err != nil {
				return err
			}
			if err := e.trees.EnsureInitialized(ctx, h); err != nil {
				return &SyncIOError{Op: "initialize", Err: err}
			}
			if err := e.setPhase(dir, workspace.PhaseFetching); err != nil {
				return err
			}
		}

		if _, err := manifest.Regenerate(dir, h.ID()); err != nil {
			return fmt.Errorf("regenerating manifest: %w", err)
		}
		if err := e.verify(ctx, h, token); err != nil {
			return err
		}
		if err := git.Fetch(ctx, dir); err != nil {
			return &VcsError{Op: "fetch", Err: err}
		}
		ahead, behind, err := git.AheadBehind(ctx, dir, branch)
		if err != nil {
			return &VcsError{Op: "rev-list", Err: err}
		}
		res = &FetchResult{CommitsAhead: ahead, CommitsBehind: behind}
		return e.setPhase(dir, workspace.PhaseIdle)
	})
	if err != nil {
		return nil, e.withSnapshot(ctx, h, err)
	}
	return res, nil
}

// Status reports a fresh snapshot of the working tree without taking the
// lease. An uninitialized tree yields an empty, uninitialized snapshot.
func (e *Engine) Status(ctx context.Context, h workspace.Handle) (*StatusResult, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	dir := e.trees.Dir(h)
	if !git.IsInitialized(dir) {
		return &StatusResult{Initialized: false}, nil
	}
	if _, err := manifest.Regenerate(dir, h.ID()); err != nil {
		return nil, fmt.Errorf("regenerating manifest: %w", err)
	}
	st, err := git.StatusPorcelain(ctx, dir)
	if err != nil {
		return nil, &VcsError{Op: "status", Err: err}
	}
	branch, err := git.CurrentBranch(ctx, dir)
	if err != nil {
		return nil, &VcsError{Op: "symbolic-ref", Err: err}
	}
	head, err := git.HeadCommit(ctx, dir)
	if err != nil {
		return nil, &VcsError{Op: "rev-parse", Err: err}
	}
	ahead, behind, err := git.AheadBehind(ctx, dir, h.EffectiveBranch())
	if err != nil {
		return nil, &VcsError{Op: "rev-list", Err: err}
	}
	return &StatusResult{
		Initialized:     true,
		Branch:          branch,
		Head:            head,
		Staged:          st.Staged,
		Modified:        st.Modified,
		Untracked:       st.Untracked,
		MergeInProgress: git.MergeInProgress(dir),
		CommitsAhead:    ahead,
		CommitsBehind:   behind,
	}, nil
}

// Commit regenerates the manifest, stages everything and commits. Returns
// ErrNothingToCommit when the tree is clean after staging.
func (e *Engine) Commit(ctx context.Context, h workspace.Handle, message string) (*CommitResult, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if message == "" {
		return nil, errors.New("commit message must not be empty")
	}
	var res *CommitResult
	err := e.withLease(ctx, h, func(token string) error {
		if err := e.trees.EnsureInitialized(ctx, h); err != nil {
			return &SyncIOError{Op: "initialize", Err: err}
		}
		dir := e.trees.Dir(h)
		if err := e.setPhase(dir, workspace.PhaseCommitting); err != nil {
			return err
		}
		if _, err := manifest.Regenerate(dir, h.ID()); err != nil {
			return fmt.Errorf("regenerating manifest: %w", err)
		}
		if err := manifest.Preflight(dir); err != nil {
			return fmt.Errorf("manifest preflight: %w", err)
		}
		if err := git.AddAll(ctx, dir); err != nil {
			return &VcsError{Op: "add", Err: err}
		}
		st, err := git.StatusPorcelain(ctx, dir)
		if err != nil {
			return &VcsError{Op: "status", Err: err}
		}
		if len(st.Staged) == 0 {
			_ = e.setPhase(dir, workspace.PhaseIdle)
			return ErrNothingToCommit
		}
		if err := e.verify(ctx, h, token); err != nil {
			return err
		}
		sha, err := git.Commit(ctx, dir, message)
		if err != nil {
			return &VcsError{Op: "commit", Err: err}
		}
		res = &CommitResult{CommitID: sha}
		return e.setPhase(dir, workspace.PhaseIdle)
	})
	if err != nil {
		return nil, e.withSnapshot(ctx, h, err)
	}
	return res, nil
}

// Sync pulls the remote branch, merges it, pushes local commits and imports
// entities after a successful push. A merge conflict is a normal outcome:
// the conflict set is persisted and returned, and every further Sync call
// short-circuits to it until Resolve or AbortMerge runs.
func (e *Engine) Sync(ctx context.Context, h workspace.Handle) (*SyncResult, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	var res *SyncResult
	err := e.withLease(ctx, h, func(token string) error {
		if err := e.trees.EnsureInitialized(ctx, h); err != nil {
			return &SyncIOError{Op: "initialize", Err: err}
		}
		dir := e.trees.Dir(h)
		branch := h.EffectiveBranch()

		state, err := workspace.LoadState(dir)
		if err != nil {
			return err
		}
		if state.Phase == workspace.PhaseMergeConflict {
			res = &SyncResult{Conflicts: state.Conflicts}
			return nil
		}
		if err := e.setPhase(dir, workspace.PhaseSyncing); err != nil {
			return err
		}

		if err := e.verify(ctx, h, token); err != nil {
			return err
		}
		stashed, err := git.Stash(ctx, dir)
		if err != nil {
			return &VcsError{Op: "stash", Err: err}
		}
		if err := git.Fetch(ctx, dir); err != nil {
			return &VcsError{Op: "fetch", Err: err}
		}
		_, behind, err := git.AheadBehind(ctx, dir, branch)
		if err != nil {
			return &VcsError{Op: "rev-list", Err: err}
		}

		if behind > 0 {
			err := git.Merge(ctx, dir, "origin/"+branch)
			if errors.Is(err, git.ErrMergeConflict) {
				entries, cerr := conflict.Collect(ctx, dir)
				if cerr != nil {
					return fmt.Errorf("collecting conflicts: %w", cerr)
				}
				if serr := workspace.SaveState(dir, &workspace.State{
					Phase:     workspace.PhaseMergeConflict,
					Stashed:   stashed,
					Conflicts: entries,
				}); serr != nil {
					return serr
				}
				e.log.WithFields(logrus.Fields{"repo": h.ID(), "conflicts": len(entries)}).Warn("sync stopped on merge conflicts")
				res = &SyncResult{Conflicts: entries}
				return nil
			}
			if err != nil {
				return &VcsError{Op: "merge", Err: err}
			}
		}

		if stashed {
			if err := git.StashPop(ctx, dir); err != nil {
				return &VcsError{Op: "stash pop", Err: err}
			}
		}

		ahead, _, err := git.AheadBehind(ctx, dir, branch)
		if err != nil {
			return &VcsError{Op: "rev-list", Err: err}
		}

		pushed := false
		if ahead > 0 {
			if err := e.verify(ctx, h, token); err != nil {
				return err
			}
			err := git.Push(ctx, dir, branch)
			if errors.Is(err, git.ErrPushRejected) {
				_ = e.setPhase(dir, workspace.PhaseIdle)
				return fmt.Errorf("%w: %v", ErrRemoteAdvanced, err)
			}
			if err != nil {
				return &VcsError{Op: "push", Err: err}
			}
			pushed = true
		}

		imported := 0
		if pushed {
			if err := e.setPhase(dir, workspace.PhaseIdle); err != nil {
				return err
			}
			if err := e.renew(ctx, h, token); err != nil {
				return err
			}
			if err := e.trees.SyncUp(ctx, h); err != nil {
				return &SyncIOError{Op: "sync-up", Err: err}
			}
			if e.imp != nil {
				if imported, err = e.imp.ImportFromManifest(ctx, dir); err != nil {
					return fmt.Errorf("importing entities: %w", err)
				}
			}
		} else if err := e.setPhase(dir, workspace.PhaseIdle); err != nil {
			return err
		}

		res = &SyncResult{Pushed: pushed, PulledCommits: behind, EntitiesImported: imported}
		return nil
	})
	if err != nil {
		return nil, e.withSnapshot(ctx, h, err)
	}
	return res, nil
}

// Resolve concludes a conflicted sync. Every path in the persisted conflict
// set must carry a resolution; the choices are written into the tree and the
// merge commit created. Stashed pre-pull changes are restored afterwards.
func (e *Engine) Resolve(ctx context.Context, h workspace.Handle, resolutions []conflict.Resolution, message string) (*CommitResult, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if message == "" {
		message = "Merge remote changes"
	}
	var res *CommitResult
	err := e.withLease(ctx, h, func(token string) error {
		dir := e.trees.Dir(h)
		state, err := workspace.LoadState(dir)
		if err != nil {
			return err
		}
		if state.Phase != workspace.PhaseMergeConflict {
			return ErrNotConflicted
		}
		if missing := conflict.Unresolved(state.Conflicts, resolutions); len(missing) > 0 {
			return &UnresolvedConflictError{Paths: missing}
		}
		state.Phase = workspace.PhaseResolving
		if err := workspace.SaveState(dir, state); err != nil {
			return err
		}
		// The merge stays open until the commit lands; on any failure the
		// conflict state is restored so the caller can retry.
		defer func() {
			if res == nil {
				state.Phase = workspace.PhaseMergeConflict
				_ = workspace.SaveState(dir, state)
			}
		}()
		if err := e.verify(ctx, h, token); err != nil {
			return err
		}
		if err := conflict.Apply(dir, state.Conflicts, resolutions); err != nil {
			return err
		}
		if err := git.AddAll(ctx, dir); err != nil {
			return &VcsError{Op: "add", Err: err}
		}
		if _, err := manifest.Regenerate(dir, h.ID()); err != nil {
			return fmt.Errorf("regenerating manifest: %w", err)
		}
		if err := git.AddAll(ctx, dir); err != nil {
			return &VcsError{Op: "add", Err: err}
		}
		if err := e.verify(ctx, h, token); err != nil {
			return err
		}
		sha, err := git.Commit(ctx, dir, message)
		if err != nil {
			return &VcsError{Op: "commit", Err: err}
		}
		// The merge is concluded. Clear the conflict state before touching
		// the stash; a failed pop must not leave a phase pointing at a
		// MERGE_HEAD that no longer exists.
		res = &CommitResult{CommitID: sha}
		state.Phase = workspace.PhaseIdle
		state.Conflicts = nil
		if err := workspace.SaveState(dir, state); err != nil {
			return err
		}
		if state.Stashed {
			if err := git.StashPop(ctx, dir); err != nil {
				return &VcsError{Op: "stash pop", Err: err}
			}
			state.Stashed = false
			if err := workspace.SaveState(dir, state); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, e.withSnapshot(ctx, h, err)
	}
	return res, nil
}

// AbortMerge abandons a conflicted sync and restores the pre-pull tree,
// stashed uncommitted changes included.
func (e *Engine) AbortMerge(ctx context.Context, h workspace.Handle) error {
	if err := h.Validate(); err != nil {
		return err
	}
	err := e.withLease(ctx, h, func(token string) error {
		dir := e.trees.Dir(h)
		state, err := workspace.LoadState(dir)
		if err != nil {
			return err
		}
		if state.Phase != workspace.PhaseMergeConflict {
			return ErrNotConflicted
		}
		if err := e.verify(ctx, h, token); err != nil {
			return err
		}
		if err := git.MergeAbort(ctx, dir); err != nil {
			return &VcsError{Op: "merge abort", Err: err}
		}
		if state.Stashed {
			if err := git.StashPop(ctx, dir); err != nil {
				return &VcsError{Op: "stash pop", Err: err}
			}
		}
		return e.setPhase(dir, workspace.PhaseIdle)
	})
	if err != nil {
		return e.withSnapshot(ctx, h, err)
	}
	return nil
}

// Conflicts returns the persisted conflict set, or nil when the repository
// is not in merge-conflict state. No lease is taken.
func (e *Engine) Conflicts(ctx context.Context, h workspace.Handle) ([]conflict.Entry, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	state, err := workspace.LoadState(e.trees.Dir(h))
	if err != nil {
		return nil, err
	}
	if state.Phase != workspace.PhaseMergeConflict {
		return nil, nil
	}
	return state.Conflicts, nil
}

// Diff returns the unified diff of the working tree against HEAD. An empty
// path diffs everything. No lease is taken.
func (e *Engine) Diff(ctx context.Context, h workspace.Handle, path string) (string, error) {
	if err := h.Validate(); err != nil {
		return "", err
	}
	dir := e.trees.Dir(h)
	if !git.IsInitialized(dir) {
		return "", nil
	}
	out, err := git.Diff(ctx, dir, path)
	if err != nil {
		return "", &VcsError{Op: "diff", Err: err}
	}
	return out, nil
}

// Discard throws away uncommitted changes to the given paths, or all of them
// when none are given, and mirrors the restored tree to the durable copy.
func (e *Engine) Discard(ctx context.Context, h workspace.Handle, paths ...string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	err := e.withLease(ctx, h, func(token string) error {
		dir := e.trees.Dir(h)
		if !git.IsInitialized(dir) {
			return fmt.Errorf("repository %s is not initialized", h.ID())
		}
		if err := e.verify(ctx, h, token); err != nil {
			return err
		}
		if len(paths) == 0 {
			if err := git.CheckoutPaths(ctx, dir, "."); err != nil {
				return &VcsError{Op: "checkout", Err: err}
			}
			if err := git.Clean(ctx, dir); err != nil {
				return &VcsError{Op: "clean", Err: err}
			}
		} else if err := git.CheckoutPaths(ctx, dir, paths...); err != nil {
			return &VcsError{Op: "checkout", Err: err}
		}
		if _, err := manifest.Regenerate(dir, h.ID()); err != nil {
			return fmt.Errorf("regenerating manifest: %w", err)
		}
		if err := e.renew(ctx, h, token); err != nil {
			return err
		}
		if err := e.trees.SyncUp(ctx, h); err != nil {
			return &SyncIOError{Op: "sync-up", Err: err}
		}
		return nil
	})
	if err != nil {
		return e.withSnapshot(ctx, h, err)
	}
	return nil
}

// withLease acquires the repository lease, runs fn and releases. Failing to
// acquire maps to ErrLockBusy.
func (e *Engine) withLease(ctx context.Context, h workspace.Handle, fn func(token string) error) error {
	token, err := e.leases.Acquire(ctx, h.LeaseKey(), e.ttl)
	if errors.Is(err, lease.ErrBusy) {
		return fmt.Errorf("%w: %s", ErrLockBusy, h.ID())
	}
	if err != nil {
		return fmt.Errorf("acquiring lease for %s: %w", h.ID(), err)
	}
	defer func() {
		if !e.leases.Release(ctx, h.LeaseKey(), token) {
			e.log.WithField("repo", h.ID()).Warn("lease was not held at release time")
		}
	}()
	return fn(token)
}

// verify confirms the lease is still ours. Called immediately before every
// mutating VCS primitive.
func (e *Engine) verify(ctx context.Context, h workspace.Handle, token string) error {
	if err := e.leases.Verify(ctx, h.LeaseKey(), token); err != nil {
		if errors.Is(err, lease.ErrNotHeld) {
			return fmt.Errorf("%w: %s", ErrLockLost, h.ID())
		}
		return err
	}
	return nil
}

// renew extends the lease ahead of a long transfer.
func (e *Engine) renew(ctx context.Context, h workspace.Handle, token string) error {
	if err := e.leases.Renew(ctx, h.LeaseKey(), token, e.ttl); err != nil {
		if errors.Is(err, lease.ErrNotHeld) {
			return fmt.Errorf("%w: %s", ErrLockLost, h.ID())
		}
		return err
	}
	return nil
}

func (e *Engine) setPhase(dir string, phase workspace.Phase) error {
	return workspace.SaveState(dir, &workspace.State{Phase: phase})
}

// withSnapshot attaches a status snapshot to a failure so callers can act on
// the tree's current position without a second round trip.
func (e *Engine) withSnapshot(ctx context.Context, h workspace.Handle, err error) error {
	snap, serr := e.Status(ctx, h)
	if serr != nil {
		return err
	}
	return &StatusError{Status: snap, Err: err}
}
