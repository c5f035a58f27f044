package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLockBusy is returned when another worker holds the repository lease.
// Callers should retry later, not immediately.
var ErrLockBusy = errors.New("repository is locked by another worker")

// ErrLockLost is returned when the lease disappeared while an operation was
// in flight. This is fatal for the operation: another worker may already be
// running commands against the same tree.
var ErrLockLost = errors.New("repository lease lost during operation")

// ErrNothingToCommit is returned by Commit when the diff is empty. Caller
// error; surfaced immediately without retry.
var ErrNothingToCommit = errors.New("nothing to commit")

// ErrNotConflicted is returned by Resolve and AbortMerge outside the
// merge-conflict state.
var ErrNotConflicted = errors.New("repository is not in merge-conflict state")

// ErrLocalAhead is returned by Fetch when local commits are ahead of the
// remote tracking branch; the destructive sync-down is refused so unpushed
// work is never silently overwritten.
var ErrLocalAhead = errors.New("local commits are ahead of the remote")

// ErrRemoteAdvanced is returned by Sync when the push was rejected because
// the remote moved again after the pull. The durable copy is left untouched;
// the caller may retry the whole sync.
var ErrRemoteAdvanced = errors.New("remote advanced during sync; retry")

// UnresolvedConflictError is returned by Resolve when at least one entry in
// the active conflict set lacks a resolution.
type UnresolvedConflictError struct {
	Paths []string
}

func (e *UnresolvedConflictError) Error() string {
	return fmt.Sprintf("unresolved conflicts: %s", strings.Join(e.Paths, ", "))
}

// SyncIOError wraps a blob-store transfer failure that survived the retry
// policy.
type SyncIOError struct {
	Op  string
	Err error
}

func (e *SyncIOError) Error() string {
	return fmt.Sprintf("blob transfer failed during %s: %v", e.Op, e.Err)
}

func (e *SyncIOError) Unwrap() error { return e.Err }

// VcsError wraps a failed version-control primitive. Not retried: it
// usually indicates local corruption requiring manual intervention.
type VcsError struct {
	Op  string
	Err error
}

func (e *VcsError) Error() string {
	return fmt.Sprintf("vcs %s failed: %v", e.Op, e.Err)
}

func (e *VcsError) Unwrap() error { return e.Err }

// StatusError attaches a point-in-time status snapshot to a failure so the
// caller can decide whether to retry, abort a merge, or prompt for
// resolution.
type StatusError struct {
	Status *StatusResult
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }
