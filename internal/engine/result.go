package engine

import "github.com/fbkclanna/worksync/internal/conflict"

// FetchResult reports the repository's position against its remote after a
// fetch.
type FetchResult struct {
	CommitsAhead  int `json:"commits_ahead"`
	CommitsBehind int `json:"commits_behind"`
}

// StatusResult is a point-in-time snapshot of the working tree, recomputed
// on every call and never cached.
type StatusResult struct {
	Initialized     bool     `json:"initialized"`
	Branch          string   `json:"branch,omitempty"`
	Head            string   `json:"head,omitempty"`
	Staged          []string `json:"staged"`
	Modified        []string `json:"modified"`
	Untracked       []string `json:"untracked"`
	MergeInProgress bool     `json:"merge_in_progress"`
	CommitsAhead    int      `json:"commits_ahead"`
	CommitsBehind   int      `json:"commits_behind"`
}

// CommitResult identifies the commit created by Commit or Resolve.
type CommitResult struct {
	CommitID string `json:"commit_id"`
}

// SyncResult is the outcome of a sync: either a clean pull/push round or the
// conflict set that stopped it. A conflicted sync is a normal terminal
// outcome, not an error.
type SyncResult struct {
	Pushed           bool             `json:"pushed"`
	PulledCommits    int              `json:"pulled_commits"`
	Conflicts        []conflict.Entry `json:"conflicts,omitempty"`
	EntitiesImported int              `json:"entities_imported"`
}

// Conflicted reports whether the sync stopped on merge conflicts.
func (r *SyncResult) Conflicted() bool { return len(r.Conflicts) > 0 }
