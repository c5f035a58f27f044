package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrMergeConflict is returned by Merge when the merge stops on conflicts.
// The working tree is left with conflict markers and MERGE_HEAD in place.
var ErrMergeConflict = errors.New("merge conflict")

// ErrPushRejected is returned by Push when the remote rejected the update
// because it has advanced (non-fast-forward). The caller may fetch and retry.
var ErrPushRejected = errors.New("push rejected by remote")

// Clone clones url into dest on the given branch.
func Clone(ctx context.Context, url, dest, branch string) error {
	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dest)
	if err := run(ctx, ".", args...); err != nil {
		return fmt.Errorf("cloning %s: %w", url, err)
	}
	return nil
}

// Fetch runs git fetch in the given repo directory.
func Fetch(ctx context.Context, repoDir string) error {
	return run(ctx, repoDir, "fetch", "--prune")
}

// IsInitialized returns true if the directory contains git metadata.
func IsInitialized(repoDir string) bool {
	info, err := os.Stat(filepath.Join(repoDir, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// CurrentBranch returns the current branch name, or empty string if detached.
func CurrentBranch(ctx context.Context, repoDir string) (string, error) {
	out, err := output(ctx, repoDir, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		// Detached HEAD: symbolic-ref fails.
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

// HeadCommit returns the full SHA of HEAD.
func HeadCommit(ctx context.Context, repoDir string) (string, error) {
	out, err := output(ctx, repoDir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Status describes the porcelain status of a working tree.
type Status struct {
	Staged    []string
	Modified  []string
	Untracked []string
}

// IsClean returns true when nothing is staged, modified, or untracked.
func (s Status) IsClean() bool {
	return len(s.Staged) == 0 && len(s.Modified) == 0 && len(s.Untracked) == 0
}

// StatusPorcelain parses `git status --porcelain` into staged, modified and
// untracked path lists. A path can appear in both staged and modified when it
// has index and worktree changes.
func StatusPorcelain(ctx context.Context, repoDir string) (Status, error) {
	out, err := output(ctx, repoDir, "status", "--porcelain")
	if err != nil {
		return Status{}, err
	}
	var st Status
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		x, y, path := line[0], line[1], line[3:]
		// Rename entries look like "old -> new"; report the new path.
		if idx := strings.Index(path, " -> "); idx != -1 {
			path = path[idx+4:]
		}
		if x == '?' && y == '?' {
			st.Untracked = append(st.Untracked, path)
			continue
		}
		if x != ' ' {
			st.Staged = append(st.Staged, path)
		}
		if y != ' ' {
			st.Modified = append(st.Modified, path)
		}
	}
	return st, nil
}

// MergeInProgress reports whether a merge has started but not concluded.
func MergeInProgress(repoDir string) bool {
	_, err := os.Stat(filepath.Join(repoDir, ".git", "MERGE_HEAD"))
	return err == nil
}

// AheadBehind returns how many commits HEAD is ahead of and behind the
// remote tracking branch origin/<branch>. Returns zeros when the tracking
// branch does not exist yet.
func AheadBehind(ctx context.Context, repoDir, branch string) (ahead, behind int, err error) {
	tracking := "origin/" + branch
	if err := run(ctx, repoDir, "show-ref", "--verify", "--quiet", "refs/remotes/"+tracking); err != nil {
		if isExitError(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	out, err := output(ctx, repoDir, "rev-list", "--left-right", "--count", "HEAD..."+tracking)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output: %q", out)
	}
	if ahead, err = strconv.Atoi(fields[0]); err != nil {
		return 0, 0, fmt.Errorf("parsing ahead count: %w", err)
	}
	if behind, err = strconv.Atoi(fields[1]); err != nil {
		return 0, 0, fmt.Errorf("parsing behind count: %w", err)
	}
	return ahead, behind, nil
}

// AddAll stages all changes in the repository, including deletions.
func AddAll(ctx context.Context, repoDir string) error {
	return run(ctx, repoDir, "add", "--all")
}

// Add stages the given paths.
func Add(ctx context.Context, repoDir string, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	return run(ctx, repoDir, args...)
}

// Commit creates a commit with the given message and returns its SHA.
// If a merge is in progress the commit gets two parents automatically.
// If user.name or user.email is not configured, repo-local fallback values
// are set first.
func Commit(ctx context.Context, repoDir, message string) (string, error) {
	if err := ensureCommitIdentity(ctx, repoDir); err != nil {
		return "", fmt.Errorf("setting commit identity: %w", err)
	}
	if err := run(ctx, repoDir, "commit", "-m", message); err != nil {
		return "", err
	}
	return HeadCommit(ctx, repoDir)
}

// Merge merges the given ref into HEAD. Returns ErrMergeConflict when the
// merge stops on conflicts, leaving markers and MERGE_HEAD in place.
func Merge(ctx context.Context, repoDir, ref string) error {
	if err := ensureCommitIdentity(ctx, repoDir); err != nil {
		return fmt.Errorf("setting commit identity: %w", err)
	}
	if err := run(ctx, repoDir, "merge", "--no-edit", ref); err != nil {
		if MergeInProgress(repoDir) {
			return ErrMergeConflict
		}
		return err
	}
	return nil
}

// MergeAbort aborts an in-progress merge and restores the pre-merge tree.
func MergeAbort(ctx context.Context, repoDir string) error {
	return run(ctx, repoDir, "merge", "--abort")
}

// Stash stashes uncommitted changes, including untracked files.
// Returns false when there was nothing to stash.
func Stash(ctx context.Context, repoDir string) (bool, error) {
	st, err := StatusPorcelain(ctx, repoDir)
	if err != nil {
		return false, err
	}
	if st.IsClean() {
		return false, nil
	}
	if err := run(ctx, repoDir, "stash", "push", "--include-untracked"); err != nil {
		return false, err
	}
	return true, nil
}

// StashPop restores the most recent stash.
func StashPop(ctx context.Context, repoDir string) error {
	return run(ctx, repoDir, "stash", "pop")
}

// Push pushes the given branch to origin. Returns ErrPushRejected when the
// remote refused a non-fast-forward update.
func Push(ctx context.Context, repoDir, branch string) error {
	err := run(ctx, repoDir, "push", "origin", branch)
	if err == nil {
		return nil
	}
	var ee *execError
	if errors.As(err, &ee) && (strings.Contains(ee.stderr, "[rejected]") ||
		strings.Contains(ee.stderr, "failed to push") ||
		strings.Contains(ee.stderr, "non-fast-forward")) {
		return fmt.Errorf("%w: %s", ErrPushRejected, strings.TrimSpace(ee.stderr))
	}
	return err
}

// ConflictKind classifies how a path came to be unmerged.
type ConflictKind string

const (
	KindContent      ConflictKind = "content"
	KindAddAdd       ConflictKind = "add-add"
	KindDeleteModify ConflictKind = "delete-modify"
)

// Unmerged describes one conflicted path in the index.
type Unmerged struct {
	Path string
	Kind ConflictKind
}

// UnmergedFiles lists conflicted paths from `git ls-files -u`, classifying
// each by which index stages are present: all three stages is a content
// conflict, stages 2+3 without a base is add-add, and a missing side is
// delete-modify.
func UnmergedFiles(ctx context.Context, repoDir string) ([]Unmerged, error) {
	out, err := output(ctx, repoDir, "ls-files", "-u")
	if err != nil {
		return nil, err
	}
	stages := make(map[string]map[int]bool)
	var order []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		// Format: "<mode> <sha> <stage>\t<path>"
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			continue
		}
		path := line[tab+1:]
		fields := strings.Fields(line[:tab])
		if len(fields) != 3 {
			continue
		}
		stage, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		if stages[path] == nil {
			stages[path] = make(map[int]bool, 3)
			order = append(order, path)
		}
		stages[path][stage] = true
	}

	result := make([]Unmerged, 0, len(order))
	for _, path := range order {
		s := stages[path]
		kind := KindContent
		switch {
		case !s[1]:
			kind = KindAddAdd
		case !s[2] || !s[3]:
			kind = KindDeleteModify
		}
		result = append(result, Unmerged{Path: path, Kind: kind})
	}
	return result, nil
}

// ShowStage returns the content of path at the given index stage (2 = ours,
// 3 = theirs). ok is false when the stage does not exist for the path, which
// happens on delete-modify conflicts.
func ShowStage(ctx context.Context, repoDir string, stage int, path string) (content string, ok bool, err error) {
	out, err := output(ctx, repoDir, "show", fmt.Sprintf(":%d:%s", stage, path))
	if err != nil {
		if isExitError(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// Diff returns the unified diff of the working tree against HEAD.
// An empty path diffs the whole tree.
func Diff(ctx context.Context, repoDir, path string) (string, error) {
	args := []string{"diff", "HEAD"}
	if path != "" {
		args = append(args, "--", path)
	}
	return output(ctx, repoDir, args...)
}

// CheckoutPaths restores the given paths from HEAD, discarding local edits.
func CheckoutPaths(ctx context.Context, repoDir string, paths ...string) error {
	args := append([]string{"checkout", "HEAD", "--"}, paths...)
	return run(ctx, repoDir, args...)
}

// Clean removes untracked files and directories.
func Clean(ctx context.Context, repoDir string) error {
	return run(ctx, repoDir, "clean", "-fd")
}

// ensureCommitIdentity sets repo-local user.name/user.email if they are not configured.
func ensureCommitIdentity(ctx context.Context, dir string) error {
	if _, err := output(ctx, dir, "config", "user.name"); err != nil {
		if err2 := run(ctx, dir, "config", "user.name", "worksync"); err2 != nil {
			return err2
		}
	}
	if _, err := output(ctx, dir, "config", "user.email"); err != nil {
		if err2 := run(ctx, dir, "config", "user.email", "worksync@localhost"); err2 != nil {
			return err2
		}
	}
	return nil
}

// execError carries captured stderr alongside the exec failure so callers
// can classify remote rejections.
type execError struct {
	args   []string
	stderr string
	err    error
}

func (e *execError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.args, " "), e.err, e.stderr)
}

func (e *execError) Unwrap() error { return e.err }

// run executes a git command, capturing stderr into the error on failure.
func run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &execError{args: args, stderr: stderr.String(), err: err}
	}
	return nil
}

// output executes a git command and returns its stdout.
func output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &execError{args: args, stderr: stderr.String(), err: err}
	}
	return stdout.String(), nil
}

func isExitError(err error) bool {
	var ee *exec.ExitError
	return errors.As(err, &ee)
}

// IsGitInstalled returns true if git is available on the system PATH.
func IsGitInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}
