// Package testutil builds real git repositories for tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// CreateBareRepo creates a bare git repository with an initial commit in a
// temp directory. Returns the path to the bare repo, usable as an origin URL.
func CreateBareRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	bare := filepath.Join(dir, "repo.git")

	// Create a working repo first, then clone it bare.
	work := filepath.Join(dir, "work")
	Run(t, dir, "git", "init", "-b", "main", work)
	Run(t, work, "git", "config", "user.email", "test@example.com")
	Run(t, work, "git", "config", "user.name", "Test")

	readme := filepath.Join(work, "README.md")
	if err := os.WriteFile(readme, []byte("# test\n"), 0644); err != nil { //nolint:gosec // test file
		t.Fatal(err)
	}
	Run(t, work, "git", "add", ".")
	Run(t, work, "git", "commit", "-m", "initial commit")

	Run(t, dir, "git", "clone", "--bare", work, bare)
	return bare
}

// CloneRepo clones the given origin into a fresh temp directory and sets a
// commit identity so tests can commit immediately.
func CloneRepo(t *testing.T, origin string) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "clone")
	Run(t, ".", "git", "clone", origin, dest)
	Run(t, dest, "git", "config", "user.email", "test@example.com")
	Run(t, dest, "git", "config", "user.name", "Test")
	return dest
}

// CommitFile writes content to path (relative to repoDir), stages it, and
// commits with the given message.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()
	full := filepath.Join(repoDir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil { //nolint:gosec // test file
		t.Fatal(err)
	}
	Run(t, repoDir, "git", "add", ".")
	Run(t, repoDir, "git", "commit", "-m", message)
}

// PushRemoteCommit commits content to the origin through a scratch clone,
// advancing the remote without touching the caller's working tree.
func PushRemoteCommit(t *testing.T, origin, path, content, message string) {
	t.Helper()
	clone := CloneRepo(t, origin)
	CommitFile(t, clone, path, content, message)
	Run(t, clone, "git", "push", "origin", "main")
}

// RequireGit skips the test when the git binary is unavailable.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// Run executes a command in dir and fails the test on error.
func Run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("command %s %v failed: %v", name, args, err)
	}
}
