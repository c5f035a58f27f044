package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fbkclanna/worksync/internal/testutil"
)

func TestCloneAndInspect(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	dest := filepath.Join(t.TempDir(), "clone")
	if err := Clone(ctx, origin, dest, "main"); err != nil {
		t.Fatalf("Clone() error: %v", err)
	}
	if !IsInitialized(dest) {
		t.Fatal("IsInitialized() = false after clone")
	}

	branch, err := CurrentBranch(ctx, dest)
	if err != nil {
		t.Fatalf("CurrentBranch() error: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch() = %q, want main", branch)
	}

	head, err := HeadCommit(ctx, dest)
	if err != nil {
		t.Fatalf("HeadCommit() error: %v", err)
	}
	if len(head) != 40 {
		t.Errorf("HeadCommit() = %q, want full SHA", head)
	}

	st, err := StatusPorcelain(ctx, dest)
	if err != nil {
		t.Fatalf("StatusPorcelain() error: %v", err)
	}
	if !st.IsClean() {
		t.Errorf("fresh clone not clean: %+v", st)
	}
}

func TestStatusPorcelainClassification(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	repo := testutil.CloneRepo(t, origin)

	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "new.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "staged.txt"), []byte("y\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Add(ctx, repo, "staged.txt"); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	st, err := StatusPorcelain(ctx, repo)
	if err != nil {
		t.Fatalf("StatusPorcelain() error: %v", err)
	}
	want := Status{
		Staged:    []string{"staged.txt"},
		Modified:  []string{"README.md"},
		Untracked: []string{"new.txt"},
	}
	if !equalStrings(st.Staged, want.Staged) || !equalStrings(st.Modified, want.Modified) || !equalStrings(st.Untracked, want.Untracked) {
		t.Errorf("StatusPorcelain() = %+v, want %+v", st, want)
	}
}

func TestAheadBehind(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	repo := testutil.CloneRepo(t, origin)

	ahead, behind, err := AheadBehind(ctx, repo, "main")
	if err != nil {
		t.Fatalf("AheadBehind() error: %v", err)
	}
	if ahead != 0 || behind != 0 {
		t.Errorf("AheadBehind() = %d/%d, want 0/0", ahead, behind)
	}

	testutil.CommitFile(t, repo, "local.txt", "a\n", "local commit")
	testutil.PushRemoteCommit(t, origin, "remote.txt", "b\n", "remote commit")
	if err := Fetch(ctx, repo); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	ahead, behind, err = AheadBehind(ctx, repo, "main")
	if err != nil {
		t.Fatalf("AheadBehind() error: %v", err)
	}
	if ahead != 1 || behind != 1 {
		t.Errorf("AheadBehind() = %d/%d, want 1/1", ahead, behind)
	}

	// A branch without a tracking ref reports zeros instead of failing.
	ahead, behind, err = AheadBehind(ctx, repo, "does-not-exist")
	if err != nil {
		t.Fatalf("AheadBehind() error: %v", err)
	}
	if ahead != 0 || behind != 0 {
		t.Errorf("AheadBehind() without tracking ref = %d/%d, want 0/0", ahead, behind)
	}
}

func TestCommitReturnsHead(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	repo := testutil.CloneRepo(t, testutil.CreateBareRepo(t))
	if err := os.WriteFile(filepath.Join(repo, "f.txt"), []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AddAll(ctx, repo); err != nil {
		t.Fatalf("AddAll() error: %v", err)
	}
	sha, err := Commit(ctx, repo, "add f")
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	head, err := HeadCommit(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	if sha != head {
		t.Errorf("Commit() = %q, HEAD = %q", sha, head)
	}
}

func TestMergeConflict(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	repo := testutil.CloneRepo(t, origin)

	testutil.CommitFile(t, repo, "README.md", "ours\n", "our side")
	testutil.PushRemoteCommit(t, origin, "README.md", "theirs\n", "their side")
	if err := Fetch(ctx, repo); err != nil {
		t.Fatal(err)
	}

	err := Merge(ctx, repo, "origin/main")
	if !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("Merge() = %v, want ErrMergeConflict", err)
	}
	if !MergeInProgress(repo) {
		t.Fatal("MergeInProgress() = false during conflict")
	}

	unmerged, err := UnmergedFiles(ctx, repo)
	if err != nil {
		t.Fatalf("UnmergedFiles() error: %v", err)
	}
	if len(unmerged) != 1 || unmerged[0].Path != "README.md" || unmerged[0].Kind != KindContent {
		t.Fatalf("UnmergedFiles() = %+v, want one content conflict on README.md", unmerged)
	}

	ours, ok, err := ShowStage(ctx, repo, 2, "README.md")
	if err != nil || !ok {
		t.Fatalf("ShowStage(2) = %q, %v, %v", ours, ok, err)
	}
	if ours != "ours\n" {
		t.Errorf("ShowStage(2) = %q, want ours", ours)
	}
	theirs, ok, err := ShowStage(ctx, repo, 3, "README.md")
	if err != nil || !ok {
		t.Fatalf("ShowStage(3) = %q, %v, %v", theirs, ok, err)
	}
	if theirs != "theirs\n" {
		t.Errorf("ShowStage(3) = %q, want theirs", theirs)
	}

	if err := MergeAbort(ctx, repo); err != nil {
		t.Fatalf("MergeAbort() error: %v", err)
	}
	if MergeInProgress(repo) {
		t.Error("MergeInProgress() = true after abort")
	}
}

func TestStashRoundTrip(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	repo := testutil.CloneRepo(t, testutil.CreateBareRepo(t))

	stashed, err := Stash(ctx, repo)
	if err != nil {
		t.Fatalf("Stash() error: %v", err)
	}
	if stashed {
		t.Fatal("Stash() = true on a clean tree")
	}

	if err := os.WriteFile(filepath.Join(repo, "wip.txt"), []byte("wip\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stashed, err = Stash(ctx, repo)
	if err != nil {
		t.Fatalf("Stash() error: %v", err)
	}
	if !stashed {
		t.Fatal("Stash() = false with untracked changes")
	}
	if _, err := os.Stat(filepath.Join(repo, "wip.txt")); !os.IsNotExist(err) {
		t.Fatal("stashed file still present")
	}

	if err := StashPop(ctx, repo); err != nil {
		t.Fatalf("StashPop() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo, "wip.txt")); err != nil {
		t.Fatalf("stashed file not restored: %v", err)
	}
}

func TestPushRejected(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	origin := testutil.CreateBareRepo(t)
	repo := testutil.CloneRepo(t, origin)

	testutil.PushRemoteCommit(t, origin, "a.txt", "a\n", "remote wins")
	testutil.CommitFile(t, repo, "b.txt", "b\n", "stale push")

	err := Push(ctx, repo, "main")
	if !errors.Is(err, ErrPushRejected) {
		t.Fatalf("Push() = %v, want ErrPushRejected", err)
	}
}

func TestCheckoutPathsAndClean(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	repo := testutil.CloneRepo(t, testutil.CreateBareRepo(t))
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("scribbled\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "junk.txt"), []byte("junk\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CheckoutPaths(ctx, repo, "README.md"); err != nil {
		t.Fatalf("CheckoutPaths() error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(repo, "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# test\n" {
		t.Errorf("README.md = %q after checkout, want original", data)
	}

	if err := Clean(ctx, repo); err != nil {
		t.Fatalf("Clean() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo, "junk.txt")); !os.IsNotExist(err) {
		t.Error("untracked file survived Clean()")
	}
}

func TestDiff(t *testing.T) {
	testutil.RequireGit(t)
	ctx := context.Background()

	repo := testutil.CloneRepo(t, testutil.CreateBareRepo(t))
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := Diff(ctx, repo, "README.md")
	if err != nil {
		t.Fatalf("Diff() error: %v", err)
	}
	if !strings.Contains(out, "+changed") {
		t.Errorf("Diff() = %q, want added line", out)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
