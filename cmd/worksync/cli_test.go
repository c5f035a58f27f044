package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/testutil"
)

// cliEnv holds everything a CLI invocation needs: a real origin, a
// directory-backed store and a workspace root.
type cliEnv struct {
	origin   string
	storeDir string
	root     string
	dbPath   string
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	testutil.RequireGit(t)
	return &cliEnv{
		origin:   testutil.CreateBareRepo(t),
		storeDir: t.TempDir(),
		root:     t.TempDir(),
		dbPath:   filepath.Join(t.TempDir(), "entities.db"),
	}
}

func (e *cliEnv) args(extra ...string) []string {
	base := []string{
		"--root", e.root,
		"--store-dir", e.storeDir,
		"--tenant", "acme",
		"--repo", "app",
		"--origin", e.origin,
		"--db", e.dbPath,
	}
	return append(base, extra...)
}

// treeDir is where the engine keeps the local working tree.
func (e *cliEnv) treeDir() string {
	return filepath.Join(e.root, "acme", "app")
}

func runCLI(t *testing.T, args []string) string {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\noutput: %s", args, err, buf.String())
	}
	return buf.String()
}

func runCLIErr(t *testing.T, args []string) error {
	t.Helper()
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	return root.Execute()
}

func TestCLI_fetchCommitSyncRoundTrip(t *testing.T) {
	env := setupCLI(t)

	out := runCLI(t, env.args("fetch"))
	if !strings.Contains(out, "Fetched acme/app") {
		t.Errorf("fetch output = %q", out)
	}

	if err := os.WriteFile(filepath.Join(env.treeDir(), "flows.yaml"),
		[]byte("id: ent-1\nkind: flow\nname: checkout\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out = runCLI(t, env.args("commit", "-m", "add flow"))
	if !strings.Contains(out, "Committed") {
		t.Errorf("commit output = %q", out)
	}

	out = runCLI(t, env.args("sync"))
	if !strings.Contains(out, "pushed=true") || !strings.Contains(out, "imported 1") {
		t.Errorf("sync output = %q", out)
	}

	out = runCLI(t, env.args("status", "--json"))
	var st engine.StatusResult
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("invalid JSON status: %v\noutput: %s", err, out)
	}
	if !st.Initialized || st.CommitsAhead != 0 || len(st.Modified) != 0 {
		t.Errorf("status after sync = %+v", st)
	}
}

func TestCLI_statusUninitialized(t *testing.T) {
	env := setupCLI(t)
	out := runCLI(t, env.args("status"))
	if !strings.Contains(out, "not initialized") {
		t.Errorf("status output = %q", out)
	}
}

func TestCLI_conflictResolveFlow(t *testing.T) {
	env := setupCLI(t)

	runCLI(t, env.args("fetch"))
	if err := os.WriteFile(filepath.Join(env.treeDir(), "README.md"), []byte("# local\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runCLI(t, env.args("commit", "-m", "local readme"))
	testutil.PushRemoteCommit(t, env.origin, "README.md", "# remote\n", "remote readme")

	out := runCLI(t, env.args("sync"))
	if !strings.Contains(out, "merge conflicts") || !strings.Contains(out, "README.md") {
		t.Errorf("conflicted sync output = %q", out)
	}

	out = runCLI(t, env.args("resolve", "--theirs", "README.md", "-m", "take remote"))
	if !strings.Contains(out, "Conflicts resolved") {
		t.Errorf("resolve output = %q", out)
	}

	data, err := os.ReadFile(filepath.Join(env.treeDir(), "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# remote\n" {
		t.Errorf("README.md = %q after resolve --theirs", data)
	}

	out = runCLI(t, env.args("sync"))
	if !strings.Contains(out, "pushed=true") {
		t.Errorf("post-resolve sync output = %q", out)
	}
}

func TestCLI_abortRestores(t *testing.T) {
	env := setupCLI(t)

	runCLI(t, env.args("fetch"))
	if err := os.WriteFile(filepath.Join(env.treeDir(), "README.md"), []byte("# local\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runCLI(t, env.args("commit", "-m", "local readme"))
	testutil.PushRemoteCommit(t, env.origin, "README.md", "# remote\n", "remote readme")
	runCLI(t, env.args("sync"))

	out := runCLI(t, env.args("abort"))
	if !strings.Contains(out, "Merge aborted") {
		t.Errorf("abort output = %q", out)
	}

	data, err := os.ReadFile(filepath.Join(env.treeDir(), "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# local\n" {
		t.Errorf("README.md = %q after abort", data)
	}
}

func TestCLI_diffAndDiscard(t *testing.T) {
	env := setupCLI(t)

	runCLI(t, env.args("fetch"))
	runCLI(t, env.args("commit", "-m", "baseline"))
	if err := os.WriteFile(filepath.Join(env.treeDir(), "README.md"), []byte("scribbled\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := runCLI(t, env.args("diff", "README.md"))
	if !strings.Contains(out, "+scribbled") {
		t.Errorf("diff output = %q", out)
	}

	out = runCLI(t, env.args("discard", "--all"))
	if !strings.Contains(out, "discarded") {
		t.Errorf("discard output = %q", out)
	}
	data, err := os.ReadFile(filepath.Join(env.treeDir(), "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# test\n" {
		t.Errorf("README.md = %q after discard", data)
	}
}

func TestCLI_discardRequiresScope(t *testing.T) {
	env := setupCLI(t)
	if err := runCLIErr(t, env.args("discard")); err == nil {
		t.Error("discard without paths or --all should fail")
	}
	if err := runCLIErr(t, env.args("discard", "--all", "README.md")); err == nil {
		t.Error("discard --all with paths should fail")
	}
}

func TestCLI_flagValidation(t *testing.T) {
	env := setupCLI(t)

	// Missing store backend.
	err := runCLIErr(t, []string{
		"--root", env.root, "--tenant", "acme", "--repo", "app", "fetch",
	})
	if err == nil {
		t.Error("fetch without --bucket or --store-dir should fail")
	}

	// Missing handle.
	err = runCLIErr(t, []string{
		"--root", env.root, "--store-dir", env.storeDir, "fetch",
	})
	if err == nil {
		t.Error("fetch without --tenant/--repo should fail")
	}
}
