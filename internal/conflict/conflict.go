// Package conflict models merge conflicts and applies per-file resolution
// choices to a working tree ahead of a merge commit.
package conflict

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fbkclanna/worksync/internal/git"
)

// Choice selects which side of a conflict wins.
type Choice string

const (
	ChoiceOurs   Choice = "ours"
	ChoiceTheirs Choice = "theirs"
	ChoiceCustom Choice = "custom"
)

// Entry is one conflicted path with both sides captured. Content is held
// here (not re-read from index stages) so that resolution survives crashes
// between the conflicting pull and the resolve call.
type Entry struct {
	Path      string           `yaml:"path"`
	Kind      git.ConflictKind `yaml:"kind"`
	Ours      string           `yaml:"ours,omitempty"`
	Theirs    string           `yaml:"theirs,omitempty"`
	HasOurs   bool             `yaml:"has_ours"`
	HasTheirs bool             `yaml:"has_theirs"`
}

// Resolution is the caller's decision for one path.
type Resolution struct {
	Path    string `yaml:"path"`
	Choice  Choice `yaml:"choice"`
	Content string `yaml:"content,omitempty"`
}

// Collect builds the conflict set from the unmerged index of a tree where a
// merge has stopped. Ours is the local HEAD side (stage 2), Theirs the
// incoming side (stage 3); a missing side marks a delete-modify conflict.
func Collect(ctx context.Context, repoDir string) ([]Entry, error) {
	unmerged, err := git.UnmergedFiles(ctx, repoDir)
	if err != nil {
		return nil, fmt.Errorf("listing unmerged files: %w", err)
	}
	entries := make([]Entry, 0, len(unmerged))
	for _, u := range unmerged {
		e := Entry{Path: u.Path, Kind: u.Kind}
		if e.Ours, e.HasOurs, err = git.ShowStage(ctx, repoDir, 2, u.Path); err != nil {
			return nil, fmt.Errorf("reading ours for %s: %w", u.Path, err)
		}
		if e.Theirs, e.HasTheirs, err = git.ShowStage(ctx, repoDir, 3, u.Path); err != nil {
			return nil, fmt.Errorf("reading theirs for %s: %w", u.Path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Unresolved returns the paths in the active conflict set that the given
// resolutions do not address. A merge commit must be refused while this is
// non-empty.
func Unresolved(entries []Entry, resolutions []Resolution) []string {
	resolved := make(map[string]bool, len(resolutions))
	for _, r := range resolutions {
		resolved[r.Path] = true
	}
	var missing []string
	for _, e := range entries {
		if !resolved[e.Path] {
			missing = append(missing, e.Path)
		}
	}
	return missing
}

// Apply writes each resolution into the working tree: ours restores the
// local version, theirs the incoming one, custom the supplied content.
// Choosing a deleted side removes the file. Resolutions for paths outside
// the conflict set are rejected.
func Apply(workDir string, entries []Entry, resolutions []Resolution) error {
	byPath := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byPath[e.Path] = e
	}

	for _, r := range resolutions {
		e, ok := byPath[r.Path]
		if !ok {
			return fmt.Errorf("resolution for %q: path is not in the conflict set", r.Path)
		}
		switch r.Choice {
		case ChoiceOurs:
			if err := writeOrRemove(workDir, e.Path, e.Ours, e.HasOurs); err != nil {
				return err
			}
		case ChoiceTheirs:
			if err := writeOrRemove(workDir, e.Path, e.Theirs, e.HasTheirs); err != nil {
				return err
			}
		case ChoiceCustom:
			if err := writeOrRemove(workDir, e.Path, r.Content, true); err != nil {
				return err
			}
		default:
			return fmt.Errorf("resolution for %q: unknown choice %q", r.Path, r.Choice)
		}
	}
	return nil
}

func writeOrRemove(workDir, path, content string, exists bool) error {
	full := filepath.Join(workDir, path)
	if !exists {
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil { //nolint:gosec // tree content
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
