package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fbkclanna/worksync/internal/conflict"
)

// Phase is the persisted position of a repository in the sync state machine.
// Transient phases are written while an operation runs so that a crashed
// worker leaves a diagnosable record behind.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseFetching      Phase = "fetching"
	PhaseCommitting    Phase = "committing"
	PhaseSyncing       Phase = "syncing"
	PhaseMergeConflict Phase = "merge_conflict"
	PhaseResolving     Phase = "resolving"
)

// State is the persisted sync state of one repository. While the phase is
// merge_conflict the conflict set is carried here so that subsequent sync
// calls short-circuit to it instead of re-pulling.
type State struct {
	Phase     Phase  `yaml:"phase"`
	UpdatedAt string `yaml:"updated_at"`
	// Stashed records that uncommitted changes were stashed before the pull
	// that conflicted and must be restored after resolve or abort.
	Stashed   bool             `yaml:"stashed,omitempty"`
	Conflicts []conflict.Entry `yaml:"conflicts,omitempty"`
}

// StatePath returns the fixed location of the state record inside a tree.
func StatePath(dir string) string {
	return filepath.Join(dir, ".git", "worksync", "state.yaml")
}

// LoadState reads the state record for the tree at dir. A missing record is
// an idle state, not an error.
func LoadState(dir string) (*State, error) {
	data, err := os.ReadFile(StatePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Phase: PhaseIdle}, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing state YAML: %w", err)
	}
	if st.Phase == "" {
		st.Phase = PhaseIdle
	}
	return &st, nil
}

// SaveState writes the state record for the tree at dir.
func SaveState(dir string, st *State) error {
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	path := StatePath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // worker-local metadata
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}
