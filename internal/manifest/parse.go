package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates the manifest from its fixed path under workDir.
func Load(workDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(workDir, filepath.FromSlash(Path))) //nolint:gosec // fixed tree path
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates manifest content.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest YAML: %w", err)
	}
	if err := validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Preflight validates the committed manifest state of a tree: the manifest
// parses and no entry path escapes the tree. Run before every commit.
func Preflight(workDir string) error {
	if _, err := Load(workDir); err != nil {
		return err
	}
	return nil
}

func validate(m *Manifest) error {
	if m.Version != 1 {
		return fmt.Errorf("unsupported manifest version: %d (expected 1)", m.Version)
	}
	if m.Repo == "" {
		return fmt.Errorf("manifest: repo is required")
	}

	seenKey := make(map[string]string, len(m.Entries))
	seenID := make(map[string]string, len(m.Entries))
	for i, e := range m.Entries {
		if e.ID == "" || e.Kind == "" || e.Name == "" {
			return fmt.Errorf("manifest: entries[%d]: id, kind and name are required", i)
		}
		if err := validatePath(e.Path, fmt.Sprintf("entries[%d] (%s)", i, e.ID)); err != nil {
			return err
		}
		key := e.NaturalKey()
		if prev, dup := seenKey[key]; dup {
			return fmt.Errorf("manifest: duplicate natural key %q (paths %s, %s)", key, prev, e.Path)
		}
		if prev, dup := seenID[e.ID]; dup {
			return fmt.Errorf("manifest: duplicate entity id %q (paths %s, %s)", e.ID, prev, e.Path)
		}
		seenKey[key] = e.Path
		seenID[e.ID] = e.Path
	}
	return nil
}

// validatePath ensures an entry path is relative and does not escape the tree.
func validatePath(p, label string) error {
	if p == "" {
		return fmt.Errorf("manifest: %s: path is required", label)
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("manifest: %s: absolute path is not allowed: %s", label, p)
	}
	cleaned := filepath.Clean(filepath.FromSlash(p))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("manifest: %s: path must not escape the tree (contains ..): %s", label, p)
	}
	return nil
}
