package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// entityHeader is the minimal shape a YAML document must carry to count as
// an entity.
type entityHeader struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
}

// Generate scans the tree at workDir for entity documents and builds a
// fresh manifest. VCS metadata and the manifest's own directory are skipped.
func Generate(workDir, repo string) (*Manifest, error) {
	var entries []Entry

	err := filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", ".worksync":
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := os.ReadFile(path) //nolint:gosec // path comes from the tree walk
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var hdr entityHeader
		if err := yaml.Unmarshal(data, &hdr); err != nil {
			// Not every YAML file is an entity document.
			return nil
		}
		if hdr.ID == "" || hdr.Kind == "" || hdr.Name == "" {
			return nil
		}

		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		entries = append(entries, Entry{
			ID:       hdr.ID,
			Kind:     hdr.Kind,
			Name:     hdr.Name,
			Path:     filepath.ToSlash(rel),
			Checksum: hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", workDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return &Manifest{
		Version:     1,
		Repo:        repo,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:     entries,
	}, nil
}

// Write serializes the manifest to its fixed path under workDir.
func Write(workDir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(workDir, filepath.FromSlash(Path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // generated index
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Regenerate scans the tree and rewrites the manifest in place. When the
// entry set is unchanged the existing file is left alone, timestamp
// included, so regeneration never dirties a clean tree.
func Regenerate(workDir, repo string) (*Manifest, error) {
	m, err := Generate(workDir, repo)
	if err != nil {
		return nil, err
	}
	if prev, err := Load(workDir); err == nil && prev.Repo == m.Repo && entriesEqual(prev.Entries, m.Entries) {
		return prev, nil
	}
	if err := Write(workDir, m); err != nil {
		return nil, err
	}
	return m, nil
}

func entriesEqual(a, b []Entry) bool {
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
