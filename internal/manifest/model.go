// Package manifest generates and parses the machine-written entity index at
// a fixed path inside every working tree. The manifest enumerates the
// logical entities represented in the tree and is regenerated from tree
// content before commit, status, and fetch; it is never hand-edited.
package manifest

import "path/filepath"

// Path is the fixed manifest location relative to the working tree root.
const Path = ".worksync/manifest.yaml"

// Manifest is the generated entity index for one repository.
type Manifest struct {
	Version     int     `yaml:"version"`
	Repo        string  `yaml:"repo"`
	GeneratedAt string  `yaml:"generated_at"`
	Entries     []Entry `yaml:"entries"`
}

// Entry describes one entity document found in the tree.
type Entry struct {
	// ID is the entity's surrogate identifier as written in the document.
	ID string `yaml:"id"`
	// Kind and Name form the entity's natural key.
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
	// Path is the document location relative to the tree root.
	Path string `yaml:"path"`
	// Checksum is the sha256 of the document content.
	Checksum string `yaml:"checksum"`
}

// NaturalKey returns the domain-derived uniqueness key for this entry.
func (e Entry) NaturalKey() string {
	return e.Kind + "/" + e.Name
}

// AbsPath returns the entry's absolute path under the given tree root.
func (e Entry) AbsPath(workDir string) string {
	return filepath.Join(workDir, filepath.FromSlash(e.Path))
}
