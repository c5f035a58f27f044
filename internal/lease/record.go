package lease

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is the stored representation of a held lease.
type Record struct {
	Holder     string `yaml:"holder"`
	Token      string `yaml:"token"`
	AcquiredAt string `yaml:"acquired_at"`
	ExpiresAt  string `yaml:"expires_at"`
}

// Parse parses a lease record.
func Parse(data []byte) (*Record, error) {
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing lease YAML: %w", err)
	}
	return &r, nil
}

// Marshal serializes a lease record.
func Marshal(r *Record) ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling lease: %w", err)
	}
	return data, nil
}

// ExpiredAt reports whether the record's expiry is at or before now.
// Records with an unparseable expiry count as expired so a corrupt lease
// cannot wedge a repository forever.
func (r *Record) ExpiredAt(now time.Time) bool {
	exp, err := time.Parse(time.RFC3339, r.ExpiresAt)
	if err != nil {
		return true
	}
	return !exp.After(now)
}
