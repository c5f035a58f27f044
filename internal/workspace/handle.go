package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Handle identifies one logical repository. It maps to a blob-store key
// prefix and a local working directory; at most one local directory exists
// per handle.
type Handle struct {
	Tenant string
	Repo   string
	// Origin is the git remote URL used to bootstrap a handle whose blob
	// prefix is still empty.
	Origin string
	// Branch is the branch this handle tracks. Defaults to main.
	Branch string
}

// Validate checks that the handle can be mapped to paths and keys.
func (h Handle) Validate() error {
	for label, v := range map[string]string{"tenant": h.Tenant, "repo": h.Repo} {
		if v == "" {
			return fmt.Errorf("handle: %s is required", label)
		}
		if strings.ContainsAny(v, "/\\") || v == "." || v == ".." {
			return fmt.Errorf("handle: invalid %s %q", label, v)
		}
	}
	return nil
}

// ID returns the canonical tenant-scoped identifier.
func (h Handle) ID() string {
	return h.Tenant + "/" + h.Repo
}

// EffectiveBranch returns the tracked branch, defaulting to main.
func (h Handle) EffectiveBranch() string {
	if h.Branch != "" {
		return h.Branch
	}
	return "main"
}

// Prefix returns the blob-store key prefix owned by this handle.
func (h Handle) Prefix() string {
	return h.Tenant + "/" + h.Repo + "/"
}

// TreePrefix returns the key prefix holding the working tree objects.
func (h Handle) TreePrefix() string {
	return h.Prefix() + "tree/"
}

// LeaseKey returns the key of this handle's distributed lease record.
func (h Handle) LeaseKey() string {
	return h.Prefix() + "lease"
}

// Dir returns the local working directory for this handle under root.
func (h Handle) Dir(root string) string {
	return filepath.Join(root, h.Tenant, h.Repo)
}
