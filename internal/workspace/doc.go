// Package workspace resolves repository handles to local directories and
// blob-store key prefixes, and persists the per-repository sync state record
// inside the tree's VCS metadata so it travels with the tree through
// sync-up and sync-down.
package workspace
