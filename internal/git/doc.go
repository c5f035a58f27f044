// Package git provides a wrapper around Git CLI commands used by worksync.
// It handles clone, fetch, merge, push, status parsing, and conflict-stage
// extraction without depending on other internal packages. The git binary is
// the version-control primitive; this package only runs commands and parses
// their structured output.
package git
