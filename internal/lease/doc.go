// Package lease implements per-repository mutual exclusion across worker
// processes. A lease is a small YAML record in the blob store written with
// conditional requests; expiry recovers from crashed holders without any
// extra infrastructure.
package lease
