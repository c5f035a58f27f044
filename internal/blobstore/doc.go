// Package blobstore abstracts the object store that holds the durable copy
// of every working tree. Objects are addressed by flat string keys; listing
// and deletion operate on key prefixes. Conditional writes (create-if-absent
// and compare-and-swap on ETag) back the distributed lease.
package blobstore
