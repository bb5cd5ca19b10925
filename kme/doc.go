// Package kme provides an in-memory key pool with ETSI 014 semantics.
//
// SimpleKME issues random keys for a (master, slave) pair, optionally shared with
// additional slave SAEs, and hands each key out once to every SAE it was shared
// with. A key is dropped as soon as the last authorized SAE retrieved it.
//
// Nothing is persisted. The store backs the reference KME used to exercise the
// conformance harness and is not meant to distribute real keys.
package kme
