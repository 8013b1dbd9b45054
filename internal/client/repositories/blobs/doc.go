// Package blobs persists the vault's opaque named blobs (auth record, email,
// session token, encrypted collections).
//
// The Repository contract is a small key/value API: Get returns (nil, nil)
// for an absent key, Set upserts, and SetMany/DeleteMany apply several
// changes atomically so a transition never leaves half of its blobs written.
//
// Two implementations exist: SQLiteRepository (the on-disk store, atomic ops
// via dbx.WithTx) and MemoryRepository (mutex-guarded map for tests and
// ephemeral sessions). Both are safe for concurrent use.
package blobs
