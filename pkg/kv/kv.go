// Package kv defines the ordered, transactional byte-key/byte-value store
// the merge engine is built against (spec §6, C1). The store itself — the
// actual embedded database — is an external collaborator per spec §1; this
// package only fixes the contract every caller in this repo programs to.
package kv

import "context"

// Entry is a single (key, value) pair returned by a scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Engine is an ordered, byte-keyed store with transactions.
type Engine interface {
	// Get returns the value for key, or ok=false if it does not exist.
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)
	// Put writes key/value outside of any transaction.
	Put(ctx context.Context, key, value []byte) error
	// Delete removes key outside of any transaction. Deleting a missing
	// key is not an error.
	Delete(ctx context.Context, key []byte) error
	// PrefixScan returns entries whose key has the given prefix, in
	// ascending (or, if reverse, descending) key order.
	//
	// startAfter, when non-nil, is a continuation token: the scan resumes
	// strictly after startAfter in the scan's direction (i.e. strictly
	// before it, in descending key order, when reverse is true).
	//
	// limit bounds the number of entries returned; callers must pass a
	// value already clamped to the store's maximum page size.
	PrefixScan(ctx context.Context, prefix []byte, reverse bool, startAfter []byte, limit int) ([]Entry, error)
	// NewTxn begins a transaction. Reads inside the transaction observe
	// its own uncommitted writes plus whatever is committed to the
	// engine at the time of each read (read-committed, not
	// repeatable-read — spec §4.6 notes each merge commits atomically, so
	// callers only ever observe a merge in its entirety or not at all).
	NewTxn(ctx context.Context) (Txn, error)
	// Clear removes every key and returns the number removed
	// (administrative operation, spec §6).
	Clear(ctx context.Context) (int, error)
}

// Txn is a transaction against an Engine.
type Txn interface {
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	// Commit applies every staged write atomically. On error, nothing
	// staged in the transaction becomes visible (spec §4.4 step 9).
	Commit(ctx context.Context) error
	// Rollback discards every staged write. Safe to call after Commit
	// has already succeeded or failed; it is then a no-op.
	Rollback(ctx context.Context) error
}
