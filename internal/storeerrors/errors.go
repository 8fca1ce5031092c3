// Package storeerrors defines the sentinel error values shared across the
// engine's layers, so callers can use errors.Is instead of matching on
// package-specific types.
package storeerrors

import "errors"

var (
	// ErrNotFound is returned by Get when a key has no live entry.
	// It is not a failure: callers should treat it as a normal result.
	ErrNotFound = errors.New("duskdb: not found")

	// ErrCorruption marks a sorted run whose footer fails to decode or
	// names an unknown format version; sstable.Open wraps it, so a store
	// whose manifest lists such a run fails to open. A torn or
	// checksum-mismatched WAL record is not reported with it: wal.Replay
	// stops at the first bad record and returns what came before it.
	ErrCorruption = errors.New("duskdb: corruption detected")

	// ErrClosed names an operation attempted after Close. No operation
	// returns it: a Store does not track whether it has been closed.
	ErrClosed = errors.New("duskdb: store is closed")

	// ErrRecordTooLarge names a value too large for one WAL record or
	// data block. No operation returns it: neither the WAL nor the
	// sorted-run writer enforces a size limit.
	ErrRecordTooLarge = errors.New("duskdb: record exceeds maximum size")
)
