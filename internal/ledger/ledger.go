// Package ledger implements the hash-chained, append-only log that serves as
// the system of record for users, incident reports, and report status changes.
//
// The chain begins with a genesis block whose PreviousHash is the literal "0".
// Every subsequent block records the digest of its full predecessor, so any
// tampering with a block breaks the linkage of every block after it.
//
// Higher-level state is never stored separately: users, report timelines,
// escalation lists and SLA deadlines are all derived from the chain by the
// view methods on Ledger.
//
// Persistence is delegated to a Store:
//   - FileStore: a single JSON file replaced atomically after every append.
//   - PostgresStore: a ledger_blocks table written in serialised transactions.
package ledger

import "errors"

// ErrStorageUnavailable is returned by Open when the durable chain exists but
// cannot be read or does not form a valid chain.
var ErrStorageUnavailable = errors.New("ledger storage unavailable")

// ErrPersistFailed is returned by Append when the updated chain could not be
// written. The append has not happened and may be retried.
var ErrPersistFailed = errors.New("ledger persist failed")

// ErrNotFound is returned when a lookup matches no block.
var ErrNotFound = errors.New("not found")
