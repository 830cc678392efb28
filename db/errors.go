package db

import "errors"

// Sentinel errors surfaced by store implementations. Callers match with
// errors.Is; the underlying driver error is always wrapped, not discarded.
var (
	ErrNotFound         = errors.New("db: not found")
	ErrConstraintUnique = errors.New("db: unique constraint violated")
	ErrNoRowsClaimed    = errors.New("db: no eligible attempt to claim")

	// ErrLeaseLost is returned by RecordSuccess/RecordFailureAndReschedule
	// when the attempt's lease has already been reclaimed by another worker
	// (worker crash, missed deadline, or a false-positive delivery timeout)
	// by the time the result is reported back. The caller must treat the
	// outcome as discarded: the reclaiming worker's own result is authoritative.
	ErrLeaseLost = errors.New("db: attempt lease no longer owned by this worker")
)
