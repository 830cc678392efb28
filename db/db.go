package db

import (
	"context"
	"time"
)

// Db is the store interface shared by the ingest service and the delivery
// worker. Both sides coordinate exclusively through it; neither holds any
// in-memory state about the other.
type Db interface {
	Close() error

	// InsertEvent commits a new event inside its own transaction, along with
	// one pending RequestAttempt per subscription on the event's
	// application. Returns the store-assigned received_at actually committed
	// for the row, not a client-side clock reading. Returns
	// ErrConstraintUnique if (application_id, event_id) already exists.
	InsertEvent(ctx context.Context, event Event) (time.Time, error)

	// GetApplicationSecret loads a secret by (application_id, token),
	// regardless of its deleted_at state; callers check Usable().
	// Returns ErrNotFound if no such secret exists at all.
	GetApplicationSecret(ctx context.Context, applicationID, token string) (ApplicationSecret, error)

	// CountPayloadContentType reports how many registered content types
	// match name; the ingest algorithm requires this to equal exactly 1.
	CountPayloadContentType(ctx context.Context, name string) (int, error)

	// ResolveRole returns the role a principal holds on an application, or
	// RoleNone if no mapping exists.
	ResolveRole(ctx context.Context, principal, applicationID string) (Role, error)

	// ClaimNextAttempt atomically claims the single oldest eligible row: one
	// that is either unclaimed, or claimed but whose lease has expired
	// (picked_at set, lease_expires_at in the past, no terminal state yet).
	// The claimed row is stamped with workerID/workerVersion, a fresh
	// picked_at, and a lease_expires_at leaseDuration in the future. Returns
	// ErrNoRowsClaimed if nothing is currently eligible. Reclaiming an
	// expired lease is the recovery mechanism for a worker that crashed or
	// was killed mid-dispatch: the row is simply picked up again by whichever
	// worker next polls, with retry_count unchanged.
	ClaimNextAttempt(ctx context.Context, workerID, workerVersion string, leaseDuration time.Duration) (*ClaimedAttempt, error)

	// RecordSuccess inserts the response, links it to the attempt, and marks
	// the attempt succeeded, all inside one transaction, conditional on
	// worker_id and picked_at still matching the values from the claim that
	// produced attempt. Returns ErrLeaseLost if the lease was reclaimed by
	// another worker in the meantime; the caller must not treat that as a
	// failed delivery, since some other worker's result now owns this row.
	RecordSuccess(ctx context.Context, attempt RequestAttempt, resp Response) error

	// RecordFailureAndReschedule inserts the response, links it to the
	// attempt, marks the attempt failed, and inserts a new Pending attempt
	// with retry_count+1 and the given delayUntil, all inside one
	// transaction, conditional on worker_id and picked_at still matching the
	// claim that produced attempt. Returns ErrLeaseLost under the same
	// condition as RecordSuccess; no retry row is inserted in that case,
	// since whichever worker reclaimed the row already owns scheduling it.
	RecordFailureAndReschedule(ctx context.Context, attempt RequestAttempt, resp Response, retryDelayUntil *time.Time) error

	// WriteLogBatch persists a batch of ambient log records. Best-effort;
	// failures here never affect delivery semantics.
	WriteLogBatch(ctx context.Context, records []LogRecord) error
}
