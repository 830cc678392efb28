package zombiezen

import (
	"context"
	"fmt"
	"time"

	"github.com/caasmo/hookrelay/db"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// claimStmt is SQLite's equivalent of `SELECT ... FOR UPDATE SKIP LOCKED`:
// a single atomic UPDATE whose subquery picks the oldest eligible row,
// either never picked or whose lease has expired. Run under BEGIN
// IMMEDIATE, this takes SQLite's one writer lock for its duration; a second
// concurrent caller's subquery simply no longer matches the now-picked row
// and claims nothing. An expired lease (picked_at set, lease_expires_at in
// the past, still no terminal state) is the recovery path for a worker that
// crashed or was killed mid-dispatch: the next caller to run this statement
// reclaims the row with a fresh picked_at/lease_expires_at, no separate
// sweep process required.
const claimStmt = `
UPDATE request_attempt
SET picked_at = ?, lease_expires_at = ?, worker_id = ?, worker_version = ?
WHERE request_attempt_id = (
    SELECT request_attempt_id FROM request_attempt
    WHERE succeeded_at IS NULL AND failed_at IS NULL
      AND (delay_until IS NULL OR delay_until <= ?)
      AND (picked_at IS NULL OR lease_expires_at <= ?)
    ORDER BY created_at ASC LIMIT 1
)
AND (picked_at IS NULL OR lease_expires_at <= ?)
RETURNING request_attempt_id;
`

func (d *Db) ClaimNextAttempt(ctx context.Context, workerID, workerVersion string, leaseDuration time.Duration) (*db.ClaimedAttempt, error) {
	conn, release, err := d.take(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var claimed *db.ClaimedAttempt
	now := time.Now().UTC()
	leaseExpiresAt := now.Add(leaseDuration)

	err = withTx(conn, func() error {
		var attemptID string
		err := sqlitex.Execute(conn, claimStmt, &sqlitex.ExecOptions{
			Args: []any{formatTime(now), formatTime(leaseExpiresAt), workerID, workerVersion, formatTime(now), formatTime(now), formatTime(now)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				attemptID = stmt.ColumnText(0)
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("claim update failed: %w", err)
		}
		if attemptID == "" {
			return db.ErrNoRowsClaimed
		}

		claimed, err = loadClaimedAttempt(conn, attemptID)
		return err
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func loadClaimedAttempt(conn *sqlite.Conn, attemptID string) (*db.ClaimedAttempt, error) {
	var out db.ClaimedAttempt
	found := false

	err := sqlitex.Execute(conn,
		`SELECT
			ra.request_attempt_id, ra.event_id, ra.subscription_id, ra.created_at,
			ra.retry_count, ra.delay_until, ra.picked_at, ra.lease_expires_at,
			ra.worker_id, ra.worker_version,
			ra.succeeded_at, ra.failed_at, ra.response_id,
			t.target_id, t.method, t.url, t.headers,
			e.payload, e.payload_content_type
		FROM request_attempt ra
		JOIN subscription s ON s.subscription_id = ra.subscription_id
		JOIN target_http t ON t.target_id = s.target_id
		JOIN event e ON e.event_id = ra.event_id
		WHERE ra.request_attempt_id = ?
		LIMIT 1;`,
		&sqlitex.ExecOptions{
			Args: []any{attemptID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				attempt, err := scanAttempt(stmt)
				if err != nil {
					return err
				}
				out = db.ClaimedAttempt{
					Attempt: attempt,
					Target: db.HTTPTarget{
						TargetID: stmt.GetText("target_id"),
						Method:   stmt.GetText("method"),
						URL:      stmt.GetText("url"),
						Headers:  stmt.GetText("headers"),
					},
					Payload:            []byte(stmt.GetText("payload")),
					PayloadContentType: stmt.GetText("payload_content_type"),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("claimed attempt join failed: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("claimed attempt %s vanished mid-transaction: %w", attemptID, db.ErrNotFound)
	}
	return &out, nil
}

func scanAttempt(stmt *sqlite.Stmt) (db.RequestAttempt, error) {
	createdAt, err := parseTime(stmt.GetText("created_at"))
	if err != nil {
		return db.RequestAttempt{}, fmt.Errorf("parsing created_at: %w", err)
	}

	attempt := db.RequestAttempt{
		RequestAttemptID: stmt.GetText("request_attempt_id"),
		EventID:          stmt.GetText("event_id"),
		SubscriptionID:   stmt.GetText("subscription_id"),
		CreatedAt:        createdAt,
		RetryCount:       int(stmt.GetInt64("retry_count")),
		WorkerID:         stmt.GetText("worker_id"),
		WorkerVersion:    stmt.GetText("worker_version"),
	}

	if v := stmt.GetText("delay_until"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return db.RequestAttempt{}, fmt.Errorf("parsing delay_until: %w", err)
		}
		attempt.DelayUntil = &t
	}
	if v := stmt.GetText("picked_at"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return db.RequestAttempt{}, fmt.Errorf("parsing picked_at: %w", err)
		}
		attempt.PickedAt = &t
	}
	if v := stmt.GetText("lease_expires_at"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return db.RequestAttempt{}, fmt.Errorf("parsing lease_expires_at: %w", err)
		}
		attempt.LeaseExpiresAt = &t
	}
	if v := stmt.GetText("succeeded_at"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return db.RequestAttempt{}, fmt.Errorf("parsing succeeded_at: %w", err)
		}
		attempt.SucceededAt = &t
	}
	if v := stmt.GetText("failed_at"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return db.RequestAttempt{}, fmt.Errorf("parsing failed_at: %w", err)
		}
		attempt.FailedAt = &t
	}
	if v := stmt.GetText("response_id"); v != "" {
		id := v
		attempt.ResponseID = &id
	}

	return attempt, nil
}

func insertResponse(conn *sqlite.Conn, resp db.Response) (string, error) {
	responseID := resp.ResponseID
	if responseID == "" {
		responseID = newUUID()
	}

	var httpCode any
	if resp.HTTPCode != 0 {
		httpCode = resp.HTTPCode
	}
	var errKind any
	if resp.ErrorKind != db.ErrorKindNone {
		errKind = string(resp.ErrorKind)
	}

	err := sqlitex.Execute(conn,
		`INSERT INTO response (
			response_id, response_error_kind, http_code, headers, body, elapsed_time_ms
		) VALUES (?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []any{responseID, errKind, httpCode, resp.Headers, resp.Body, resp.ElapsedTimeMs},
		})
	if err != nil {
		return "", fmt.Errorf("response insert failed: %w", err)
	}
	return responseID, nil
}

// leaseOwnerArgs returns the (worker_id, picked_at) pair identifying the
// lease a claim handed out, the compound key RecordSuccess and
// RecordFailureAndReschedule condition their writes on. picked_at is
// included alongside worker_id, not just worker_id alone, so a result
// reported late by a worker whose lease already expired and was reclaimed by
// the *same* worker_id (a restarted process reusing its configured ID)
// still can't clobber the reclaiming attempt: it would have a different
// picked_at.
func leaseOwnerArgs(attempt db.RequestAttempt) (workerID string, pickedAt string, err error) {
	if attempt.PickedAt == nil {
		return "", "", fmt.Errorf("attempt %s has no picked_at: it was never claimed", attempt.RequestAttemptID)
	}
	return attempt.WorkerID, formatTime(*attempt.PickedAt), nil
}

func (d *Db) RecordSuccess(ctx context.Context, attempt db.RequestAttempt, resp db.Response) error {
	conn, release, err := d.take(ctx)
	if err != nil {
		return err
	}
	defer release()

	workerID, pickedAt, err := leaseOwnerArgs(attempt)
	if err != nil {
		return err
	}

	return withTx(conn, func() error {
		responseID, err := insertResponse(conn, resp)
		if err != nil {
			return err
		}

		if err := sqlitex.Execute(conn,
			`UPDATE request_attempt
			SET response_id = ?, succeeded_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
			WHERE request_attempt_id = ? AND worker_id = ? AND picked_at = ?;`,
			&sqlitex.ExecOptions{Args: []any{responseID, attempt.RequestAttemptID, workerID, pickedAt}},
		); err != nil {
			return fmt.Errorf("attempt success update failed: %w", err)
		}
		if conn.Changes() == 0 {
			return db.ErrLeaseLost
		}
		return nil
	})
}

func (d *Db) RecordFailureAndReschedule(ctx context.Context, attempt db.RequestAttempt, resp db.Response, retryDelayUntil *time.Time) error {
	conn, release, err := d.take(ctx)
	if err != nil {
		return err
	}
	defer release()

	workerID, pickedAt, err := leaseOwnerArgs(attempt)
	if err != nil {
		return err
	}

	return withTx(conn, func() error {
		responseID, err := insertResponse(conn, resp)
		if err != nil {
			return err
		}

		if err := sqlitex.Execute(conn,
			`UPDATE request_attempt
			SET response_id = ?, failed_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
			WHERE request_attempt_id = ? AND worker_id = ? AND picked_at = ?;`,
			&sqlitex.ExecOptions{Args: []any{responseID, attempt.RequestAttemptID, workerID, pickedAt}},
		); err != nil {
			return fmt.Errorf("attempt failure update failed: %w", err)
		}
		if conn.Changes() == 0 {
			return db.ErrLeaseLost
		}

		var delayArg any
		if retryDelayUntil != nil {
			delayArg = formatTime(*retryDelayUntil)
		}

		return sqlitex.Execute(conn,
			`INSERT INTO request_attempt (
				request_attempt_id, event_id, subscription_id, created_at, retry_count, delay_until
			) VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'), ?, ?);`,
			&sqlitex.ExecOptions{
				Args: []any{newUUID(), attempt.EventID, attempt.SubscriptionID, attempt.RetryCount + 1, delayArg},
			})
	})
}
