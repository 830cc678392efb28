package zombiezen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caasmo/hookrelay/db"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// InsertEvent commits the event and one pending request_attempt per
// subscription on its application, inside a single transaction, so the
// worker never observes an event with zero or partial attempts. The
// returned time.Time is read back from the row itself via RETURNING, so
// callers report the store's clock, not their own.
func (d *Db) InsertEvent(ctx context.Context, event db.Event) (time.Time, error) {
	conn, release, err := d.take(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer release()

	var receivedAt time.Time

	err = withTx(conn, func() error {
		var receivedAtText string
		err := sqlitex.Execute(conn,
			`INSERT INTO event (
				application_id, event_id, event_type, payload, payload_content_type,
				ip, metadata, occurred_at, received_at, application_secret_token, labels
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'), ?, ?)
			RETURNING received_at;`,
			&sqlitex.ExecOptions{
				Args: []any{
					event.ApplicationID, event.EventID, event.EventType, event.Payload,
					event.PayloadContentType, event.IP, event.Metadata,
					formatTime(event.OccurredAt), event.ApplicationSecretToken, event.Labels,
				},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					receivedAtText = stmt.ColumnText(0)
					return nil
				},
			})
		if err != nil {
			if isUniqueConstraint(err) {
				return fmt.Errorf("event insert: %w: %w", db.ErrConstraintUnique, err)
			}
			return fmt.Errorf("event insert failed: %w", err)
		}

		receivedAt, err = parseTime(receivedAtText)
		if err != nil {
			return fmt.Errorf("parsing received_at: %w", err)
		}

		err = sqlitex.Execute(conn,
			`INSERT INTO request_attempt (
				request_attempt_id, event_id, subscription_id, created_at, retry_count
			)
			SELECT lower(hex(randomblob(16))), ?, s.subscription_id,
				strftime('%Y-%m-%dT%H:%M:%fZ','now'), 0
			FROM subscription s
			WHERE s.application_id = ?;`,
			&sqlitex.ExecOptions{Args: []any{event.EventID, event.ApplicationID}})
		if err != nil {
			return fmt.Errorf("attempt fan-out insert failed: %w", err)
		}

		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return receivedAt, nil
}

// GetApplicationSecret loads a secret regardless of its deleted_at state;
// callers decide usability via ApplicationSecret.Usable().
func (d *Db) GetApplicationSecret(ctx context.Context, applicationID, token string) (db.ApplicationSecret, error) {
	conn, release, err := d.take(ctx)
	if err != nil {
		return db.ApplicationSecret{}, err
	}
	defer release()

	var secret db.ApplicationSecret
	found := false

	err = sqlitex.Execute(conn,
		`SELECT application_id, token, name, created_at, deleted_at
		FROM application_secret WHERE application_id = ? AND token = ? LIMIT 1;`,
		&sqlitex.ExecOptions{
			Args: []any{applicationID, token},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				createdAt, err := parseTime(stmt.GetText("created_at"))
				if err != nil {
					return fmt.Errorf("parsing created_at: %w", err)
				}
				secret = db.ApplicationSecret{
					ApplicationID: stmt.GetText("application_id"),
					Token:         stmt.GetText("token"),
					Name:          stmt.GetText("name"),
					CreatedAt:     createdAt,
				}
				if deleted := stmt.GetText("deleted_at"); deleted != "" {
					t, err := parseTime(deleted)
					if err != nil {
						return fmt.Errorf("parsing deleted_at: %w", err)
					}
					secret.DeletedAt = &t
				}
				return nil
			},
		})
	if err != nil {
		return db.ApplicationSecret{}, fmt.Errorf("application_secret lookup failed: %w", err)
	}
	if !found {
		return db.ApplicationSecret{}, db.ErrNotFound
	}
	return secret, nil
}

func (d *Db) CountPayloadContentType(ctx context.Context, name string) (int, error) {
	conn, release, err := d.take(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var count int64
	err = sqlitex.Execute(conn,
		`SELECT count(*) FROM payload_content_type WHERE name = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("payload_content_type count failed: %w", err)
	}
	return int(count), nil
}

// ResolveRole reads the principal's role on an application. The role table
// is an addition beyond the core schema (§6 treats identity/role extraction
// as an external collaborator); see DESIGN.md.
func (d *Db) ResolveRole(ctx context.Context, principal, applicationID string) (db.Role, error) {
	conn, release, err := d.take(ctx)
	if err != nil {
		return db.RoleNone, err
	}
	defer release()

	role := db.RoleNone
	err = sqlitex.Execute(conn,
		`SELECT role FROM application_role WHERE principal = ? AND application_id = ? LIMIT 1;`,
		&sqlitex.ExecOptions{
			Args: []any{principal, applicationID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				role = parseRole(stmt.GetText("role"))
				return nil
			},
		})
	if err != nil {
		return db.RoleNone, fmt.Errorf("application_role lookup failed: %w", err)
	}
	return role, nil
}

func parseRole(s string) db.Role {
	switch strings.ToLower(s) {
	case "owner":
		return db.RoleOwner
	case "editor":
		return db.RoleEditor
	case "viewer":
		return db.RoleViewer
	default:
		return db.RoleNone
	}
}

func isUniqueConstraint(err error) bool {
	return sqlite.ErrCode(err) == sqlite.CONSTRAINT_UNIQUE || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
