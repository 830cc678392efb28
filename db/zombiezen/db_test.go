package zombiezen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caasmo/hookrelay/db"
	"github.com/caasmo/hookrelay/migrations"
	"zombiezen.com/go/sqlite/sqlitex"
)

// newTestDB opens a shared-cache in-memory database so every connection in
// the pool sees the same data, and applies the full embedded schema.
func newTestDB(t *testing.T) *Db {
	t.Helper()

	pool, err := sqlitex.NewPool("file::memory:?cache=shared", sqlitex.PoolOptions{
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("failed to create db pool: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("failed to close db pool: %v", err)
		}
	})

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("failed to get db connection: %v", err)
	}
	if err := ApplyMigrations(conn, migrations.Schema()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	pool.Put(conn)

	return &Db{pool: pool}
}

func seedApplication(t *testing.T, d *Db, applicationID, secretToken, targetURL string) string {
	t.Helper()
	ctx := context.Background()
	conn, release, err := d.take(ctx)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	defer release()

	if err := sqlitex.Execute(conn,
		`INSERT INTO application_secret (application_id, token, name) VALUES (?, ?, 'default');`,
		&sqlitex.ExecOptions{Args: []any{applicationID, secretToken}}); err != nil {
		t.Fatalf("seed secret: %v", err)
	}

	if err := sqlitex.Execute(conn,
		`INSERT INTO target_http (target_id, method, url) VALUES (?, 'POST', ?);`,
		&sqlitex.ExecOptions{Args: []any{applicationID + "-target", targetURL}}); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	subscriptionID := applicationID + "-sub"
	if err := sqlitex.Execute(conn,
		`INSERT INTO subscription (subscription_id, application_id, target_id) VALUES (?, ?, ?);`,
		&sqlitex.ExecOptions{Args: []any{subscriptionID, applicationID, applicationID + "-target"}}); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	return subscriptionID
}

func TestInsertEvent_FansOutRequestAttempts(t *testing.T) {
	d := newTestDB(t)
	seedApplication(t, d, "app-1", "tok-1", "https://example.test/hook")

	receivedAt, err := d.InsertEvent(context.Background(), db.Event{
		ApplicationID:      "app-1",
		EventID:            "evt-1",
		EventType:          "order.created",
		Payload:            []byte(`{}`),
		PayloadContentType: "application/json",
		IP:                 "203.0.113.9",
		OccurredAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if receivedAt.IsZero() {
		t.Fatalf("expected a non-zero store-assigned received_at")
	}

	claimed, err := d.ClaimNextAttempt(context.Background(), "worker-1", "v1", time.Minute)
	if err != nil {
		t.Fatalf("expected a fanned-out attempt to be claimable: %v", err)
	}
	if claimed.Attempt.EventID != "evt-1" {
		t.Fatalf("expected attempt for evt-1, got %s", claimed.Attempt.EventID)
	}
	if claimed.Target.URL != "https://example.test/hook" {
		t.Fatalf("expected joined target URL, got %s", claimed.Target.URL)
	}
}

func TestInsertEvent_DuplicateIsUniqueConstraint(t *testing.T) {
	d := newTestDB(t)
	seedApplication(t, d, "app-1", "tok-1", "https://example.test/hook")

	event := db.Event{
		ApplicationID:      "app-1",
		EventID:            "evt-1",
		PayloadContentType: "application/json",
		IP:                 "203.0.113.9",
		OccurredAt:         time.Now().UTC(),
	}
	if _, err := d.InsertEvent(context.Background(), event); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err := d.InsertEvent(context.Background(), event)
	if !errors.Is(err, db.ErrConstraintUnique) {
		t.Fatalf("expected the second insert to fail with ErrConstraintUnique, got %v", err)
	}
}

func TestGetApplicationSecret_NotFound(t *testing.T) {
	d := newTestDB(t)
	_, err := d.GetApplicationSecret(context.Background(), "app-1", "nope")
	if err != db.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetApplicationSecret_Found(t *testing.T) {
	d := newTestDB(t)
	seedApplication(t, d, "app-1", "tok-1", "https://example.test/hook")

	secret, err := d.GetApplicationSecret(context.Background(), "app-1", "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !secret.Usable() {
		t.Fatalf("expected a fresh secret to be usable")
	}
}

func TestCountPayloadContentType_SeededByMigration(t *testing.T) {
	d := newTestDB(t)
	count, err := d.CountPayloadContentType(context.Background(), "application/json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the migration to seed application/json once, got %d", count)
	}
}

func TestCountPayloadContentType_Unregistered(t *testing.T) {
	d := newTestDB(t)
	count, err := d.CountPayloadContentType(context.Background(), "application/not-a-type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for an unregistered content type, got %d", count)
	}
}

func TestResolveRole_NoRowIsRoleNone(t *testing.T) {
	d := newTestDB(t)
	role, err := d.ResolveRole(context.Background(), "user-1", "app-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != db.RoleNone {
		t.Fatalf("expected RoleNone, got %v", role)
	}
}

func TestResolveRole_ReturnsSeededRole(t *testing.T) {
	d := newTestDB(t)
	conn, release, err := d.take(context.Background())
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := sqlitex.Execute(conn,
		`INSERT INTO application_role (principal, application_id, role) VALUES (?, ?, ?);`,
		&sqlitex.ExecOptions{Args: []any{"user-1", "app-1", "editor"}}); err != nil {
		release()
		t.Fatalf("seed role: %v", err)
	}
	release()

	role, err := d.ResolveRole(context.Background(), "user-1", "app-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != db.RoleEditor {
		t.Fatalf("expected RoleEditor, got %v", role)
	}
}
