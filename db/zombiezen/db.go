// Package zombiezen implements db.Db on top of zombiezen.com/go/sqlite, the
// only SQLite backend this module carries (see DESIGN.md for why the
// teacher's second, crawshaw-based backend was dropped).
package zombiezen

import (
	"context"
	"fmt"
	"runtime"

	"github.com/caasmo/hookrelay/db"
	"github.com/caasmo/hookrelay/migrations"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Db is a pooled connection to the shared SQLite store.
type Db struct {
	pool *sqlitex.Pool
}

var _ db.Db = (*Db)(nil)

// New opens (and, via migrations, prepares) the SQLite file at path with a
// connection pool sized to the host's CPU count, matching the pattern of a
// mostly-single-writer, many-reader workload.
func New(path string) (*Db, error) {
	poolSize := runtime.NumCPU()
	if poolSize < 2 {
		poolSize = 2
	}

	pool, err := sqlitex.NewPool(fmt.Sprintf("file:%s", path), sqlitex.PoolOptions{
		PoolSize: poolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("zombiezen: failed to open pool for %s: %w", path, err)
	}

	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("zombiezen: failed to take migration connection: %w", err)
	}
	migErr := ApplyMigrations(conn, migrations.Schema())
	pool.Put(conn)
	if migErr != nil {
		pool.Close()
		return nil, fmt.Errorf("zombiezen: migrations failed: %w", migErr)
	}

	return &Db{pool: pool}, nil
}

func (d *Db) Close() error {
	return d.pool.Close()
}

func (d *Db) take(ctx context.Context) (*sqlite.Conn, func(), error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("zombiezen: failed to take connection: %w", err)
	}
	return conn, func() { d.pool.Put(conn) }, nil
}

// withTx runs fn inside a BEGIN IMMEDIATE transaction: IMMEDIATE takes
// SQLite's single writer lock up front rather than on first write, which is
// what makes the claim statement in attempts.go race-free across worker
// processes. fn's error, if any, triggers a rollback; otherwise the
// transaction commits.
func withTx(conn *sqlite.Conn, fn func() error) error {
	if err := sqlitex.Execute(conn, "BEGIN IMMEDIATE;", nil); err != nil {
		return fmt.Errorf("zombiezen: begin immediate failed: %w", err)
	}

	if err := fn(); err != nil {
		if rbErr := sqlitex.Execute(conn, "ROLLBACK;", nil); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlitex.Execute(conn, "COMMIT;", nil); err != nil {
		return fmt.Errorf("zombiezen: commit failed: %w", err)
	}
	return nil
}
