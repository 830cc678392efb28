package zombiezen

import (
	"context"
	"fmt"

	"github.com/caasmo/hookrelay/db"
	"zombiezen.com/go/sqlite/sqlitex"
)

// WriteLogBatch inserts a batch of ambient log records in one transaction.
// Purely diagnostic: never read by the ingest service or the worker.
func (d *Db) WriteLogBatch(ctx context.Context, records []db.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	conn, release, err := d.take(ctx)
	if err != nil {
		return err
	}
	defer release()

	return withTx(conn, func() error {
		for _, r := range records {
			err := sqlitex.Execute(conn,
				`INSERT INTO log (ts, level, message, attrs) VALUES (?, ?, ?, ?);`,
				&sqlitex.ExecOptions{
					Args: []any{formatTime(r.Time), r.Level, r.Message, r.Attrs},
				})
			if err != nil {
				return fmt.Errorf("log batch insert failed: %w", err)
			}
		}
		return nil
	})
}
