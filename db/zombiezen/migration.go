package zombiezen

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ApplyMigrations executes every .sql file from fsys against conn, walking
// the directory structure recursively. Statements use IF NOT EXISTS /
// INSERT OR IGNORE throughout, so running the same schema twice is a no-op.
func ApplyMigrations(conn *sqlite.Conn, fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}

		sqlBytes, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("could not read embedded migration file %s: %w", path, err)
		}

		if err := sqlitex.ExecuteScript(conn, string(sqlBytes), nil); err != nil {
			return fmt.Errorf("failed to execute migration file %s: %w", path, err)
		}
		return nil
	})
}
