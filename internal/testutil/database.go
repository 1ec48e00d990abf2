package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"forumcore/internal/db"
)

// NewDB opens a migrated SQLite database in a temporary directory. It is
// closed when the test finishes.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
