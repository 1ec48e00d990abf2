package db

import (
	"path/filepath"
	"testing"

	"forumcore/internal/db/migrations"
)

func TestOpenMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "forum.db")
	conn, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	for _, table := range []string{"accounts", "posts", "comments", "reports", "sessions"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	st, err := migrations.CheckStatus(conn)
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if !st.UpToDate() {
		t.Errorf("status = %+v, want up to date", st)
	}
}

func TestOpenTwiceIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forum.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	second.Close()
}

func TestReportTargetCheck(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "forum.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Exec(`INSERT INTO accounts (username, email, password_hash, created_at) VALUES ('a', 'a@x', 'h', CURRENT_TIMESTAMP)`); err != nil {
		t.Fatal(err)
	}
	_, err = conn.Exec(`INSERT INTO reports (reporter_id, reason, created_at) VALUES (1, 'spam', CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Fatal("report with no target was accepted")
	}
}
