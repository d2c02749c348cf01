package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"videos", "explanations", "config", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	err = database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	err = db2.Conn().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	if count != 3 {
		t.Errorf("migration count = %d, want 3", count)
	}

	version, err := db2.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "003_explanations" {
		t.Errorf("SchemaVersion() = %q, want 003_explanations", version)
	}
}

func TestMarkInterruptedLoads(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = db1.Conn().Exec(`
		INSERT INTO videos (id, source, status, fetched_at, updated_at)
		VALUES ('vid-1', 'primary', 'loading', datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert video error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var status, errMsg string
	err = db2.Conn().QueryRow("SELECT status, error FROM videos WHERE id = 'vid-1'").Scan(&status, &errMsg)
	if err != nil {
		t.Fatalf("query video error = %v", err)
	}

	if status != "failed" {
		t.Errorf("video status = %s, want failed", status)
	}
	if errMsg != "interrupted by restart" {
		t.Errorf("video error = %s, want 'interrupted by restart'", errMsg)
	}

	n, err := db2.markInterruptedLoads(context.Background())
	if err != nil {
		t.Fatalf("markInterruptedLoads() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second pass changed %d videos, want 0", n)
	}
}

func TestNew_ExplanationsCascade(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	conn := database.Conn()
	if _, err := conn.Exec(`INSERT INTO videos (id, source, status, fetched_at, updated_at) VALUES ('v', 'primary', 'ready', 'now', 'now')`); err != nil {
		t.Fatalf("insert video: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO explanations (video_id, chunk_id, start_ms, end_ms, chunk_text, explanation, created_at) VALUES ('v', 0, 0, 45000, 'text', 'expl', 'now')`); err != nil {
		t.Fatalf("insert explanation: %v", err)
	}
	if _, err := conn.Exec(`DELETE FROM videos WHERE id = 'v'`); err != nil {
		t.Fatalf("delete video: %v", err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM explanations`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("explanations after delete = %d, want 0", count)
	}
}
