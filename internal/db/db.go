// Package db opens the agent's SQLite store of videos, explanations and
// settings, and brings its schema up to date.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/tubelearn/tubelearn-agent/internal/logging"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

const schemaTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// connPragmas are applied once on the single pooled connection.
var connPragmas = []string{
	"journal_mode=WAL",
	"busy_timeout=5000",
	"foreign_keys=ON",
}

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the store at dbPath, applies pending schema
// migrations and fails any transcript load left running by a previous process.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithComponent(logger, "store")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	conn, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	d := &DB{conn: conn, logger: logger}

	ctx := context.Background()
	applied, err := d.migrate(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate store schema: %w", err)
	}

	interrupted, err := d.markInterruptedLoads(ctx)
	if err != nil {
		logger.Warn("failed to fail interrupted transcript loads", "error", err)
	} else if interrupted > 0 {
		logger.Info("failed interrupted transcript loads", "videos", interrupted)
	}

	version, _ := d.SchemaVersion(ctx)
	logger.Info("store ready", "path", logging.SanitizePath(dbPath), "schema", version, "migrations_applied", len(applied))
	return d, nil
}

func open(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite serialises writers; one connection keeps the pragmas in effect.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, p := range connPragmas {
		if _, err := conn.Exec("PRAGMA " + p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}
	return conn, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// SchemaVersion returns the name of the newest applied migration.
func (d *DB) SchemaVersion(ctx context.Context) (string, error) {
	var name sql.NullString
	if err := d.conn.QueryRowContext(ctx, `SELECT MAX(name) FROM schema_migrations`).Scan(&name); err != nil {
		return "", err
	}
	return strings.TrimSuffix(name.String, ".sql"), nil
}

// migrate applies every embedded migration not yet recorded, each in its own
// transaction, in file name order. It returns the names it applied.
func (d *DB) migrate(ctx context.Context) ([]string, error) {
	if _, err := d.conn.ExecContext(ctx, schemaTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := d.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := schemaFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var pending []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") && !done[e.Name()] {
			pending = append(pending, e.Name())
		}
	}
	sort.Strings(pending)

	for _, name := range pending {
		if err := d.apply(ctx, name); err != nil {
			return nil, err
		}
		d.logger.Info("applied schema migration", "migration", name)
	}
	return pending, nil
}

func (d *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (d *DB) apply(ctx context.Context, name string) error {
	body, err := schemaFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// markInterruptedLoads fails videos whose transcript load was cut short by a
// restart, returning how many it changed.
func (d *DB) markInterruptedLoads(ctx context.Context) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE videos SET status = 'failed', error = 'interrupted by restart', updated_at = datetime('now') WHERE status = 'loading'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
