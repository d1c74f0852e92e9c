// Package audit is the append-only operational event log shared by all
// four drivers: one row per rule-set reload, schema
// mismatch, endpoint rotation, or clean/fatal shutdown. It is operational
// bookkeeping, not a storage engine for flow records (the Non-goal "no
// storage engine of its own" is unaffected).
package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite3driver "github.com/mattn/go-sqlite3"
	sqlhooks "github.com/qustavo/sqlhooks/v2"
)

//go:embed migrations/sqlite3
var migrationFiles embed.FS

var registerHooksOnce sync.Once

// DB is the audit log's storage handle.
type DB struct {
	conn *sqlx.DB
}

// Open connects to (and migrates up) the SQLite-backed audit log at path.
func Open(path string) (*DB, error) {
	registerHooksOnce.Do(func() {
			sql.Register("sqlite3_audit_hooks", sqlhooks.Wrap(&sqlite3driver.SQLiteDriver{}, hooks{}))
	})

	conn, err := sqlx.Open("sqlite3_audit_hooks", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("audit: opening %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	if err := migrateUp(path); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func migrateUp(path string) error {
	d, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("audit: loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, fmt.Sprintf("sqlite3://%s?_foreign_keys=on", path))
	if err != nil {
		return fmt.Errorf("audit: preparing migration: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("audit: running migration: %w", err)
	}
	return nil
}

func (db *DB) Close() error { return db.conn.Close() }

// Kind enumerates the event kinds every driver records.
type Kind string

const (
	KindRuleReload Kind = "rule_reload"
	KindSchemaMismatch Kind = "schema_mismatch"
	KindEndpointRotate Kind = "endpoint_rotate"
	KindShutdownClean Kind = "shutdown_clean"
	KindShutdownFatal Kind = "shutdown_fatal"
)

// Event is one row of the audit_event table.
type Event struct {
	ID int64 `db:"id"`
	OccurredAt time.Time `db:"occurred_at"`
	Driver string `db:"driver"`
	Kind string `db:"kind"`
	Detail string `db:"detail"`
}

// Log appends one event row. occurredAt is passed in by the caller (rather
// than taken via time.Now here) so driver code stays the single place that
// reads the wall clock.
func (db *DB) Log(ctx context.Context, occurredAt time.Time, driver string, kind Kind, detail string) error {
	query, args, err := insertEventSQL(occurredAt, driver, kind, detail)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, query, args...)
	return err
}
