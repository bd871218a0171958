// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code: no C compiler needed, works everywhere Go works.
//
// Rows are mapped with sqlx: struct fields carry `db:"column"` tags, and
// GetContext / SelectContext scan by column name instead of by position.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/mlvision/internal/repository/migrations"
)

// DB wraps the sqlx connection pool and hands out the typed stores.
type DB struct {
	conn *sqlx.DB
}

// New opens the database at dbPath, applies pragmas and runs migrations.
//
// dbPath examples:
//   - "data/mlvision.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite has a single writer. One pooled connection serializes writes
	// instead of surfacing SQLITE_BUSY, and keeps ":memory:" a single database.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (for backwards compatibility).
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if err := migrations.Up(ctx, conn.DB, migrations.SQLite, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Users returns the identity store backed by this database.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Projects returns the project store backed by this database.
func (db *DB) Projects() *ProjectDB {
	return &ProjectDB{conn: db.conn}
}

// Datasets returns the dataset store backed by this database.
func (db *DB) Datasets() *DatasetDB {
	return &DatasetDB{conn: db.conn}
}

// "UNIQUE constraint failed: users.email" → "email"
var uniqueColumn = regexp.MustCompile(`UNIQUE constraint failed: \w+\.(\w+)`)

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, the first offending column.
func uniqueViolation(err error) (string, bool) {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return "", false
	}
	if sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return "", false
	}
	if m := uniqueColumn.FindStringSubmatch(sqliteErr.Error()); m != nil {
		return m[1], true
	}
	return "", true
}
