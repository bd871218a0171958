// Package migrations holds the versioned schema for every supported store
// and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Dialect selects one of the embedded migration sets.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) goose() (goose.Dialect, error) {
	switch d {
	case SQLite:
		return goose.DialectSQLite3, nil
	case Postgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: unknown dialect %q", d)
	}
}

// Up applies every pending migration of dialect to db. It is idempotent:
// a schema already at the latest version is left untouched.
func Up(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) error {
	gd, err := dialect.goose()
	if err != nil {
		return err
	}

	sub, err := fs.Sub(files, string(dialect))
	if err != nil {
		return fmt.Errorf("migrations: opening %s set: %w", dialect, err)
	}

	provider, err := goose.NewProvider(gd, db, sub)
	if err != nil {
		return fmt.Errorf("migrations: creating provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: applying %s schema: %w", dialect, err)
	}

	for _, r := range results {
		logger.Info("migration applied",
			slog.String("dialect", string(dialect)),
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// Version reports the current schema version of db.
func Version(ctx context.Context, db *sql.DB, dialect Dialect) (int64, error) {
	gd, err := dialect.goose()
	if err != nil {
		return 0, err
	}
	sub, err := fs.Sub(files, string(dialect))
	if err != nil {
		return 0, fmt.Errorf("migrations: opening %s set: %w", dialect, err)
	}
	provider, err := goose.NewProvider(gd, db, sub)
	if err != nil {
		return 0, fmt.Errorf("migrations: creating provider: %w", err)
	}
	return provider.GetDBVersion(ctx)
}
