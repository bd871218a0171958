// Package postgres implements the repository interfaces on PostgreSQL
// through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/repository/migrations"
)

// DBTX is the subset of *pgxpool.Pool the stores use. pgxmock's pool
// satisfies it in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// DB owns the connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, verifies the connection and migrates the
// schema.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	// goose speaks database/sql; bridge the pool for the duration of the run.
	sqlDB := stdlib.OpenDBFromPool(pool)
	err = migrations.Up(ctx, sqlDB, migrations.Postgres, logger)
	if closeErr := sqlDB.Close(); closeErr != nil {
		logger.Warn("closing migration connection", slog.String("error", closeErr.Error()))
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Users returns the identity store backed by the pool.
func (db *DB) Users() *UserStore {
	return NewUserStore(db.pool)
}

// Projects returns the project store backed by the pool.
func (db *DB) Projects() *ProjectStore {
	return NewProjectStore(db.pool)
}

// Datasets returns the dataset store backed by the pool.
func (db *DB) Datasets() *DatasetStore {
	return NewDatasetStore(db.pool)
}

// constraintFields maps named unique constraints to the field reported in
// the conflict error.
var constraintFields = map[string]string{
	"users_email_key":           "email",
	"users_google_id_key":       "google_id",
	"users_github_id_key":       "github_id",
	"projects_tenant_name_key":  "name",
	"datasets_project_name_key": "name",
}

// conflictFrom converts a unique violation (SQLSTATE 23505) into an
// apperror conflict. It returns nil for any other error.
func conflictFrom(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	field, ok := constraintFields[pgErr.ConstraintName]
	if !ok {
		field = pgErr.ConstraintName
	}
	return apperror.ConflictOn(field, err)
}

// notFoundOr maps pgx.ErrNoRows to NotFound and wraps anything else.
func notFoundOr(err error, resource, key, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound(resource, key)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
