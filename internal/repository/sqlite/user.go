package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, email, password_hash, google_id, github_id, is_active,
	tenant_id, roles, permissions, created_at, updated_at`

// UserDB is the SQLite identity store.
type UserDB struct {
	conn *sqlx.DB
}

// externalIDColumn maps a provider to its link column. The result is only
// ever one of these constants, so it is safe to splice into SQL.
func externalIDColumn(p model.Provider) (string, error) {
	switch p {
	case model.ProviderGoogle:
		return "google_id", nil
	case model.ProviderGitHub:
		return "github_id", nil
	default:
		return "", fmt.Errorf("sqlite: unknown provider %q", p)
	}
}

// Create inserts user, assigning an xid and timestamps in place.
// A taken email or external ID fails with apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Roles == nil {
		user.Roles = model.StringList{}
	}
	if user.Permissions == nil {
		user.Permissions = model.StringList{}
	}

	_, err := u.conn.NamedExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (:id, :email, :password_hash, :google_id, :github_id, :is_active,
		         :tenant_id, :roles, :permissions, :created_at, :updated_at)`,
		user,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return apperror.ConflictOn(field, err)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their internal ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "user", id, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail matches email exactly as stored.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "user with email", email, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// GetByExternalID finds the user linked to externalID at provider.
func (u *UserDB) GetByExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.User, error) {
	col, err := externalIDColumn(provider)
	if err != nil {
		return nil, err
	}
	return u.getOne(ctx, provider.String()+" user", externalID,
		`SELECT `+userColumns+` FROM users WHERE `+col+` = ?`, externalID)
}

// LinkExternalAccount fills the provider slot only while it is NULL, so a
// concurrent link of a different account cannot overwrite it. Password hash
// and the other provider's link are never touched.
func (u *UserDB) LinkExternalAccount(ctx context.Context, userID string, provider model.Provider, externalID string) (*model.User, error) {
	col, err := externalIDColumn(provider)
	if err != nil {
		return nil, err
	}

	_, err = u.conn.ExecContext(ctx,
		`UPDATE users SET `+col+` = ?, updated_at = ? WHERE id = ? AND `+col+` IS NULL`,
		externalID, time.Now().UTC(), userID,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return nil, apperror.ConflictOn(field, err)
		}
		return nil, fmt.Errorf("sqlite: linking %s account to user %s: %w", provider, userID, err)
	}

	// Zero rows affected means either no such user or an occupied slot;
	// the re-read tells them apart.
	user, err := u.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ExternalID(provider) != externalID {
		return nil, apperror.New(apperror.ErrAccountLinkConflict,
			fmt.Sprintf("account is already linked to a different %s identity", provider))
	}
	return user, nil
}

// UpdatePasswordHash replaces the stored hash.
func (u *UserDB) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating password of user %s: %w", userID, err)
	}
	return requireAffected(result, "user", userID)
}

// UpdateAccess replaces tenant, roles, permissions and the active flag.
func (u *UserDB) UpdateAccess(ctx context.Context, userID string, access repository.UserAccess) (*model.User, error) {
	result, err := u.conn.ExecContext(ctx,
		`UPDATE users
		 SET tenant_id = ?, roles = ?, permissions = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		access.TenantID,
		model.StringList(access.Roles),
		model.StringList(access.Permissions),
		access.Active,
		time.Now().UTC(),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating access of user %s: %w", userID, err)
	}
	if err := requireAffected(result, "user", userID); err != nil {
		return nil, err
	}
	return u.GetByID(ctx, userID)
}

// Ping verifies the database is reachable.
func (u *UserDB) Ping(ctx context.Context) error {
	return u.conn.PingContext(ctx)
}

func (u *UserDB) getOne(ctx context.Context, resource, key, query string, args ...any) (*model.User, error) {
	var user model.User
	if err := u.conn.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, fmt.Errorf("sqlite: getting %s %s: %w", resource, key, err)
	}
	return &user, nil
}

// requireAffected turns a zero-row UPDATE/DELETE into NotFound.
func requireAffected(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
