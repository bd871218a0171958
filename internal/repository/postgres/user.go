package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

const userColumns = `id, email, password_hash, google_id, github_id, is_active,
	tenant_id, roles, permissions, created_at, updated_at`

// UserStore is the PostgreSQL identity store.
type UserStore struct {
	db DBTX
}

// NewUserStore creates a UserStore on db.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

func externalIDColumn(p model.Provider) (string, error) {
	switch p {
	case model.ProviderGoogle:
		return "google_id", nil
	case model.ProviderGitHub:
		return "github_id", nil
	default:
		return "", fmt.Errorf("postgres: unknown provider %q", p)
	}
}

// Create inserts user, assigning an xid and timestamps in place.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.GoogleID,
		user.GitHubID,
		user.Active,
		user.TenantID,
		user.Roles.Join(),
		user.Permissions.Join(),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if conflict := conflictFrom(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("postgres: inserting user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.scanUser(ctx, "user", id, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.scanUser(ctx, "user with email", email, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *UserStore) GetByExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.User, error) {
	col, err := externalIDColumn(provider)
	if err != nil {
		return nil, err
	}
	return s.scanUser(ctx, provider.String()+" user", externalID,
		`SELECT `+userColumns+` FROM users WHERE `+col+` = $1`, externalID)
}

// LinkExternalAccount writes the provider slot only while it is NULL and
// returns the row in one statement. No row back means the user is missing
// or the slot is taken; the follow-up read decides which.
func (s *UserStore) LinkExternalAccount(ctx context.Context, userID string, provider model.Provider, externalID string) (*model.User, error) {
	col, err := externalIDColumn(provider)
	if err != nil {
		return nil, err
	}

	user, err := s.scanUser(ctx, "user", userID,
		`UPDATE users SET `+col+` = $1, updated_at = $2
		 WHERE id = $3 AND `+col+` IS NULL
		 RETURNING `+userColumns,
		externalID, time.Now().UTC(), userID,
	)
	if err == nil {
		return user, nil
	}
	if conflict := conflictFrom(err); conflict != nil {
		return nil, conflict
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	user, err = s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ExternalID(provider) != externalID {
		return nil, apperror.New(apperror.ErrAccountLinkConflict,
			fmt.Sprintf("account is already linked to a different %s identity", provider))
	}
	return user, nil
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating password of user %s: %w", userID, err)
	}
	if ct.RowsAffected() == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func (s *UserStore) UpdateAccess(ctx context.Context, userID string, access repository.UserAccess) (*model.User, error) {
	return s.scanUser(ctx, "user", userID,
		`UPDATE users
		 SET tenant_id = $1, roles = $2, permissions = $3, is_active = $4, updated_at = $5
		 WHERE id = $6
		 RETURNING `+userColumns,
		access.TenantID,
		model.StringList(access.Roles).Join(),
		model.StringList(access.Permissions).Join(),
		access.Active,
		time.Now().UTC(),
		userID,
	)
}

func (s *UserStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// scanUser runs a query expected to return a single user row.
func (s *UserStore) scanUser(ctx context.Context, resource, key, query string, args ...any) (*model.User, error) {
	var (
		u                  model.User
		roles, permissions string
	)
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.GoogleID,
		&u.GitHubID,
		&u.Active,
		&u.TenantID,
		&roles,
		&permissions,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if conflict := conflictFrom(err); conflict != nil {
			return nil, conflict
		}
		return nil, notFoundOr(err, resource, key, "scanning "+resource)
	}
	u.Roles = model.ParseStringList(roles)
	u.Permissions = model.ParseStringList(permissions)
	return &u, nil
}
