// Package repository defines the storage contracts the services depend on.
// Implementations live in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/mlvision/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to 1..100 rows (default 20) and a non-negative
// offset.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// UserAccess is the authorization state an administrator may change.
type UserAccess struct {
	TenantID    *string
	Roles       []string
	Permissions []string
	Active      bool
}

// UserRepository is the identity store.
//
// Email and each provider's external ID are unique. A write that would
// break either returns an apperror.ErrConflict whose Field names the column
// ("email", "google_id", "github_id"). Lookups that match nothing return
// apperror.ErrNotFound.
type UserRepository interface {
	// Create assigns ID and timestamps and inserts user.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.User, error)

	// LinkExternalAccount sets the provider slot of userID to externalID and
	// returns the updated user. It only fills an empty slot: linking the ID
	// the slot already holds is a no-op, and a slot holding a different ID
	// fails with apperror.ErrAccountLinkConflict.
	LinkExternalAccount(ctx context.Context, userID string, provider model.Provider, externalID string) (*model.User, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	UpdateAccess(ctx context.Context, userID string, access UserAccess) (*model.User, error)

	Ping(ctx context.Context) error
}

// ProjectRepository stores tenant-owned projects. Every read and write is
// scoped by tenant: a project of another tenant is reported as not found.
type ProjectRepository interface {
	Create(ctx context.Context, project *model.Project) error
	GetByID(ctx context.Context, tenantID, id string) (*model.Project, error)
	ListByTenant(ctx context.Context, tenantID string, opts ListOptions) ([]model.Project, error)
	Update(ctx context.Context, project *model.Project) error
	Delete(ctx context.Context, tenantID, id string) error
}

// DatasetRepository stores datasets under projects. Reads are scoped by
// tenant as well as project.
type DatasetRepository interface {
	// Create assigns ID and timestamp. Names are unique within a project.
	Create(ctx context.Context, dataset *model.Dataset) error
	ListByProject(ctx context.Context, tenantID, projectID string, opts ListOptions) ([]model.Dataset, error)
}
