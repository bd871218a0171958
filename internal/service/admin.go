package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/logger"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

// AccessUpdate is the authorization state an admin assigns to a user.
// A nil TenantID removes the user from the tenant.
type AccessUpdate struct {
	TenantID    *string
	Roles       []string
	Permissions []string
	Active      bool
}

// AdminService lets a tenant admin inspect users and assign tenant, roles
// and permissions. An admin only sees users of their own tenant plus users
// that have no tenant yet, and can only assign their own tenant.
type AdminService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewAdminService(users repository.UserRepository, logger *slog.Logger) *AdminService {
	return &AdminService{users: users, logger: logger}
}

// GetUser returns a user visible to the admin.
func (s *AdminService) GetUser(ctx context.Context, actor model.AuthUser, id string) (*model.User, error) {
	if _, err := auth.Authorize(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	return s.visibleUser(ctx, actor, id)
}

// UpdateAccess replaces the user's tenant, roles, permissions and active
// flag. Tokens already issued keep their old claims until they expire.
func (s *AdminService) UpdateAccess(ctx context.Context, actor model.AuthUser, id string, update AccessUpdate) (*model.User, error) {
	if _, err := auth.Authorize(actor, model.RoleAdmin); err != nil {
		return nil, err
	}

	if update.TenantID != nil && *update.TenantID != actor.TenantID {
		return nil, apperror.Forbidden("admins can only assign their own tenant")
	}
	roles, err := normalizeRoles(update.Roles)
	if err != nil {
		return nil, err
	}
	permissions := normalizeList(update.Permissions)

	if id == actor.ID && (!update.Active || update.TenantID == nil || !containsString(roles, model.RoleAdmin)) {
		return nil, apperror.ValidationFailed("id", "admins cannot revoke their own admin access")
	}

	if _, err := s.visibleUser(ctx, actor, id); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateAccess(ctx, id, repository.UserAccess{
		TenantID:    update.TenantID,
		Roles:       roles,
		Permissions: permissions,
		Active:      update.Active,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("updating access for %s: %w", id, err)
	}

	s.log(ctx).InfoContext(ctx, "user access updated",
		slog.String("admin_id", actor.ID),
		slog.String("user_id", user.ID),
		slog.String("roles", strings.Join(roles, ",")),
		slog.Bool("active", user.Active),
	)
	return user, nil
}

// visibleUser hides users of other tenants behind NotFound.
func (s *AdminService) visibleUser(ctx context.Context, actor model.AuthUser, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.TenantID != nil && *user.TenantID != actor.TenantID {
		return nil, apperror.NotFound("user", id)
	}
	return user, nil
}

func normalizeRoles(roles []string) ([]string, error) {
	out := normalizeList(roles)
	for _, r := range out {
		if !model.IsKnownRole(r) {
			return nil, apperror.ValidationFailed("roles", fmt.Sprintf("unknown role %q", r))
		}
	}
	return out, nil
}

// normalizeList trims, drops blanks and duplicates, keeping first-seen order.
// Commas are rejected by dropping the entry since lists are stored
// comma-separated.
func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || strings.Contains(item, ",") || containsString(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *AdminService) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, s.logger)
}
