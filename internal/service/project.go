package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/logger"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

// Validation limits for projects.
const (
	MaxProjectNameLength        = 100
	MaxProjectDescriptionLength = 2000
)

// ProjectService handles tenant-scoped project CRUD on behalf of an
// authenticated caller.
//
// Every method takes the caller's AuthUser and re-checks it with
// auth.Authorize, so the rules hold for any caller and not only behind the
// HTTP role middleware:
//
//   - read:   viewer, member, admin or owner
//   - write:  member, admin or owner
//   - a member may only change projects they own; admins and owners may
//     change any project of the tenant
//
// A project of another tenant is indistinguishable from a missing one.
type ProjectService struct {
	repo   repository.ProjectRepository
	logger *slog.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(repo repository.ProjectRepository, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		repo:   repo,
		logger: logger,
	}
}

// Create validates and saves a new project owned by the caller.
func (s *ProjectService) Create(ctx context.Context, actor model.AuthUser, name, description string) (*model.Project, error) {
	if _, err := auth.Authorize(actor, model.WriteRoles...); err != nil {
		return nil, err
	}

	name, description, err := validateProject(name, description)
	if err != nil {
		return nil, err
	}

	project := &model.Project{
		TenantID:    actor.TenantID,
		OwnerID:     actor.ID,
		Name:        name,
		Description: description,
	}

	if err := s.repo.Create(ctx, project); err != nil {
		if isConflict(err) {
			return nil, err
		}
		s.log(ctx).ErrorContext(ctx, "failed to create project",
			slog.String("tenant_id", actor.TenantID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating project: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "project created",
		slog.String("id", project.ID),
		slog.String("tenant_id", project.TenantID),
	)
	return project, nil
}

// GetByID returns a project of the caller's tenant.
func (s *ProjectService) GetByID(ctx context.Context, actor model.AuthUser, id string) (*model.Project, error) {
	if _, err := auth.Authorize(actor, model.ReadRoles...); err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "project ID is required")
	}

	return s.repo.GetByID(ctx, actor.TenantID, id)
}

// List returns one page of the caller's tenant's projects, newest first.
func (s *ProjectService) List(ctx context.Context, actor model.AuthUser, limit, offset int) ([]model.Project, error) {
	if _, err := auth.Authorize(actor, model.ReadRoles...); err != nil {
		return nil, err
	}

	projects, err := s.repo.ListByTenant(ctx, actor.TenantID, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	}.Normalize())
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to list projects", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// Update renames or re-describes a project. An empty name keeps the current
// one; the description is always replaced.
func (s *ProjectService) Update(ctx context.Context, actor model.AuthUser, id, name, description string) (*model.Project, error) {
	project, err := s.writable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = project.Name
	}
	name, description, err = validateProject(name, description)
	if err != nil {
		return nil, err
	}
	project.Name = name
	project.Description = description

	if err := s.repo.Update(ctx, project); err != nil {
		if isConflict(err) || isNotFound(err) {
			return nil, err
		}
		s.log(ctx).ErrorContext(ctx, "failed to update project",
			slog.String("id", project.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating project: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "project updated", slog.String("id", project.ID))
	return project, nil
}

// Delete removes a project.
func (s *ProjectService) Delete(ctx context.Context, actor model.AuthUser, id string) error {
	project, err := s.writable(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, actor.TenantID, project.ID); err != nil {
		return err
	}

	s.log(ctx).InfoContext(ctx, "project deleted",
		slog.String("id", project.ID),
		slog.String("user_id", actor.ID),
	)
	return nil
}

// writable loads a project the caller may change.
func (s *ProjectService) writable(ctx context.Context, actor model.AuthUser, id string) (*model.Project, error) {
	if _, err := auth.Authorize(actor, model.WriteRoles...); err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "project ID is required")
	}

	project, err := s.repo.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}

	if project.OwnerID != actor.ID && !actor.HasAnyRole(model.RoleAdmin, model.RoleOwner) {
		return nil, apperror.Forbidden("only the project owner or a tenant admin can change this project")
	}
	return project, nil
}

func validateProject(name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	if name == "" {
		return "", "", apperror.ValidationFailed("name", "project name is required")
	}
	if len(name) > MaxProjectNameLength {
		return "", "", apperror.ValidationFailed("name",
			fmt.Sprintf("project name must be %d characters or less", MaxProjectNameLength))
	}
	if len(description) > MaxProjectDescriptionLength {
		return "", "", apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxProjectDescriptionLength))
	}
	return name, description, nil
}

func isConflict(err error) bool { return errors.Is(err, apperror.ErrConflict) }
func isNotFound(err error) bool { return errors.Is(err, apperror.ErrNotFound) }

// log prefers the request logger, which carries request_id and user_id.
func (s *ProjectService) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, s.logger)
}
