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

// Validation limits for datasets.
const (
	MaxDatasetNameLength        = 200
	MaxDatasetDescriptionLength = 2000
)

// DatasetService manages the datasets of a project. The parent project is
// looked up in the caller's tenant first, so a project of another tenant
// reads as missing here too.
type DatasetService struct {
	projects repository.ProjectRepository
	datasets repository.DatasetRepository
	logger   *slog.Logger
}

func NewDatasetService(projects repository.ProjectRepository, datasets repository.DatasetRepository, logger *slog.Logger) *DatasetService {
	return &DatasetService{
		projects: projects,
		datasets: datasets,
		logger:   logger,
	}
}

// List returns one page of a project's datasets, oldest first.
func (s *DatasetService) List(ctx context.Context, actor model.AuthUser, projectID string, limit, offset int) ([]model.Dataset, error) {
	project, err := s.parent(ctx, actor, projectID, model.ReadRoles)
	if err != nil {
		return nil, err
	}

	datasets, err := s.datasets.ListByProject(ctx, actor.TenantID, project.ID, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	}.Normalize())
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to list datasets",
			slog.String("project_id", project.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	return datasets, nil
}

// Create adds a dataset to a project. Any writer of the tenant may add one;
// project ownership only matters for changing the project itself.
func (s *DatasetService) Create(ctx context.Context, actor model.AuthUser, projectID, name, description string) (*model.Dataset, error) {
	project, err := s.parent(ctx, actor, projectID, model.WriteRoles)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	switch {
	case name == "":
		return nil, apperror.ValidationFailed("name", "dataset name is required")
	case len(name) > MaxDatasetNameLength:
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("dataset name must be %d characters or less", MaxDatasetNameLength))
	case len(description) > MaxDatasetDescriptionLength:
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDatasetDescriptionLength))
	}

	dataset := &model.Dataset{
		ProjectID:   project.ID,
		TenantID:    actor.TenantID,
		Name:        name,
		Description: description,
	}
	if err := s.datasets.Create(ctx, dataset); err != nil {
		if isConflict(err) {
			return nil, err
		}
		s.log(ctx).ErrorContext(ctx, "failed to create dataset",
			slog.String("project_id", project.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating dataset: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "dataset created",
		slog.String("id", dataset.ID),
		slog.String("project_id", dataset.ProjectID),
	)
	return dataset, nil
}

func (s *DatasetService) parent(ctx context.Context, actor model.AuthUser, projectID string, roles []string) (*model.Project, error) {
	if _, err := auth.Authorize(actor, roles...); err != nil {
		return nil, err
	}

	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, apperror.ValidationFailed("id", "project ID is required")
	}
	return s.projects.GetByID(ctx, actor.TenantID, projectID)
}

func (s *DatasetService) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, s.logger)
}
