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

var _ repository.ProjectRepository = (*ProjectDB)(nil)

const projectColumns = `id, tenant_id, owner_id, name, description, created_at, updated_at`

// ProjectDB is the SQLite project store.
type ProjectDB struct {
	conn *sqlx.DB
}

// Create inserts project with a fresh xid. Project names are unique per
// tenant.
func (p *ProjectDB) Create(ctx context.Context, project *model.Project) error {
	now := time.Now().UTC()
	project.ID = xid.New().String()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := p.conn.NamedExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`)
		 VALUES (:id, :tenant_id, :owner_id, :name, :description, :created_at, :updated_at)`,
		project,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return apperror.ConflictOn("name", err)
		}
		return fmt.Errorf("sqlite: creating project: %w", err)
	}
	return nil
}

func (p *ProjectDB) GetByID(ctx context.Context, tenantID, id string) (*model.Project, error) {
	var project model.Project
	err := p.conn.GetContext(ctx, &project,
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("project", id)
		}
		return nil, fmt.Errorf("sqlite: getting project %s: %w", id, err)
	}
	return &project, nil
}

// ListByTenant returns the tenant's projects, newest first.
func (p *ProjectDB) ListByTenant(ctx context.Context, tenantID string, opts repository.ListOptions) ([]model.Project, error) {
	opts = opts.Normalize()

	projects := make([]model.Project, 0, opts.Limit)
	err := p.conn.SelectContext(ctx, &projects,
		`SELECT `+projectColumns+`
		 FROM projects
		 WHERE tenant_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		tenantID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects of tenant %s: %w", tenantID, err)
	}
	return projects, nil
}

// Update changes name and description. The tenant in project scopes the
// write; id and created_at are immutable.
func (p *ProjectDB) Update(ctx context.Context, project *model.Project) error {
	project.UpdatedAt = time.Now().UTC()

	result, err := p.conn.ExecContext(ctx,
		`UPDATE projects
		 SET name = ?, description = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ?`,
		project.Name,
		project.Description,
		project.UpdatedAt,
		project.ID,
		project.TenantID,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return apperror.ConflictOn("name", err)
		}
		return fmt.Errorf("sqlite: updating project %s: %w", project.ID, err)
	}
	return requireAffected(result, "project", project.ID)
}

func (p *ProjectDB) Delete(ctx context.Context, tenantID, id string) error {
	result, err := p.conn.ExecContext(ctx,
		`DELETE FROM projects WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting project %s: %w", id, err)
	}
	return requireAffected(result, "project", id)
}
