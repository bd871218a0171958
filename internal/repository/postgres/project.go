package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

var _ repository.ProjectRepository = (*ProjectStore)(nil)

const projectColumns = `id, tenant_id, owner_id, name, description, created_at, updated_at`

// ProjectStore is the PostgreSQL project store.
type ProjectStore struct {
	db DBTX
}

// NewProjectStore creates a ProjectStore on db.
func NewProjectStore(db DBTX) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) Create(ctx context.Context, p *model.Project) error {
	now := time.Now().UTC()
	p.ID = xid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO projects (`+projectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.TenantID, p.OwnerID, p.Name, p.Description, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if conflict := conflictFrom(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("postgres: inserting project: %w", err)
	}
	return nil
}

func (s *ProjectStore) GetByID(ctx context.Context, tenantID, id string) (*model.Project, error) {
	var p model.Project
	err := s.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&p.ID, &p.TenantID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, "project", id, "getting project "+id)
	}
	return &p, nil
}

// ListByTenant returns the tenant's projects, newest first.
func (s *ProjectStore) ListByTenant(ctx context.Context, tenantID string, opts repository.ListOptions) ([]model.Project, error) {
	opts = opts.Normalize()

	rows, err := s.db.Query(ctx,
		`SELECT `+projectColumns+`
		 FROM projects
		 WHERE tenant_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		tenantID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing projects of tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	projects := make([]model.Project, 0, opts.Limit)
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.TenantID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating projects: %w", err)
	}
	return projects, nil
}

func (s *ProjectStore) Update(ctx context.Context, p *model.Project) error {
	p.UpdatedAt = time.Now().UTC()

	ct, err := s.db.Exec(ctx,
		`UPDATE projects SET name = $1, description = $2, updated_at = $3
		 WHERE id = $4 AND tenant_id = $5`,
		p.Name, p.Description, p.UpdatedAt, p.ID, p.TenantID,
	)
	if err != nil {
		if conflict := conflictFrom(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("postgres: updating project %s: %w", p.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return apperror.NotFound("project", p.ID)
	}
	return nil
}

func (s *ProjectStore) Delete(ctx context.Context, tenantID, id string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("postgres: deleting project %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return apperror.NotFound("project", id)
	}
	return nil
}
