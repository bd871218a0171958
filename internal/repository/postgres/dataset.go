package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

var _ repository.DatasetRepository = (*DatasetStore)(nil)

const datasetColumns = `id, project_id, tenant_id, name, description, created_at`

// DatasetStore is the PostgreSQL dataset store.
type DatasetStore struct {
	db DBTX
}

func NewDatasetStore(db DBTX) *DatasetStore {
	return &DatasetStore{db: db}
}

func (s *DatasetStore) Create(ctx context.Context, d *model.Dataset) error {
	d.ID = xid.New().String()
	d.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx,
		`INSERT INTO datasets (`+datasetColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.ProjectID, d.TenantID, d.Name, d.Description, d.CreatedAt,
	)
	if err != nil {
		if conflict := conflictFrom(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("postgres: inserting dataset: %w", err)
	}
	return nil
}

// ListByProject returns a project's datasets in creation order.
func (s *DatasetStore) ListByProject(ctx context.Context, tenantID, projectID string, opts repository.ListOptions) ([]model.Dataset, error) {
	opts = opts.Normalize()

	rows, err := s.db.Query(ctx,
		`SELECT `+datasetColumns+`
		 FROM datasets
		 WHERE tenant_id = $1 AND project_id = $2
		 ORDER BY created_at, id
		 LIMIT $3 OFFSET $4`,
		tenantID, projectID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing datasets of project %s: %w", projectID, err)
	}
	defer rows.Close()

	datasets := make([]model.Dataset, 0, opts.Limit)
	for rows.Next() {
		var d model.Dataset
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.TenantID, &d.Name, &d.Description, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning dataset row: %w", err)
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating datasets: %w", err)
	}
	return datasets, nil
}
