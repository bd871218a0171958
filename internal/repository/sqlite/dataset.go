package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

var _ repository.DatasetRepository = (*DatasetDB)(nil)

const datasetColumns = `id, project_id, tenant_id, name, description, created_at`

// DatasetDB is the SQLite dataset store.
type DatasetDB struct {
	conn *sqlx.DB
}

func (d *DatasetDB) Create(ctx context.Context, dataset *model.Dataset) error {
	dataset.ID = xid.New().String()
	dataset.CreatedAt = time.Now().UTC()

	_, err := d.conn.NamedExecContext(ctx,
		`INSERT INTO datasets (`+datasetColumns+`)
		 VALUES (:id, :project_id, :tenant_id, :name, :description, :created_at)`,
		dataset,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return apperror.ConflictOn("name", err)
		}
		return fmt.Errorf("sqlite: creating dataset: %w", err)
	}
	return nil
}

// ListByProject returns a project's datasets in creation order.
func (d *DatasetDB) ListByProject(ctx context.Context, tenantID, projectID string, opts repository.ListOptions) ([]model.Dataset, error) {
	opts = opts.Normalize()

	datasets := make([]model.Dataset, 0, opts.Limit)
	err := d.conn.SelectContext(ctx, &datasets,
		`SELECT `+datasetColumns+`
		 FROM datasets
		 WHERE tenant_id = ? AND project_id = ?
		 ORDER BY created_at, id
		 LIMIT ? OFFSET ?`,
		tenantID, projectID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing datasets of project %s: %w", projectID, err)
	}
	return datasets, nil
}
