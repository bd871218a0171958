package model

import "time"

// Dataset belongs to one project. TenantID repeats the project's tenant so
// reads are scoped without a join.
type Dataset struct {
	ID          string    `json:"id"          db:"id"`
	ProjectID   string    `json:"projectId"   db:"project_id"`
	TenantID    string    `json:"tenantId"    db:"tenant_id"`
	Name        string    `json:"name"        db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}
