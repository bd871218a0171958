package model

import "time"

// Project is a tenant-owned container for datasets.
type Project struct {
	ID          string    `json:"id"          db:"id"`
	TenantID    string    `json:"tenantId"    db:"tenant_id"`
	OwnerID     string    `json:"ownerId"     db:"owner_id"`
	Name        string    `json:"name"        db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}
