package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/service"
)

// AdminService is the user administration the HTTP layer calls.
type AdminService interface {
	GetUser(ctx context.Context, actor model.AuthUser, id string) (*model.User, error)
	UpdateAccess(ctx context.Context, actor model.AuthUser, id string, update service.AccessUpdate) (*model.User, error)
}

var _ AdminService = (*service.AdminService)(nil)

// AdminHandler serves /api/v1/admin. Routes are mounted behind
// RequireRoles("admin").
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

type accessRequest struct {
	TenantID    *string  `json:"tenant_id"   validate:"omitempty,min=1,max=64"`
	Roles       []string `json:"roles"       validate:"max=8,dive,oneof=viewer member admin owner"`
	Permissions []string `json:"permissions" validate:"max=64,dive,min=1,max=64,excludesall=0x2C"`
	Active      *bool    `json:"active"      validate:"required"`
}

// HandleGetUser returns a user of the admin's tenant.
//
// HTTP: GET /api/v1/admin/users/{id}
func (h *AdminHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	user, err := h.admin.GetUser(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateAccess replaces a user's tenant, roles, permissions and
// active flag.
//
// HTTP: PUT /api/v1/admin/users/{id}/access
// BODY: {"tenant_id": "t1", "roles": ["member"], "permissions": [], "active": true}
func (h *AdminHandler) HandleUpdateAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req accessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.admin.UpdateAccess(r.Context(), actor, r.PathValue("id"), service.AccessUpdate{
		TenantID:    req.TenantID,
		Roles:       req.Roles,
		Permissions: req.Permissions,
		Active:      *req.Active,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
