package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
	"github.com/sakif/mlvision/internal/service"
)

// ProjectService is the project CRUD the HTTP layer calls.
type ProjectService interface {
	Create(ctx context.Context, actor model.AuthUser, name, description string) (*model.Project, error)
	GetByID(ctx context.Context, actor model.AuthUser, id string) (*model.Project, error)
	List(ctx context.Context, actor model.AuthUser, limit, offset int) ([]model.Project, error)
	Update(ctx context.Context, actor model.AuthUser, id, name, description string) (*model.Project, error)
	Delete(ctx context.Context, actor model.AuthUser, id string) error
}

var _ ProjectService = (*service.ProjectService)(nil)

// ProjectHandler serves /api/v1/projects. All routes sit behind RequireAuth
// and RequireRoles; the service applies the finer write rules.
type ProjectHandler struct {
	projects ProjectService
	logger   *slog.Logger
}

func NewProjectHandler(projects ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

type projectRequest struct {
	Name        string `json:"name"        validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type updateProjectRequest struct {
	Name        string `json:"name"        validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type projectListResponse struct {
	Projects []model.Project `json:"projects"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// HandleList returns one page of the tenant's projects.
//
// HTTP: GET /api/v1/projects?limit=20&offset=0
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	limit, err := intQuery(r, "limit")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	offset, err := intQuery(r, "offset")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	page := repository.ListOptions{Limit: limit, Offset: offset}.Normalize()
	projects, err := h.projects.List(r.Context(), actor, page.Limit, page.Offset)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectListResponse{Projects: projects, Limit: page.Limit, Offset: page.Offset})
}

// HandleCreate creates a project owned by the caller.
//
// HTTP: POST /api/v1/projects
// BODY: {"name": "...", "description": "..."}
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	project, err := h.projects.Create(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// HandleGetByID returns one project.
//
// HTTP: GET /api/v1/projects/{id}
func (h *ProjectHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	project, err := h.projects.GetByID(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleUpdate changes a project's name or description.
//
// HTTP: PUT /api/v1/projects/{id}
func (h *ProjectHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req updateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	project, err := h.projects.Update(r.Context(), actor, r.PathValue("id"), req.Name, req.Description)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleDelete removes a project.
//
// HTTP: DELETE /api/v1/projects/{id} → 204 No Content
func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	if err := h.projects.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actorFrom reads the identity RequireAuth stored, answering 401 when absent.
func actorFrom(w http.ResponseWriter, r *http.Request) (model.AuthUser, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		WriteError(w, r, apperror.Unauthorized("authentication required"))
	}
	return user, ok
}

// intQuery parses an optional integer query parameter; absent means 0.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
