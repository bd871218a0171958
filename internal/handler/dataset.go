package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
	"github.com/sakif/mlvision/internal/service"
)

// DatasetService is what the HTTP layer needs for a project's datasets.
type DatasetService interface {
	List(ctx context.Context, actor model.AuthUser, projectID string, limit, offset int) ([]model.Dataset, error)
	Create(ctx context.Context, actor model.AuthUser, projectID, name, description string) (*model.Dataset, error)
}

var _ DatasetService = (*service.DatasetService)(nil)

// DatasetHandler serves /api/v1/projects/{id}/datasets.
type DatasetHandler struct {
	datasets DatasetService
	logger   *slog.Logger
}

func NewDatasetHandler(datasets DatasetService, logger *slog.Logger) *DatasetHandler {
	return &DatasetHandler{datasets: datasets, logger: logger}
}

type datasetRequest struct {
	Name        string `json:"name"        validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type datasetListResponse struct {
	Datasets []model.Dataset `json:"datasets"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// HandleList returns one page of a project's datasets.
//
// HTTP: GET /api/v1/projects/{id}/datasets?limit=20&offset=0
func (h *DatasetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
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
	datasets, err := h.datasets.List(r.Context(), actor, r.PathValue("id"), page.Limit, page.Offset)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, datasetListResponse{Datasets: datasets, Limit: page.Limit, Offset: page.Offset})
}

// HandleCreate adds a dataset to a project.
//
// HTTP: POST /api/v1/projects/{id}/datasets
// BODY: {"name": "...", "description": "..."}
func (h *DatasetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req datasetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	dataset, err := h.datasets.Create(r.Context(), actor, r.PathValue("id"), req.Name, req.Description)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataset)
}
