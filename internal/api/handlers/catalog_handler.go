package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platefeed/recsys/internal/api/response"
	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/recerrors"
)

// CatalogService defines the incremental refresh operations for catalog records.
type CatalogService interface {
	RefreshUser(ctx context.Context, userID string, update models.UserUpdate) error
	RefreshDish(ctx context.Context, dishID string, update models.DishUpdate) error
	Ready() bool
}

// CatalogHandler handles PUT refreshes of users and dishes
type CatalogHandler struct {
	service CatalogService
}

// NewCatalogHandler creates a new catalog refresh handler
func NewCatalogHandler(service CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// RefreshResponse acknowledges an applied refresh
type RefreshResponse struct {
	Status string `json:"status"`
}

// UpdateUser handles PUT /v1/users/{id}
// @Summary Apply profile changes to a user and recompute their embedding
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body models.UserUpdate true "Fields to overwrite"
// @Success 200 {object} RefreshResponse
// @Failure 404 {object} response.ProblemDetails "Unknown user"
// @Security BearerAuth
// @Router /v1/users/{id} [put]
func (h *CatalogHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		response.RespondServiceUnavailable(w, "No embedding snapshot loaded yet")
		return
	}

	userID := r.PathValue("id")
	if userID == "" {
		response.RespondBadRequest(w, "User ID is required")
		return
	}

	var update models.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := h.service.RefreshUser(r.Context(), userID, update); err != nil {
		if errors.Is(err, recerrors.ErrNotFound) {
			response.RespondNotFound(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, RefreshResponse{Status: "refreshed"})
}

// UpdateDish handles PUT /v1/dishes/{id}
// @Summary Apply catalog changes to a dish and recompute its embedding
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Dish ID"
// @Param request body models.DishUpdate true "Fields to overwrite"
// @Success 200 {object} RefreshResponse
// @Failure 404 {object} response.ProblemDetails "Unknown dish"
// @Security BearerAuth
// @Router /v1/dishes/{id} [put]
func (h *CatalogHandler) UpdateDish(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		response.RespondServiceUnavailable(w, "No embedding snapshot loaded yet")
		return
	}

	dishID := r.PathValue("id")
	if dishID == "" {
		response.RespondBadRequest(w, "Dish ID is required")
		return
	}

	var update models.DishUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := h.service.RefreshDish(r.Context(), dishID, update); err != nil {
		if errors.Is(err, recerrors.ErrNotFound) {
			response.RespondNotFound(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, RefreshResponse{Status: "refreshed"})
}
