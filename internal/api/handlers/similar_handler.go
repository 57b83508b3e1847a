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

// SimilarityService defines the item-to-item operations the similarity endpoints need.
type SimilarityService interface {
	SimilarDishes(ctx context.Context, dishID string, topK int, storeID string) ([]models.ScoredDish, error)
	SimilarForProfile(ctx context.Context, prefs models.Preferences, topK int, storeID string) ([]models.ScoredDish, error)
	Ready() bool
	ModelVersion() string
}

// SimilarHandler handles HTTP requests for dish-to-dish similarity
type SimilarHandler struct {
	service SimilarityService
}

// NewSimilarHandler creates a new similarity handler
func NewSimilarHandler(service SimilarityService) *SimilarHandler {
	return &SimilarHandler{service: service}
}

// SimilarDishesRequest is the body of POST /v1/dishes/similar
type SimilarDishesRequest struct {
	DishID  string `json:"dish_id"`
	TopK    int    `json:"top_k,omitempty"`
	StoreID string `json:"store_id,omitempty"`
}

// SimilarProfileRequest is the body of POST /v1/dishes/similar-profile
type SimilarProfileRequest struct {
	Profile models.Preferences `json:"profile"`
	TopK    int                `json:"top_k,omitempty"`
	StoreID string             `json:"store_id,omitempty"`
}

// Dishes handles POST /v1/dishes/similar
// @Summary Find dishes similar to a given dish
// @Tags Similarity
// @Accept json
// @Produce json
// @Param request body SimilarDishesRequest true "Anchor dish and ranking options"
// @Success 200 {object} RecommendationsResponse
// @Failure 404 {object} response.ProblemDetails "Dish not in the embedding cache"
// @Security BearerAuth
// @Router /v1/dishes/similar [post]
func (h *SimilarHandler) Dishes(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		response.RespondServiceUnavailable(w, "No embedding snapshot loaded yet")
		return
	}

	var req SimilarDishesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}
	if req.DishID == "" {
		response.RespondBadRequest(w, "dish_id is required")
		return
	}

	results, err := h.service.SimilarDishes(r.Context(), req.DishID, normalizeTopK(req.TopK), req.StoreID)
	if err != nil {
		if errors.Is(err, recerrors.ErrNotFound) {
			response.RespondNotFound(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, RecommendationsResponse{
		ModelVersion: h.service.ModelVersion(),
		Results:      results,
	})
}

// Profile handles POST /v1/dishes/similar-profile
// @Summary Find dishes similar to a synthesized preference profile
// @Tags Similarity
// @Accept json
// @Produce json
// @Param request body SimilarProfileRequest true "Preference profile and ranking options"
// @Success 200 {object} RecommendationsResponse
// @Security BearerAuth
// @Router /v1/dishes/similar-profile [post]
func (h *SimilarHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		response.RespondServiceUnavailable(w, "No embedding snapshot loaded yet")
		return
	}

	var req SimilarProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}
	if req.Profile.PriceRange != "" && !req.Profile.PriceRange.Valid() {
		response.RespondBadRequest(w, "price_range must be one of budget, premium, any")
		return
	}

	results, err := h.service.SimilarForProfile(r.Context(), req.Profile, normalizeTopK(req.TopK), req.StoreID)
	if err != nil {
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, RecommendationsResponse{
		ModelVersion: h.service.ModelVersion(),
		Results:      results,
	})
}
