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

const defaultTopK = 10

// RecommendationsService defines the retrieval operations the recommendations endpoints need.
type RecommendationsService interface {
	RecommendForUser(ctx context.Context, userID string, topK int, storeID string) ([]models.ScoredDish, error)
	RecommendForProfile(ctx context.Context, prefs models.Preferences, topK int) ([]models.ScoredDish, error)
	Ready() bool
	ModelVersion() string
}

// RecommendationsHandler handles HTTP requests for dish recommendations
type RecommendationsHandler struct {
	service RecommendationsService
}

// NewRecommendationsHandler creates a new recommendations handler
func NewRecommendationsHandler(service RecommendationsService) *RecommendationsHandler {
	return &RecommendationsHandler{service: service}
}

// UserRecommendationsRequest is the body of POST /v1/recommendations/user
type UserRecommendationsRequest struct {
	UserID  string `json:"user_id"`
	TopK    int    `json:"top_k,omitempty"`
	StoreID string `json:"store_id,omitempty"`
}

// ProfileRecommendationsRequest is the body of POST /v1/recommendations/profile
type ProfileRecommendationsRequest struct {
	Preferences models.Preferences `json:"preferences"`
	TopK        int                `json:"top_k,omitempty"`
}

// RecommendationsResponse wraps a ranked dish list with the serving model version
type RecommendationsResponse struct {
	ModelVersion string              `json:"model_version"`
	Results      []models.ScoredDish `json:"results"`
}

// ForUser handles POST /v1/recommendations/user
// @Summary Recommend dishes for a known user
// @Description Ranks catalog dishes for a user by embedding similarity
// @Tags Recommendations
// @Accept json
// @Produce json
// @Param request body UserRecommendationsRequest true "User and ranking options"
// @Success 200 {object} RecommendationsResponse
// @Failure 400 {object} response.ProblemDetails
// @Failure 404 {object} response.ProblemDetails "Unknown user"
// @Security BearerAuth
// @Router /v1/recommendations/user [post]
func (h *RecommendationsHandler) ForUser(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req UserRecommendationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}
	if req.UserID == "" {
		response.RespondBadRequest(w, "user_id is required")
		return
	}

	results, err := h.service.RecommendForUser(r.Context(), req.UserID, normalizeTopK(req.TopK), req.StoreID)
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

// ForProfile handles POST /v1/recommendations/profile
// @Summary Recommend dishes for a cold-start preference profile
// @Description Builds a proxy vector from stated preferences and ranks dishes against it
// @Tags Recommendations
// @Accept json
// @Produce json
// @Param request body ProfileRecommendationsRequest true "Preference profile and ranking options"
// @Success 200 {object} RecommendationsResponse
// @Failure 400 {object} response.ProblemDetails
// @Security BearerAuth
// @Router /v1/recommendations/profile [post]
func (h *RecommendationsHandler) ForProfile(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req ProfileRecommendationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}
	if req.Preferences.PriceRange != "" && !req.Preferences.PriceRange.Valid() {
		response.RespondBadRequest(w, "price_range must be one of budget, premium, any")
		return
	}

	results, err := h.service.RecommendForProfile(r.Context(), req.Preferences, normalizeTopK(req.TopK))
	if err != nil {
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, RecommendationsResponse{
		ModelVersion: h.service.ModelVersion(),
		Results:      results,
	})
}

func (h *RecommendationsHandler) ready(w http.ResponseWriter) bool {
	if !h.service.Ready() {
		response.RespondServiceUnavailable(w, "No embedding snapshot loaded yet")
		return false
	}
	return true
}

// normalizeTopK applies the default result count and caps nonsense values.
func normalizeTopK(topK int) int {
	if topK <= 0 {
		return defaultTopK
	}
	return topK
}
