package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/platefeed/recsys/internal/api/response"
	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/recerrors"
	"github.com/platefeed/recsys/internal/tagging"
)

// TagsService defines the tag affinity operations the tag endpoints need.
type TagsService interface {
	TagsForOrder(ctx context.Context, dishIDs []string, topK int) ([]models.ScoredTag, error)
	TagsForUser(ctx context.Context, userID string, topK int) ([]models.ScoredTag, error)
	Ready() bool
}

// TagSuggester suggests catalog tags for a dish from its name and description.
type TagSuggester interface {
	SuggestTags(ctx context.Context, name, description string) (tagging.Suggestion, error)
}

// TagsHandler handles HTTP requests for tag affinity and tag suggestion
type TagsHandler struct {
	service   TagsService
	suggester TagSuggester // nil when no Gemini key is configured
}

// NewTagsHandler creates a new tags handler. suggester may be nil.
func NewTagsHandler(service TagsService, suggester TagSuggester) *TagsHandler {
	return &TagsHandler{service: service, suggester: suggester}
}

// OrderTagsRequest is the body of POST /v1/tags/order
type OrderTagsRequest struct {
	DishIDs []string `json:"dish_ids"`
	TopK    int      `json:"top_k,omitempty"`
}

// TagsResponse wraps a ranked tag list
type TagsResponse struct {
	Results []models.ScoredTag `json:"results"`
}

// SuggestTagsRequest is the body of POST /v1/tags/suggest
type SuggestTagsRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SuggestTagsResponse holds suggested tags grouped by namespace
type SuggestTagsResponse struct {
	Tags tagging.Suggestion `json:"tags"`
}

// ForOrder handles POST /v1/tags/order
// @Summary Rank tags against the mean vector of an order's dishes
// @Tags Tags
// @Accept json
// @Produce json
// @Param request body OrderTagsRequest true "Dish ids and ranking options"
// @Success 200 {object} TagsResponse
// @Security BearerAuth
// @Router /v1/tags/order [post]
func (h *TagsHandler) ForOrder(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		response.RespondServiceUnavailable(w, "No embedding snapshot loaded yet")
		return
	}

	var req OrderTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}
	if len(req.DishIDs) == 0 {
		response.RespondBadRequest(w, "dish_ids is required")
		return
	}

	results, err := h.service.TagsForOrder(r.Context(), req.DishIDs, normalizeTopK(req.TopK))
	if err != nil {
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, TagsResponse{Results: results})
}

// ForUser handles GET /v1/users/{id}/tags
// @Summary Rank tags against a user's embedding
// @Tags Tags
// @Produce json
// @Param id path string true "User ID"
// @Param top_k query int false "Number of tags to return"
// @Success 200 {object} TagsResponse
// @Failure 404 {object} response.ProblemDetails "Unknown user"
// @Security BearerAuth
// @Router /v1/users/{id}/tags [get]
func (h *TagsHandler) ForUser(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		response.RespondServiceUnavailable(w, "No embedding snapshot loaded yet")
		return
	}

	userID := r.PathValue("id")
	if userID == "" {
		response.RespondBadRequest(w, "User ID is required")
		return
	}

	topK := defaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondBadRequest(w, "top_k must be an integer")
			return
		}
		topK = normalizeTopK(parsed)
	}

	results, err := h.service.TagsForUser(r.Context(), userID, topK)
	if err != nil {
		if errors.Is(err, recerrors.ErrNotFound) {
			response.RespondNotFound(w, err.Error())
			return
		}
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, TagsResponse{Results: results})
}

// Suggest handles POST /v1/tags/suggest
// @Summary Suggest catalog tags for a dish via the Gemini API
// @Tags Tags
// @Accept json
// @Produce json
// @Param request body SuggestTagsRequest true "Dish name and description"
// @Success 200 {object} SuggestTagsResponse
// @Failure 503 {object} response.ProblemDetails "Tag suggestion not configured"
// @Security BearerAuth
// @Router /v1/tags/suggest [post]
func (h *TagsHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	if h.suggester == nil {
		response.RespondServiceUnavailable(w, "Tag suggestion is not configured")
		return
	}

	var req SuggestTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	tags, err := h.suggester.SuggestTags(r.Context(), req.Name, req.Description)
	if err != nil {
		if errors.Is(err, tagging.ErrEmptyDishName) {
			response.RespondBadRequest(w, "name is required")
			return
		}
		response.RespondInternalServerError(w, "Tag suggestion failed")
		return
	}

	response.RespondJSON(w, http.StatusOK, SuggestTagsResponse{Tags: tags})
}
