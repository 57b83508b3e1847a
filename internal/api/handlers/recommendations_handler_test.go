package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/recerrors"
)

// mockRecommendationsService mocks RecommendationsService for handler tests.
type mockRecommendationsService struct {
	ready      bool
	forUser    func(ctx context.Context, userID string, topK int, storeID string) ([]models.ScoredDish, error)
	forProfile func(ctx context.Context, prefs models.Preferences, topK int) ([]models.ScoredDish, error)
}

func (m *mockRecommendationsService) RecommendForUser(ctx context.Context, userID string, topK int, storeID string) ([]models.ScoredDish, error) {
	if m.forUser != nil {
		return m.forUser(ctx, userID, topK, storeID)
	}
	return nil, nil
}

func (m *mockRecommendationsService) RecommendForProfile(ctx context.Context, prefs models.Preferences, topK int) ([]models.ScoredDish, error) {
	if m.forProfile != nil {
		return m.forProfile(ctx, prefs, topK)
	}
	return nil, nil
}

func (m *mockRecommendationsService) Ready() bool { return m.ready }

func (m *mockRecommendationsService) ModelVersion() string { return "v-test" }

func TestRecommendationsHandler_ForUser(t *testing.T) {
	t.Run("success returns ranked dishes with model version", func(t *testing.T) {
		mock := &mockRecommendationsService{
			ready: true,
			forUser: func(_ context.Context, userID string, topK int, storeID string) ([]models.ScoredDish, error) {
				assert.Equal(t, "u1", userID)
				assert.Equal(t, 5, topK)
				assert.Equal(t, "s1", storeID)

				return []models.ScoredDish{
					{DishID: "d1", StoreID: "s1", Score: 0.9},
					{DishID: "d2", StoreID: "s1", Score: 0.7},
				}, nil
			},
		}
		h := NewRecommendationsHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "http://test/v1/recommendations/user",
			strings.NewReader(`{"user_id":"u1","top_k":5,"store_id":"s1"}`))
		rec := httptest.NewRecorder()

		h.ForUser(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp RecommendationsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "v-test", resp.ModelVersion)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "d1", resp.Results[0].DishID)
	})

	t.Run("missing user_id returns 400", func(t *testing.T) {
		h := NewRecommendationsHandler(&mockRecommendationsService{ready: true})

		req := httptest.NewRequest(http.MethodPost, "http://test/v1/recommendations/user",
			strings.NewReader(`{"top_k":5}`))
		rec := httptest.NewRecorder()

		h.ForUser(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	})

	t.Run("unknown user returns 404", func(t *testing.T) {
		mock := &mockRecommendationsService{
			ready: true,
			forUser: func(context.Context, string, int, string) ([]models.ScoredDish, error) {
				return nil, recerrors.NewNotFoundError("user", "user ghost not found")
			},
		}
		h := NewRecommendationsHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "http://test/v1/recommendations/user",
			strings.NewReader(`{"user_id":"ghost"}`))
		rec := httptest.NewRecorder()

		h.ForUser(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no snapshot returns 503", func(t *testing.T) {
		h := NewRecommendationsHandler(&mockRecommendationsService{ready: false})

		req := httptest.NewRequest(http.MethodPost, "http://test/v1/recommendations/user",
			strings.NewReader(`{"user_id":"u1"}`))
		rec := httptest.NewRecorder()

		h.ForUser(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("zero top_k defaults to 10", func(t *testing.T) {
		var gotTopK int
		mock := &mockRecommendationsService{
			ready: true,
			forUser: func(_ context.Context, _ string, topK int, _ string) ([]models.ScoredDish, error) {
				gotTopK = topK
				return nil, nil
			},
		}
		h := NewRecommendationsHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "http://test/v1/recommendations/user",
			strings.NewReader(`{"user_id":"u1"}`))
		rec := httptest.NewRecorder()

		h.ForUser(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, defaultTopK, gotTopK)
	})
}

func TestRecommendationsHandler_ForProfile(t *testing.T) {
	t.Run("success passes preferences through", func(t *testing.T) {
		var gotPrefs models.Preferences
		mock := &mockRecommendationsService{
			ready: true,
			forProfile: func(_ context.Context, prefs models.Preferences, topK int) ([]models.ScoredDish, error) {
				gotPrefs = prefs
				assert.Equal(t, 3, topK)
				return []models.ScoredDish{{DishID: "d1", StoreID: "s1", Score: 0.8}}, nil
			},
		}
		h := NewRecommendationsHandler(mock)

		body := `{"preferences":{"cuisine":["Việt Nam"],"taste":["Cay"],"price_range":"budget"},"top_k":3}`
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/recommendations/profile", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.ForProfile(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"Việt Nam"}, gotPrefs.Cuisine)
		assert.Equal(t, []string{"Cay"}, gotPrefs.Taste)
		assert.Equal(t, models.PriceRangeBudget, gotPrefs.PriceRange)
	})

	t.Run("invalid price_range returns 400", func(t *testing.T) {
		h := NewRecommendationsHandler(&mockRecommendationsService{ready: true})

		body := `{"preferences":{"price_range":"cheap"}}`
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/recommendations/profile", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.ForProfile(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty profile is allowed", func(t *testing.T) {
		mock := &mockRecommendationsService{
			ready: true,
			forProfile: func(_ context.Context, prefs models.Preferences, _ int) ([]models.ScoredDish, error) {
				assert.True(t, prefs.IsEmpty())
				return nil, nil
			},
		}
		h := NewRecommendationsHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "http://test/v1/recommendations/profile", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		h.ForProfile(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
