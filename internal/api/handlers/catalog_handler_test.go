package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/recerrors"
)

// mockCatalogService mocks CatalogService for handler tests.
type mockCatalogService struct {
	ready       bool
	refreshUser func(ctx context.Context, userID string, update models.UserUpdate) error
	refreshDish func(ctx context.Context, dishID string, update models.DishUpdate) error
}

func (m *mockCatalogService) RefreshUser(ctx context.Context, userID string, update models.UserUpdate) error {
	if m.refreshUser != nil {
		return m.refreshUser(ctx, userID, update)
	}
	return nil
}

func (m *mockCatalogService) RefreshDish(ctx context.Context, dishID string, update models.DishUpdate) error {
	if m.refreshDish != nil {
		return m.refreshDish(ctx, dishID, update)
	}
	return nil
}

func (m *mockCatalogService) Ready() bool { return m.ready }

func TestCatalogHandler_UpdateUser(t *testing.T) {
	t.Run("success passes update fields through", func(t *testing.T) {
		var gotUpdate models.UserUpdate
		mock := &mockCatalogService{
			ready: true,
			refreshUser: func(_ context.Context, userID string, update models.UserUpdate) error {
				assert.Equal(t, "u1", userID)
				gotUpdate = update
				return nil
			},
		}
		h := NewCatalogHandler(mock)

		req := httptest.NewRequest(http.MethodPut, "http://test/v1/users/u1",
			strings.NewReader(`{"age":31,"liked_tags":["Cay"]}`))
		req.SetPathValue("id", "u1")
		rec := httptest.NewRecorder()

		h.UpdateUser(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotUpdate.Age)
		assert.Equal(t, 31.0, *gotUpdate.Age)
		require.NotNil(t, gotUpdate.LikedTags)
		assert.Equal(t, []string{"Cay"}, *gotUpdate.LikedTags)
		assert.Nil(t, gotUpdate.Gender)
	})

	t.Run("unknown user returns 404", func(t *testing.T) {
		mock := &mockCatalogService{
			ready: true,
			refreshUser: func(context.Context, string, models.UserUpdate) error {
				return recerrors.NewNotFoundError("user", "user ghost not found")
			},
		}
		h := NewCatalogHandler(mock)

		req := httptest.NewRequest(http.MethodPut, "http://test/v1/users/ghost", strings.NewReader(`{}`))
		req.SetPathValue("id", "ghost")
		rec := httptest.NewRecorder()

		h.UpdateUser(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCatalogHandler_UpdateDish(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotUpdate models.DishUpdate
		mock := &mockCatalogService{
			ready: true,
			refreshDish: func(_ context.Context, dishID string, update models.DishUpdate) error {
				assert.Equal(t, "d1", dishID)
				gotUpdate = update
				return nil
			},
		}
		h := NewCatalogHandler(mock)

		req := httptest.NewRequest(http.MethodPut, "http://test/v1/dishes/d1",
			strings.NewReader(`{"price":45000,"taste_tags":["Cay","Mặn"]}`))
		req.SetPathValue("id", "d1")
		rec := httptest.NewRecorder()

		h.UpdateDish(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotUpdate.Price)
		assert.Equal(t, 45000.0, *gotUpdate.Price)
	})

	t.Run("invalid body returns 400", func(t *testing.T) {
		h := NewCatalogHandler(&mockCatalogService{ready: true})

		req := httptest.NewRequest(http.MethodPut, "http://test/v1/dishes/d1", strings.NewReader(`{price:}`))
		req.SetPathValue("id", "d1")
		rec := httptest.NewRecorder()

		h.UpdateDish(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no snapshot returns 503", func(t *testing.T) {
		h := NewCatalogHandler(&mockCatalogService{ready: false})

		req := httptest.NewRequest(http.MethodPut, "http://test/v1/dishes/d1", strings.NewReader(`{}`))
		req.SetPathValue("id", "d1")
		rec := httptest.NewRecorder()

		h.UpdateDish(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
