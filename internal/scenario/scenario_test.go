package scenario

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/recerrors"
)

type stubRecommender struct {
	dishes  map[string]*models.Dish
	results []models.ScoredDish
	calls   []string
}

func (s *stubRecommender) RecommendForUser(_ context.Context, userID string, _ int, _ string) ([]models.ScoredDish, error) {
	s.calls = append(s.calls, "user:"+userID)
	return s.results, nil
}

func (s *stubRecommender) RecommendForProfile(_ context.Context, _ models.Preferences, _ int) ([]models.ScoredDish, error) {
	s.calls = append(s.calls, "profile")
	return s.results, nil
}

func (s *stubRecommender) SimilarForProfile(_ context.Context, _ models.Preferences, _ int, _ string) ([]models.ScoredDish, error) {
	s.calls = append(s.calls, "dish_profile")
	return s.results, nil
}

func (s *stubRecommender) Dish(id string) *models.Dish {
	return s.dishes[id]
}

func fixtureStub() *stubRecommender {
	return &stubRecommender{
		dishes: map[string]*models.Dish{
			"d1": {ID: "d1", Category: "noodle", Price: 40000, CultureTags: []string{"Việt Nam"}, TasteTags: []string{"Cay"}},
			"d2": {ID: "d2", Category: "noodle", Price: 50000, CultureTags: []string{"Việt Nam"}, TasteTags: []string{"Mặn"}},
			"d3": {ID: "d3", Category: "rice", Price: 90000, CultureTags: []string{"Nhật Bản"}, TasteTags: []string{"Ngọt"}},
			"d4": {ID: "d4", Category: "rice", Price: math.NaN()},
		},
		results: []models.ScoredDish{
			{DishID: "d1", Score: 0.9},
			{DishID: "d2", Score: 0.8},
			{DishID: "d3", Score: 0.7},
			{DishID: "d4", Score: 0.6},
		},
	}
}

func TestRun(t *testing.T) {
	stub := fixtureStub()
	ev := NewEvaluator(stub, DefaultDefinitions())

	t.Run("profile scenario analytics", func(t *testing.T) {
		rep, err := ev.Run(context.Background(), "cold_start_user")
		require.NoError(t, err)

		assert.Equal(t, "cold_start_user", rep.Scenario)
		assert.Equal(t, []string{"profile"}, stub.calls)

		a := rep.Analytics
		assert.Equal(t, 4, a.ResultCount)
		assert.InDelta(t, 0.5, a.Diversity, 1e-9) // noodle, rice over 4 results
		assert.InDelta(t, 60000, a.PriceMean, 1e-9)
		assert.InDelta(t, 40000, a.PriceMin, 1e-9)
		assert.InDelta(t, 90000, a.PriceMax, 1e-9)
		assert.InDelta(t, 0.5, a.CuisineAlignment, 1e-9) // 2 of 4 are Việt Nam
		assert.InDelta(t, 0.25, a.TasteAlignment, 1e-9)  // only d1 is Cay
	})

	t.Run("dish profile scenario routes to similarity", func(t *testing.T) {
		stub := fixtureStub()
		ev := NewEvaluator(stub, DefaultDefinitions())

		_, err := ev.Run(context.Background(), "cold_start_dish")
		require.NoError(t, err)
		assert.Equal(t, []string{"dish_profile"}, stub.calls)
	})

	t.Run("unknown scenario is not found", func(t *testing.T) {
		_, err := ev.Run(context.Background(), "black_friday")
		require.Error(t, err)
		assert.True(t, errors.Is(err, recerrors.ErrNotFound))
	})

	t.Run("price alignment over priced results only", func(t *testing.T) {
		stub := fixtureStub()
		ev := NewEvaluator(stub, []Definition{{
			Name:        "budget",
			Kind:        KindProfile,
			Preferences: models.Preferences{PriceRange: models.PriceRangeBudget},
		}})

		rep, err := ev.Run(context.Background(), "budget")
		require.NoError(t, err)
		// d1 and d2 of the three priced results are under the cap
		assert.InDelta(t, 2.0/3.0, rep.Analytics.PriceAlignment, 1e-9)
	})
}

func TestLoadDefinitions(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()

		path := filepath.Join(t.TempDir(), "scenarios.json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		return path
	}

	t.Run("valid document", func(t *testing.T) {
		defs, err := LoadDefinitions(write(t, `{
			"scenarios": [
				{"name": "regulars", "kind": "user", "user_id": "u1", "top_k": 5},
				{"name": "cheap_eats", "kind": "profile", "preferences": {"price_range": "budget"}}
			]
		}`))
		require.NoError(t, err)
		require.Len(t, defs, 2)
		assert.Equal(t, "u1", defs[0].UserID)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := LoadDefinitions(write(t, `{"scenarios": [{"name": "x", "kind": "magic"}]}`))
		assert.Error(t, err)
	})

	t.Run("user kind without user_id rejected", func(t *testing.T) {
		_, err := LoadDefinitions(write(t, `{"scenarios": [{"name": "x", "kind": "user"}]}`))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDefinitions(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}
