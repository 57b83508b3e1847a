package engine

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefeed/recsys/internal/catalog"
	"github.com/platefeed/recsys/internal/feature"
	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/tower"
	"github.com/platefeed/recsys/internal/vocab"
	"github.com/platefeed/recsys/pkg/vecmath"
)

// fixtureCatalog builds two stores with ten dishes each: a budget
// Vietnamese place and a premium Japanese one, with deterministic tag and
// price assignments.
func fixtureCatalog() *catalog.Catalog {
	tags := []models.Tag{
		{ID: "f1", Name: "Phở", Namespace: models.NamespaceFood},
		{ID: "f2", Name: "Cơm", Namespace: models.NamespaceFood},
		{ID: "t1", Name: "Cay", Namespace: models.NamespaceTaste},
		{ID: "t2", Name: "Ngọt", Namespace: models.NamespaceTaste},
		{ID: "t3", Name: "Mặn", Namespace: models.NamespaceTaste},
		{ID: "c1", Name: "Nước", Namespace: models.NamespaceCooking},
		{ID: "cu1", Name: "Việt Nam", Namespace: models.NamespaceCulture},
		{ID: "cu2", Name: "Nhật Bản", Namespace: models.NamespaceCulture},
	}

	var dishes []*models.Dish

	for i := 0; i < 10; i++ {
		taste := "Cay"
		if i%2 == 1 {
			taste = "Mặn"
		}

		dishes = append(dishes, &models.Dish{
			ID:          fmt.Sprintf("vn-%d", i),
			StoreID:     "s1",
			Category:    "noodle",
			Price:       float64(30000 + i*3000), // 30k..57k
			Rating:      4.0,
			FoodTags:    []string{"Phở"},
			TasteTags:   []string{taste},
			CultureTags: []string{"Việt Nam"},
		})
	}

	for i := 0; i < 10; i++ {
		dishes = append(dishes, &models.Dish{
			ID:          fmt.Sprintf("jp-%d", i),
			StoreID:     "s2",
			Category:    "rice",
			Price:       float64(75000 + i*5000), // 75k..120k
			Rating:      4.5,
			FoodTags:    []string{"Cơm"},
			TasteTags:   []string{"Ngọt"},
			CultureTags: []string{"Nhật Bản"},
		})
	}

	users := []*models.User{
		{ID: "u1", Age: 28, Gender: "female", LikedTags: []string{"Cay", "Việt Nam"}},
		{ID: "u2", Age: 45, Gender: "male", LikedTags: []string{"Ngọt"}},
	}

	stores := []*models.Store{
		{ID: "s1", Name: "Quán Bà Năm", PriceRange: "budget", Rating: 4.2},
		{ID: "s2", Name: "Tokyo House", PriceRange: "premium", Rating: 4.8},
	}

	return catalog.New(users, dishes, stores, tags)
}

func fixtureInputs(t *testing.T) *Inputs {
	t.Helper()

	c := fixtureCatalog()
	sc := tower.SidecarFor("fixture-1", 16, vocab.Build(c), feature.PopularityStats{Std: 1})

	w, err := tower.Random(sc, 99)
	require.NoError(t, err)

	return &Inputs{Catalog: c, Sidecar: sc, Weights: w}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	in := fixtureInputs(t)
	loader := LoaderFunc(func(context.Context) (*Inputs, error) { return in, nil })

	e := New(loader, slog.Default(), opts...)
	require.NoError(t, e.Load(context.Background()))

	return e
}

func TestLoad(t *testing.T) {
	t.Run("not ready before load", func(t *testing.T) {
		e := New(LoaderFunc(func(context.Context) (*Inputs, error) { return nil, nil }), slog.Default())
		assert.False(t, e.Ready())

		_, err := e.RecommendForUser(context.Background(), "u1", 5, "")
		assert.Error(t, err)
	})

	t.Run("cache complete after build", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.snap.Load()

		require.Len(t, s.vectors, 20)
		for _, d := range s.catalog.Dishes {
			assert.Contains(t, s.vectors, d.ID)
		}

		assert.Equal(t, "fixture-1", e.ModelVersion())
	})

	t.Run("version advances on reload", func(t *testing.T) {
		e := newTestEngine(t)
		v := e.Version()

		require.NoError(t, e.Load(context.Background()))
		assert.Greater(t, e.Version(), v)
	})

	t.Run("failed reload keeps previous snapshot", func(t *testing.T) {
		in := fixtureInputs(t)
		fail := false
		loader := LoaderFunc(func(context.Context) (*Inputs, error) {
			if fail {
				return nil, fmt.Errorf("export is down")
			}

			return in, nil
		})

		e := New(loader, slog.Default())
		require.NoError(t, e.Load(context.Background()))
		v := e.Version()

		fail = true
		require.Error(t, e.Load(context.Background()))
		assert.Equal(t, v, e.Version())

		res, err := e.RecommendForUser(context.Background(), "u1", 5, "")
		require.NoError(t, err)
		assert.NotEmpty(t, res)
	})
}

func TestRecommendForUser(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("ranked descending within bounds", func(t *testing.T) {
		res, err := e.RecommendForUser(ctx, "u1", 5, "")
		require.NoError(t, err)
		require.Len(t, res, 5)

		for i, r := range res {
			assert.GreaterOrEqual(t, r.Score, -1.0)
			assert.LessOrEqual(t, r.Score, 1.0)

			if i > 0 {
				assert.LessOrEqual(t, r.Score, res[i-1].Score)
			}
		}
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		_, err := e.RecommendForUser(ctx, "ghost", 5, "")
		require.Error(t, err)
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("store filter holds on every result", func(t *testing.T) {
		res, err := e.RecommendForUser(ctx, "u1", 20, "s2")
		require.NoError(t, err)
		require.NotEmpty(t, res)

		for _, r := range res {
			assert.Equal(t, "s2", r.StoreID)
		}
	})

	t.Run("unknown store filter yields empty result", func(t *testing.T) {
		res, err := e.RecommendForUser(ctx, "u1", 5, "closed-down")
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}

func TestSimilarDishes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("self is excluded at any k", func(t *testing.T) {
		for _, k := range []int{1, 5, 19} {
			res, err := e.SimilarDishes(ctx, "vn-3", k, "")
			require.NoError(t, err)
			require.Len(t, res, k)

			for _, r := range res {
				assert.NotEqual(t, "vn-3", r.DishID)
			}
		}
	})

	t.Run("uncached dish is not found", func(t *testing.T) {
		_, err := e.SimilarDishes(ctx, "ghost", 5, "")
		assert.Error(t, err)
	})

	t.Run("self similarity of the cached vector is one", func(t *testing.T) {
		s := e.snap.Load()
		d := s.catalog.Dish("vn-3")
		fresh, err := s.embedDish(d)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, vecmath.Dot(fresh, s.vectors["vn-3"]), 1e-5)
	})
}

func TestRecommendForProfile(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("budget vietnamese profile stays in bucket", func(t *testing.T) {
		prefs := models.Preferences{Cuisine: []string{"Việt Nam"}, PriceRange: models.PriceRangeBudget}

		res, err := e.RecommendForProfile(ctx, prefs, 5)
		require.NoError(t, err)
		require.NotEmpty(t, res)
		require.LessOrEqual(t, len(res), 5)

		s := e.snap.Load()
		for i, r := range res {
			d := s.catalog.Dish(r.DishID)
			require.NotNil(t, d)
			assert.Contains(t, d.CultureTags, "Việt Nam")
			assert.LessOrEqual(t, d.Price, 60000.0)

			if i > 0 {
				assert.LessOrEqual(t, r.Score, res[i-1].Score)
			}
		}
	})

	t.Run("unmatchable profile falls back to catalog mean", func(t *testing.T) {
		var fallbacks int
		e := newTestEngine(t, WithHooks(Hooks{ColdStartFallback: func() { fallbacks++ }}))

		prefs := models.Preferences{Cuisine: []string{"Sao Hỏa"}, PriceRange: models.PriceRangePremium}

		res, err := e.RecommendForProfile(ctx, prefs, 5)
		require.NoError(t, err)
		assert.NotEmpty(t, res)
		assert.Equal(t, 1, fallbacks)
	})

	t.Run("empty profile returns ranked results", func(t *testing.T) {
		res, err := e.RecommendForProfile(ctx, models.Preferences{}, 7)
		require.NoError(t, err)
		assert.Len(t, res, 7)
	})

	t.Run("proxy vector is unit norm", func(t *testing.T) {
		vec, err := e.ProfileVector(models.Preferences{Taste: []string{"Cay"}})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, vecmath.Norm(vec), 1e-5)
	})
}

func TestTags(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("tags for order are ranked and bounded", func(t *testing.T) {
		res, err := e.TagsForOrder(ctx, []string{"vn-0", "vn-1"}, 3)
		require.NoError(t, err)
		require.Len(t, res, 3)

		for i := 1; i < len(res); i++ {
			assert.LessOrEqual(t, res[i].Score, res[i-1].Score)
		}
	})

	t.Run("all unknown dish ids yield empty result", func(t *testing.T) {
		res, err := e.TagsForOrder(ctx, []string{"ghost-1", "ghost-2"}, 3)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("unknown ids among known ones drop out", func(t *testing.T) {
		res, err := e.TagsForOrder(ctx, []string{"vn-0", "ghost"}, 3)
		require.NoError(t, err)
		assert.NotEmpty(t, res)
	})

	t.Run("tags for user carry namespaces", func(t *testing.T) {
		res, err := e.TagsForUser(ctx, "u1", 5)
		require.NoError(t, err)
		require.NotEmpty(t, res)

		for _, r := range res {
			assert.NotEmpty(t, r.Namespace)
		}
	})

	t.Run("tags for unknown user is not found", func(t *testing.T) {
		_, err := e.TagsForUser(ctx, "ghost", 5)
		assert.Error(t, err)
	})
}

func TestRefreshDish(t *testing.T) {
	e := newTestEngine(t)

	before := e.snap.Load()
	beforeVectors := make(map[string][]float32, len(before.vectors))
	for id, v := range before.vectors {
		beforeVectors[id] = v
	}

	price := 59000.0
	taste := []string{"Ngọt"}
	vec, err := e.RefreshDish("vn-4", models.DishUpdate{Price: &price, TasteTags: &taste})
	require.NoError(t, err)

	after := e.snap.Load()

	t.Run("only the refreshed dish vector changes", func(t *testing.T) {
		assert.NotEqual(t, beforeVectors["vn-4"], after.vectors["vn-4"])

		for id, v := range beforeVectors {
			if id == "vn-4" {
				continue
			}

			// bit-identical, same backing array
			assert.Equal(t, fmt.Sprintf("%p", v), fmt.Sprintf("%p", after.vectors[id]))
		}
	})

	t.Run("catalog record updated copy-on-write", func(t *testing.T) {
		assert.Equal(t, 59000.0, after.catalog.Dish("vn-4").Price)
		assert.NotEqual(t, 59000.0, before.catalog.Dish("vn-4").Price)
	})

	t.Run("version advances", func(t *testing.T) {
		assert.Greater(t, after.version, before.version)
	})

	t.Run("returned vector is the cached one", func(t *testing.T) {
		assert.Equal(t, after.vectors["vn-4"], vec)
	})

	t.Run("unknown dish is not found", func(t *testing.T) {
		_, err := e.RefreshDish("ghost", models.DishUpdate{})
		assert.Error(t, err)
	})

	t.Run("dish absent from the cache becomes retrievable", func(t *testing.T) {
		e := newTestEngine(t)
		s := e.snap.Load()

		// a snapshot where vn-7 never made it into the cache build
		degraded := *s
		degraded.vectors = make(map[string][]float32, len(s.vectors))
		degraded.dishOrder = nil
		for _, id := range s.dishOrder {
			if id == "vn-7" {
				continue
			}
			degraded.vectors[id] = s.vectors[id]
			degraded.dishOrder = append(degraded.dishOrder, id)
		}
		degraded.tagOrder = nil
		degraded.rebuildAggregates()
		e.snap.Store(&degraded)

		price := 31000.0
		_, err := e.RefreshDish("vn-7", models.DishUpdate{Price: &price})
		require.NoError(t, err)

		next := e.snap.Load()
		assert.Contains(t, next.dishOrder, "vn-7")
		assert.Contains(t, next.vectors, "vn-7")

		res, err := e.RecommendForUser(context.Background(), "u1", 20, "")
		require.NoError(t, err)

		ids := make([]string, 0, len(res))
		for _, r := range res {
			ids = append(ids, r.DishID)
		}
		assert.Contains(t, ids, "vn-7")
	})
}

func TestRefreshUser(t *testing.T) {
	e := newTestEngine(t)

	vecBefore, err := e.UserVector("u1")
	require.NoError(t, err)

	liked := []string{"Ngọt", "Nhật Bản"}
	require.NoError(t, e.RefreshUser("u1", models.UserUpdate{LikedTags: &liked}))

	t.Run("profile vector reflects the update", func(t *testing.T) {
		vecAfter, err := e.UserVector("u1")
		require.NoError(t, err)
		assert.NotEqual(t, vecBefore, vecAfter)
	})

	t.Run("dish cache untouched", func(t *testing.T) {
		s := e.snap.Load()
		assert.Len(t, s.vectors, 20)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		assert.Error(t, e.RefreshUser("ghost", models.UserUpdate{}))
	})
}
