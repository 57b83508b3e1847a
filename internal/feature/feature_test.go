package feature

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefeed/recsys/internal/catalog"
	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/vocab"
)

var canonicalTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func testEncoder(t *testing.T) *Encoder {
	t.Helper()

	c := catalog.New(
		[]*models.User{{ID: "u1"}},
		[]*models.Dish{{ID: "d1", StoreID: "s1", Category: "noodle"}},
		[]*models.Store{{ID: "s1"}},
		[]models.Tag{
			{Name: "Phở", Namespace: models.NamespaceFood},
			{Name: "Cay", Namespace: models.NamespaceTaste},
			{Name: "Việt Nam", Namespace: models.NamespaceCulture},
		},
	)

	return NewEncoder(vocab.Build(c), PopularityStats{})
}

func TestEncodeUser(t *testing.T) {
	e := testEncoder(t)

	t.Run("known user", func(t *testing.T) {
		u := &models.User{
			ID:        "u1",
			Age:       30,
			Gender:    "female",
			LikedTags: []string{"Cay", "Việt Nam"},
		}

		f := e.EncodeUser(u, canonicalTime)
		assert.Equal(t, int32(1), f.UserID)
		assert.InDelta(t, 0.30, f.Age, 1e-6)
		assert.Equal(t, GenderFemale, f.Gender)
		assert.Equal(t, 2, f.LikedTags.N)
		assert.Equal(t, 0, f.DislikedTags.N)
	})

	t.Run("canonical time encodes to midday monday", func(t *testing.T) {
		f := e.EncodeUser(nil, canonicalTime)
		assert.InDelta(t, 0.5, f.Hour, 1e-6)
		assert.Equal(t, int32(0), f.Weekday)
	})

	t.Run("nil user falls back to defaults", func(t *testing.T) {
		f := e.EncodeUser(nil, canonicalTime)
		assert.Equal(t, int32(0), f.UserID)
		assert.InDelta(t, 0.25, f.Age, 1e-6)
		assert.Equal(t, GenderUnknown, f.Gender)
	})

	t.Run("missing age substitutes default", func(t *testing.T) {
		f := e.EncodeUser(&models.User{ID: "u1", Age: math.NaN()}, canonicalTime)
		assert.InDelta(t, 0.25, f.Age, 1e-6)
	})

	t.Run("unrecognized gender maps to unknown", func(t *testing.T) {
		f := e.EncodeUser(&models.User{ID: "u1", Gender: "nonbinary"}, canonicalTime)
		assert.Equal(t, GenderUnknown, f.Gender)
	})
}

func TestEncodeDish(t *testing.T) {
	e := testEncoder(t)

	t.Run("known dish", func(t *testing.T) {
		d := &models.Dish{
			ID:       "d1",
			StoreID:  "s1",
			Category: "noodle",
			Price:    45000,
			Rating:   4.5,
			FoodTags: []string{"Phở"},
		}

		f := e.EncodeDish(d, canonicalTime)
		assert.Equal(t, int32(1), f.DishID)
		assert.Equal(t, int32(1), f.StoreID)
		assert.Equal(t, int32(1), f.Category)
		assert.InDelta(t, 0.45, f.Price, 1e-6)
		assert.InDelta(t, 0.90, f.Rating, 1e-6)
		assert.Equal(t, 1, f.Tags.N)
	})

	t.Run("missing rating substitutes default", func(t *testing.T) {
		f := e.EncodeDish(&models.Dish{ID: "d1", Rating: math.NaN()}, canonicalTime)
		assert.InDelta(t, 0.6, f.Rating, 1e-6)
	})

	t.Run("missing price encodes as zero", func(t *testing.T) {
		f := e.EncodeDish(&models.Dish{ID: "d1", Price: math.NaN()}, canonicalTime)
		assert.Zero(t, f.Price)
	})

	t.Run("unseen ids map to index zero", func(t *testing.T) {
		f := e.EncodeDish(&models.Dish{ID: "ghost", StoreID: "nowhere", Category: "??"}, canonicalTime)
		assert.Equal(t, int32(0), f.DishID)
		assert.Equal(t, int32(0), f.StoreID)
		assert.Equal(t, int32(0), f.Category)
	})

	t.Run("popularity standardized by sidecar stats", func(t *testing.T) {
		scaled := NewEncoder(e.vocabs, PopularityStats{Mean: 50, Std: 25})
		f := scaled.EncodeDish(&models.Dish{ID: "d1", OrderCount: 100}, canonicalTime)
		assert.InDelta(t, 2.0, f.Popularity, 1e-6)
	})
}

func TestEncodeTags(t *testing.T) {
	e := testEncoder(t)

	t.Run("dedupes and drops unknown", func(t *testing.T) {
		list := e.EncodeTags([]string{"Cay", "Cay", "Bún riêu", "Phở"})
		assert.Equal(t, 2, list.N)
		assert.Equal(t, int32(0), list.IDs[2], "tail stays padded")
	})

	t.Run("truncates past the trained width", func(t *testing.T) {
		names := make([]string, 0, 30)
		tags := make([]models.Tag, 0, 30)

		for i := 0; i < 30; i++ {
			name := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC).Format("Jan 2")
			names = append(names, name)
			tags = append(tags, models.Tag{Name: name, Namespace: models.NamespaceFood})
		}

		c := catalog.New(nil, nil, nil, tags)
		wide := NewEncoder(vocab.Build(c), PopularityStats{})

		list := wide.EncodeTags(names)
		require.Equal(t, MaxTags, list.N)
	})
}
