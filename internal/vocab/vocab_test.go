package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefeed/recsys/internal/catalog"
	"github.com/platefeed/recsys/internal/models"
)

func TestVocabulary(t *testing.T) {
	v := New([]string{"Phở", "Cay", "Phở", "", "Ngọt"})

	t.Run("index zero reserved for unknown", func(t *testing.T) {
		assert.Equal(t, int32(0), v.Index("Bún"))
		assert.Equal(t, "", v.Value(0))
	})

	t.Run("first seen order, duplicates skipped", func(t *testing.T) {
		assert.Equal(t, int32(1), v.Index("Phở"))
		assert.Equal(t, int32(2), v.Index("Cay"))
		assert.Equal(t, int32(3), v.Index("Ngọt"))
		assert.Equal(t, 4, v.Size())
	})

	t.Run("bijective over known values", func(t *testing.T) {
		for _, val := range v.Values() {
			assert.Equal(t, val, v.Value(v.Index(val)))
		}
	})

	t.Run("out of range value lookup", func(t *testing.T) {
		assert.Equal(t, "", v.Value(99))
		assert.Equal(t, "", v.Value(-1))
	})
}

func TestBuild(t *testing.T) {
	c := catalog.New(
		[]*models.User{{ID: "u2"}, {ID: "u1"}},
		[]*models.Dish{
			{ID: "d1", Category: "noodle"},
			{ID: "d2", Category: "rice"},
			{ID: "d3", Category: "noodle"},
		},
		[]*models.Store{{ID: "s1"}},
		[]models.Tag{
			{Name: "Việt Nam", Namespace: models.NamespaceCulture},
			{Name: "Phở", Namespace: models.NamespaceFood},
		},
	)

	s := Build(c)

	assert.Equal(t, int32(1), s.Users.Index("u2"))
	assert.Equal(t, int32(2), s.Users.Index("u1"))
	assert.Equal(t, []string{"noodle", "rice"}, s.Categories.Values())
	// namespace order puts food before culture regardless of input order
	assert.Equal(t, []string{"Phở", "Việt Nam"}, s.Tags.Values())
	assert.Equal(t, 4, s.Dishes.Size())
}

func TestFromValueLists(t *testing.T) {
	s := &Set{
		Users:      New([]string{"u1"}),
		Dishes:     New([]string{"d1", "d2"}),
		Stores:     New([]string{"s1"}),
		Categories: New([]string{"noodle"}),
		Tags:       New([]string{"Phở"}),
	}

	rebuilt, err := FromValueLists(s.ValueLists())
	require.NoError(t, err)
	assert.Equal(t, s.Sizes(), rebuilt.Sizes())
	assert.Equal(t, int32(2), rebuilt.Dishes.Index("d2"))

	_, err = FromValueLists(map[string][]string{"user": nil})
	assert.Error(t, err)
}
