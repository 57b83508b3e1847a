package repository

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/pkg/vecmath"
)

type fakeSearcher struct {
	vectors map[string][]float32
	stores  map[string]string

	lastVersion string
	lastLimit   int
	lastStore   string
	lastExclude string
	calls       int
}

// Nearest mirrors the SQL ordering: 1 - cosine distance over unit
// vectors reduces to the dot product, descending.
func (f *fakeSearcher) Nearest(_ context.Context, modelVersion string, queryVector []float32, limit int, storeID, excludeDishID string) ([]models.ScoredDish, error) {
	f.calls++
	f.lastVersion = modelVersion
	f.lastLimit = limit
	f.lastStore = storeID
	f.lastExclude = excludeDishID

	var results []models.ScoredDish
	for dishID, vector := range f.vectors {
		if dishID == excludeDishID {
			continue
		}
		if storeID != "" && f.stores[dishID] != storeID {
			continue
		}
		results = append(results, models.ScoredDish{
			DishID:  dishID,
			StoreID: f.stores[dishID],
			Score:   vecmath.Dot(queryVector, vector),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

type staticVersion string

func (v staticVersion) ModelVersion() string { return string(v) }

func testSearcher() *fakeSearcher {
	return &fakeSearcher{
		vectors: map[string][]float32{
			"dish-1": {1, 0, 0, 0},
			"dish-2": {0, 1, 0, 0},
			"dish-3": {0.8, 0.6, 0, 0},
		},
		stores: map[string]string{
			"dish-1": "store-a",
			"dish-2": "store-b",
			"dish-3": "store-a",
		},
	}
}

func TestPgVectorRetrieverRanksLikeBruteForce(t *testing.T) {
	searcher := testSearcher()
	retriever := NewPgVectorRetriever(searcher, staticVersion("v1"))

	results, err := retriever.Retrieve(context.Background(), []float32{1, 0, 0, 0}, 3, "", "")
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "dish-1", results[0].DishID)
	assert.Equal(t, "dish-3", results[1].DishID)
	assert.Equal(t, "dish-2", results[2].DishID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.8, results[1].Score, 1e-6)
	assert.Equal(t, "v1", searcher.lastVersion)
}

func TestPgVectorRetrieverFilters(t *testing.T) {
	searcher := testSearcher()
	retriever := NewPgVectorRetriever(searcher, staticVersion("v1"))

	results, err := retriever.Retrieve(context.Background(), []float32{1, 0, 0, 0}, 5, "store-a", "dish-1")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "dish-3", results[0].DishID)
	assert.Equal(t, "store-a", searcher.lastStore)
	assert.Equal(t, "dish-1", searcher.lastExclude)
}

func TestPgVectorRetrieverLimitNormalization(t *testing.T) {
	tests := []struct {
		name      string
		topK      int
		wantLimit int
	}{
		{name: "negative means unbounded", topK: -1, wantLimit: 10000},
		{name: "over cap clamps", topK: 200000, wantLimit: 10000},
		{name: "in range passes through", topK: 2, wantLimit: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			searcher := testSearcher()
			retriever := NewPgVectorRetriever(searcher, staticVersion("v1"))

			_, err := retriever.Retrieve(context.Background(), []float32{0, 1, 0, 0}, tc.topK, "", "")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLimit, searcher.lastLimit)
		})
	}
}

func TestPgVectorRetrieverZeroTopK(t *testing.T) {
	searcher := testSearcher()
	retriever := NewPgVectorRetriever(searcher, staticVersion("v1"))

	results, err := retriever.Retrieve(context.Background(), []float32{0, 1, 0, 0}, 0, "", "")
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, searcher.calls)
}
