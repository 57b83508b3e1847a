package engine

import (
	"context"
	"sort"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/pkg/vecmath"
)

// Retriever ranks cached dish vectors against a query vector. The in-memory
// scan below is the default; an approximate index (pgvector) satisfies the
// same contract and swaps in without touching callers.
//
// storeID, when non-empty, restricts candidates to one store; a filter that
// matches nothing yields an empty result, never an error. excludeDishID
// drops that dish from the result (the self-exclusion path for similarity
// queries).
type Retriever interface {
	Retrieve(ctx context.Context, query []float32, topK int, storeID, excludeDishID string) ([]models.ScoredDish, error)
}

// memoryRetriever is the brute-force scan over the engine's current
// snapshot: every candidate is scored with a dot product, sorted
// descending, stable in catalog row order for equal scores.
type memoryRetriever struct {
	engine *Engine
}

func (r *memoryRetriever) Retrieve(ctx context.Context, query []float32, topK int, storeID, excludeDishID string) ([]models.ScoredDish, error) {
	s, err := r.engine.current()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scored := make([]models.ScoredDish, 0, len(s.dishOrder))

	for _, id := range s.dishOrder {
		if id == excludeDishID {
			continue
		}

		d := s.catalog.Dish(id)
		if d == nil {
			continue
		}

		if storeID != "" && d.StoreID != storeID {
			continue
		}

		scored = append(scored, models.ScoredDish{
			DishID:  id,
			StoreID: d.StoreID,
			Score:   vecmath.Dot(query, s.vectors[id]),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK >= 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	return scored, nil
}
