package repository

import (
	"context"

	"github.com/platefeed/recsys/internal/models"
)

// ModelVersioner exposes the active model version the retriever should
// query under.
type ModelVersioner interface {
	ModelVersion() string
}

// NearestSearcher is the slice of DishVectorRepository the retriever needs.
type NearestSearcher interface {
	Nearest(ctx context.Context, modelVersion string, queryVector []float32, limit int, storeID, excludeDishID string) ([]models.ScoredDish, error)
}

// PgVectorRetriever satisfies the engine's retrieval contract against the
// dish_vectors table, letting an HNSW/IVFFlat index take over from the
// in-memory scan when the catalog outgrows it.
type PgVectorRetriever struct {
	repo     NearestSearcher
	versions ModelVersioner

	// maxLimit stands in for "no truncation" requests, which SQL LIMIT
	// cannot express directly.
	maxLimit int
}

// NewPgVectorRetriever builds a retriever over the repository.
func NewPgVectorRetriever(repo NearestSearcher, versions ModelVersioner) *PgVectorRetriever {
	return &PgVectorRetriever{repo: repo, versions: versions, maxLimit: 10000}
}

// Retrieve ranks stored dish vectors against the query.
func (r *PgVectorRetriever) Retrieve(ctx context.Context, query []float32, topK int, storeID, excludeDishID string) ([]models.ScoredDish, error) {
	limit := topK
	if limit < 0 || limit > r.maxLimit {
		limit = r.maxLimit
	}

	if limit == 0 {
		return nil, nil
	}

	return r.repo.Nearest(ctx, r.versions.ModelVersion(), query, limit, storeID, excludeDishID)
}
