// Package service fronts the engine for the HTTP layer: it caches user
// profile vectors, collapses concurrent identical embeds, and records
// metrics around retrieval.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/platefeed/recsys/internal/engine"
	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/observability"
)

// DefaultProfileCacheSize bounds the user profile vector cache.
const DefaultProfileCacheSize = 4096

// VectorStore mirrors dish vectors into external storage so an external
// retrieval backend serves the same embeddings as the in-memory cache.
type VectorStore interface {
	Upsert(ctx context.Context, dishID, storeID, modelVersion string, vector []float32) error
}

// Recommender is the read-side service facade.
type Recommender struct {
	engine  *engine.Engine
	logger  *slog.Logger
	metrics observability.Metrics // nil disables
	vectors VectorStore           // nil disables

	profiles *lru.Cache[string, []float32]
	inflight singleflight.Group
}

// NewRecommender builds the facade. cacheSize <= 0 selects the default.
func NewRecommender(e *engine.Engine, logger *slog.Logger, metrics observability.Metrics, vectors VectorStore, cacheSize int) (*Recommender, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultProfileCacheSize
	}

	profiles, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create profile cache: %w", err)
	}

	return &Recommender{
		engine:   e,
		logger:   logger,
		metrics:  metrics,
		vectors:  vectors,
		profiles: profiles,
	}, nil
}

// userVector returns a user's profile vector, cached per engine snapshot.
// The key carries the snapshot version, so reloads and refreshes
// invalidate implicitly: stale entries stop being addressable and age out
// of the LRU.
func (r *Recommender) userVector(ctx context.Context, userID string) ([]float32, error) {
	key := fmt.Sprintf("%s@%d", userID, r.engine.Version())

	if vec, ok := r.profiles.Get(key); ok {
		if r.metrics != nil {
			r.metrics.RecordProfileCache(ctx, true)
		}

		return vec, nil
	}

	if r.metrics != nil {
		r.metrics.RecordProfileCache(ctx, false)
	}

	vec, err, _ := r.inflight.Do(key, func() (any, error) {
		v, err := r.engine.UserVector(userID)
		if err != nil {
			return nil, err
		}

		r.profiles.Add(key, v)

		return v, nil
	})
	if err != nil {
		return nil, err
	}

	return vec.([]float32), nil
}

// RecommendForUser ranks dishes for a known user.
func (r *Recommender) RecommendForUser(ctx context.Context, userID string, topK int, storeID string) ([]models.ScoredDish, error) {
	query, err := r.userVector(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	results, err := r.engine.Retrieve(ctx, query, topK, storeID, "")
	if err != nil {
		return nil, err
	}

	r.recordRetrieval(ctx, "user", len(results), start)

	return results, nil
}

// RecommendForProfile ranks dishes for cold-start preferences.
func (r *Recommender) RecommendForProfile(ctx context.Context, prefs models.Preferences, topK int) ([]models.ScoredDish, error) {
	start := time.Now()

	results, err := r.engine.RecommendForProfile(ctx, prefs, topK)
	if err != nil {
		return nil, err
	}

	r.recordRetrieval(ctx, "profile", len(results), start)

	return results, nil
}

// SimilarDishes ranks dishes near a cached dish.
func (r *Recommender) SimilarDishes(ctx context.Context, dishID string, topK int, storeID string) ([]models.ScoredDish, error) {
	start := time.Now()

	results, err := r.engine.SimilarDishes(ctx, dishID, topK, storeID)
	if err != nil {
		return nil, err
	}

	r.recordRetrieval(ctx, "similar", len(results), start)

	return results, nil
}

// SimilarForProfile ranks dishes near a hypothetical dish profile.
func (r *Recommender) SimilarForProfile(ctx context.Context, prefs models.Preferences, topK int, storeID string) ([]models.ScoredDish, error) {
	start := time.Now()

	results, err := r.engine.SimilarForProfile(ctx, prefs, topK, storeID)
	if err != nil {
		return nil, err
	}

	r.recordRetrieval(ctx, "similar_profile", len(results), start)

	return results, nil
}

// TagsForOrder ranks tags against an order's mean dish vector.
func (r *Recommender) TagsForOrder(ctx context.Context, dishIDs []string, topK int) ([]models.ScoredTag, error) {
	return r.engine.TagsForOrder(ctx, dishIDs, topK)
}

// TagsForUser ranks tags against a user's profile vector.
func (r *Recommender) TagsForUser(ctx context.Context, userID string, topK int) ([]models.ScoredTag, error) {
	return r.engine.TagsForUser(ctx, userID, topK)
}

// RefreshUser overwrites user fields; the profile cache entry invalidates
// through the version bump.
func (r *Recommender) RefreshUser(ctx context.Context, userID string, update models.UserUpdate) error {
	if err := r.engine.RefreshUser(userID, update); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "user profile refreshed", "user_id", userID)

	return nil
}

// RefreshDish overwrites dish fields and recomputes its cached vector. The
// new vector is written through to the vector store, so a pgvector-backed
// retriever ranks the dish by its refreshed embedding immediately.
func (r *Recommender) RefreshDish(ctx context.Context, dishID string, update models.DishUpdate) error {
	vec, err := r.engine.RefreshDish(dishID, update)
	if err != nil {
		return err
	}

	if r.vectors != nil {
		storeID := ""
		if d := r.engine.Dish(dishID); d != nil {
			storeID = d.StoreID
		}

		if err := r.vectors.Upsert(ctx, dishID, storeID, r.engine.ModelVersion(), vec); err != nil {
			return fmt.Errorf("persist refreshed dish vector: %w", err)
		}
	}

	r.logger.InfoContext(ctx, "dish refreshed", "dish_id", dishID)

	return nil
}

// Dish exposes catalog lookups for response enrichment.
func (r *Recommender) Dish(id string) *models.Dish {
	return r.engine.Dish(id)
}

// Ready reports whether the engine holds a serving snapshot.
func (r *Recommender) Ready() bool {
	return r.engine.Ready()
}

// ModelVersion is the active model identifier.
func (r *Recommender) ModelVersion() string {
	return r.engine.ModelVersion()
}

func (r *Recommender) recordRetrieval(ctx context.Context, kind string, candidates int, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordRetrieval(ctx, kind, candidates, time.Since(start))
	}
}
