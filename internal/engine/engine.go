// Package engine owns the serving state of the recommender: the dish
// vector cache, tag centroids and model snapshot, plus every read
// operation the API exposes. Reads run lock-free against an atomically
// swapped snapshot; the rebuild and refresh paths are the only writers.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/recerrors"
	"github.com/platefeed/recsys/pkg/vecmath"
)

// Hooks are optional callbacks for observability. Nil fields are skipped.
type Hooks struct {
	CacheRebuilt      func(dishCount int)
	ColdStartFallback func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetriever replaces the default in-memory brute-force retriever.
func WithRetriever(r Retriever) Option {
	return func(e *Engine) { e.retriever = r }
}

// WithHooks attaches observability callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// Engine serves all recommendation reads and coordinates snapshot writes.
type Engine struct {
	loader    Loader
	logger    *slog.Logger
	retriever Retriever
	hooks     Hooks

	// mu serializes writers (reload, refresh); readers never take it.
	mu     sync.Mutex
	snap   atomic.Pointer[snapshot]
	builds atomic.Int64
}

// New creates an engine. Call Load before serving queries.
func New(loader Loader, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{loader: loader, logger: logger}
	e.retriever = &memoryRetriever{engine: e}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Load fetches fresh inputs and swaps in a newly built snapshot. On any
// failure the previous snapshot, if one exists, stays authoritative.
// Reload is the same operation; the first call is just a reload from
// nothing.
func (e *Engine) Load(ctx context.Context) error {
	in, err := e.loader.Load(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := buildSnapshot(in, e.builds.Add(1), e.logger)
	if err != nil {
		return recerrors.NewModelLoadError("", err.Error())
	}

	e.snap.Store(s)

	e.logger.Info("snapshot swapped in",
		"model_version", s.modelVersion,
		"dishes", len(s.dishOrder),
		"tags", len(s.tagOrder),
		"version", s.version)

	if e.hooks.CacheRebuilt != nil {
		e.hooks.CacheRebuilt(len(s.dishOrder))
	}

	return nil
}

// Ready reports whether a snapshot has been loaded.
func (e *Engine) Ready() bool {
	return e.snap.Load() != nil
}

// Version is the monotonically increasing snapshot counter. It changes on
// every reload and refresh, so it doubles as a cache-invalidation key for
// anything derived from a snapshot.
func (e *Engine) Version() int64 {
	if s := e.snap.Load(); s != nil {
		return s.version
	}

	return 0
}

// ModelVersion is the trained model identifier from the active sidecar.
func (e *Engine) ModelVersion() string {
	if s := e.snap.Load(); s != nil {
		return s.modelVersion
	}

	return ""
}

// ExportVectors copies the active snapshot's vector cache for
// persistence: model version, dish vectors and each dish's store id.
func (e *Engine) ExportVectors() (string, map[string][]float32, map[string]string, error) {
	s, err := e.current()
	if err != nil {
		return "", nil, nil, err
	}

	vectors := make(map[string][]float32, len(s.vectors))
	stores := make(map[string]string, len(s.vectors))

	for id, vec := range s.vectors {
		vectors[id] = vec

		if d := s.catalog.Dish(id); d != nil {
			stores[id] = d.StoreID
		}
	}

	return s.modelVersion, vectors, stores, nil
}

// TagNamespaces returns the catalog's tag names grouped by namespace, in
// catalog order. Used to constrain LLM tag suggestion to known tags.
func (e *Engine) TagNamespaces() (map[string][]string, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(models.Namespaces))
	for _, ns := range models.Namespaces {
		out[string(ns)] = s.catalog.TagNames(ns)
	}
	return out, nil
}

// Dish returns the active snapshot's record for a dish id, or nil.
func (e *Engine) Dish(id string) *models.Dish {
	if s := e.snap.Load(); s != nil {
		return s.catalog.Dish(id)
	}

	return nil
}

func (e *Engine) current() (*snapshot, error) {
	if s := e.snap.Load(); s != nil {
		return s, nil
	}

	return nil, recerrors.NewModelLoadError("", "no model snapshot loaded")
}

// UserVector embeds a known user's profile. The service layer caches these
// keyed by user id and Version.
func (e *Engine) UserVector(userID string) ([]float32, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}

	u := s.catalog.User(userID)
	if u == nil {
		return nil, recerrors.NewNotFoundError("user", "user "+userID+" not found")
	}

	return s.userVector(u), nil
}

// Retrieve ranks cached dishes against an arbitrary query vector.
func (e *Engine) Retrieve(ctx context.Context, query []float32, topK int, storeID, excludeDishID string) ([]models.ScoredDish, error) {
	return e.retriever.Retrieve(ctx, query, topK, storeID, excludeDishID)
}

// RecommendForUser ranks dishes for a known user.
func (e *Engine) RecommendForUser(ctx context.Context, userID string, topK int, storeID string) ([]models.ScoredDish, error) {
	query, err := e.UserVector(userID)
	if err != nil {
		return nil, err
	}

	return e.Retrieve(ctx, query, topK, storeID, "")
}

// RecommendForProfile ranks dishes for a stated preference profile. It
// never fails on preference content: an unmatchable profile degrades to
// the catalog-mean proxy over the whole catalog. When the preference
// filter did match dishes, the ranked result is constrained to dishes
// satisfying the same filter, so a budget profile never surfaces premium
// dishes.
func (e *Engine) RecommendForProfile(ctx context.Context, prefs models.Preferences, topK int) ([]models.ScoredDish, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}

	query, matched := e.profileVector(s, prefs)

	results, err := e.Retrieve(ctx, query, -1, "", "")
	if err != nil {
		return nil, err
	}

	if matched && !prefs.IsEmpty() {
		kept := results[:0]
		for _, r := range results {
			if d := s.catalog.Dish(r.DishID); d != nil && matchesPreferences(d, prefs) {
				kept = append(kept, r)
			}
		}

		results = kept
	}

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// SimilarDishes ranks dishes near a cached dish, excluding the dish
// itself.
func (e *Engine) SimilarDishes(ctx context.Context, dishID string, topK int, storeID string) ([]models.ScoredDish, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}

	query, ok := s.vectors[dishID]
	if !ok {
		return nil, recerrors.NewNotFoundError("dish", "dish "+dishID+" not in embedding cache")
	}

	return e.Retrieve(ctx, query, topK, storeID, dishID)
}

// SimilarForProfile ranks dishes near a hypothetical dish described by
// preferences, for sizing up an unlaunched dish against the live catalog.
func (e *Engine) SimilarForProfile(ctx context.Context, prefs models.Preferences, topK int, storeID string) ([]models.ScoredDish, error) {
	query, err := e.ProfileVector(prefs)
	if err != nil {
		return nil, err
	}

	return e.Retrieve(ctx, query, topK, storeID, "")
}

// TagsForOrder ranks tags by affinity to the mean vector of an order's
// dishes. Unknown dish ids drop out; if none are cached the result is
// empty.
func (e *Engine) TagsForOrder(ctx context.Context, dishIDs []string, topK int) ([]models.ScoredTag, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, 0, len(dishIDs))

	for _, id := range dishIDs {
		if v, ok := s.vectors[id]; ok {
			vecs = append(vecs, v)
		}
	}

	if len(vecs) == 0 {
		return []models.ScoredTag{}, nil
	}

	return s.rankTags(vecmath.MeanNormalized(vecs), topK), nil
}

// TagsForUser ranks tags by affinity to a known user's profile vector.
func (e *Engine) TagsForUser(ctx context.Context, userID string, topK int) ([]models.ScoredTag, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}

	u := s.catalog.User(userID)
	if u == nil {
		return nil, recerrors.NewNotFoundError("user", "user "+userID+" not found")
	}

	return s.rankTags(s.userVector(u), topK), nil
}

// RefreshUser overwrites fields on a user record. The dish cache is
// untouched; only the snapshot version advances so per-user derived state
// invalidates.
func (e *Engine) RefreshUser(userID string, update models.UserUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.current()
	if err != nil {
		return err
	}

	u := s.catalog.User(userID)
	if u == nil {
		return recerrors.NewNotFoundError("user", "user "+userID+" not found")
	}

	e.snap.Store(s.withUser(update.Apply(u), e.builds.Add(1)))

	return nil
}

// RefreshDish overwrites fields on a dish record and recomputes just that
// dish's cached vector plus the derived aggregates. The new vector is
// returned so callers can mirror it into external vector storage.
func (e *Engine) RefreshDish(dishID string, update models.DishUpdate) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.current()
	if err != nil {
		return nil, err
	}

	d := s.catalog.Dish(dishID)
	if d == nil {
		return nil, recerrors.NewNotFoundError("dish", "dish "+dishID+" not found")
	}

	next, err := s.withDish(update.Apply(d), e.builds.Add(1))
	if err != nil {
		return nil, err
	}

	e.snap.Store(next)
	e.logger.Info("dish vector refreshed", "dish_id", dishID, "version", next.version)

	return next.vectors[dishID], nil
}

// rankTags scores every tag centroid against a unit query vector.
func (s *snapshot) rankTags(query []float32, topK int) []models.ScoredTag {
	out := make([]models.ScoredTag, 0, len(s.tagOrder))

	for _, name := range s.tagOrder {
		tag, _ := s.catalog.Tag(name)
		out = append(out, models.ScoredTag{
			Name:      name,
			Namespace: tag.Namespace,
			Score:     vecmath.Dot(query, s.centroids[name]),
		})
	}

	sortTags(out)

	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}

	return out
}
