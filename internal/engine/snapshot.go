package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/platefeed/recsys/internal/catalog"
	"github.com/platefeed/recsys/internal/feature"
	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/tower"
	"github.com/platefeed/recsys/internal/vocab"
	"github.com/platefeed/recsys/pkg/vecmath"
)

// Dish vectors are cached with a fixed request context so two rebuilds of
// an unchanged catalog produce identical vectors regardless of wall time.
var canonicalTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// snapshot is one immutable, fully-built serving state: catalog,
// vocabularies, model, the dish vector cache and its derived aggregates.
// Readers hold a snapshot for the duration of one operation; writers build
// a replacement aside and swap the pointer.
type snapshot struct {
	version      int64
	modelVersion string
	builtAt      time.Time

	catalog *catalog.Catalog
	vocabs  *vocab.Set
	encoder *feature.Encoder
	model   *tower.Model

	vectors   map[string][]float32 // dish id -> unit vector
	dishOrder []string             // catalog row order, the ranking tie-break

	centroids map[string][]float32 // tag name -> re-normalized mean of member dish vectors
	tagOrder  []string             // tags with centroids, canonical vocabulary order

	catalogMean []float32 // mean of all cached vectors, cold-start fallback
}

// buildSnapshot assembles a snapshot from loaded inputs. A dish that fails
// to embed is skipped and logged; everything else fails the whole build.
func buildSnapshot(in *Inputs, version int64, logger *slog.Logger) (*snapshot, error) {
	vocabs, err := in.Sidecar.Vocabularies()
	if err != nil {
		return nil, fmt.Errorf("sidecar vocabularies: %w", err)
	}

	s := &snapshot{
		version:      version,
		modelVersion: in.Sidecar.ModelVersion,
		builtAt:      time.Now().UTC(),
		catalog:      in.Catalog,
		vocabs:       vocabs,
		encoder:      feature.NewEncoder(vocabs, in.Sidecar.Popularity),
		model:        tower.NewModel(in.Weights),
		vectors:      make(map[string][]float32, len(in.Catalog.Dishes)),
	}

	for _, d := range in.Catalog.Dishes {
		vec, err := s.embedDish(d)
		if err != nil {
			logger.Error("skipping dish in cache build", "dish_id", d.ID, "error", err)
			continue
		}

		s.vectors[d.ID] = vec
		s.dishOrder = append(s.dishOrder, d.ID)
	}

	s.rebuildAggregates()

	return s, nil
}

// embedDish computes one dish vector under the canonical context. The
// recover guard keeps a single malformed row from taking down a full
// rebuild.
func (s *snapshot) embedDish(d *models.Dish) (vec []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			vec, err = nil, fmt.Errorf("embed dish %s: %v", d.ID, r)
		}
	}()

	return s.model.EmbedItem(s.encoder.EncodeDish(d, canonicalTime)), nil
}

// rebuildAggregates recomputes every tag centroid and the catalog mean
// from the current vector cache.
func (s *snapshot) rebuildAggregates() {
	s.centroids = make(map[string][]float32)
	s.tagOrder = s.tagOrder[:0]

	members := make(map[string][][]float32)

	for _, id := range s.dishOrder {
		d := s.catalog.Dish(id)
		if d == nil {
			continue
		}

		for _, name := range d.Tags() {
			members[name] = append(members[name], s.vectors[id])
		}
	}

	for _, name := range s.catalog.AllTagNames() {
		if vecs := members[name]; len(vecs) > 0 {
			s.centroids[name] = vecmath.MeanNormalized(vecs)
			s.tagOrder = append(s.tagOrder, name)
		}
	}

	all := make([][]float32, 0, len(s.dishOrder))
	for _, id := range s.dishOrder {
		all = append(all, s.vectors[id])
	}

	s.catalogMean = vecmath.Mean(all)
}

// withDish returns a copy of the snapshot with one dish re-embedded. Only
// that dish's cache entry and the derived aggregates change; every other
// vector is shared untouched with the parent snapshot.
func (s *snapshot) withDish(d *models.Dish, version int64) (*snapshot, error) {
	next := *s
	next.version = version
	next.catalog = s.catalog.WithDish(d)

	vec, err := next.embedDish(d)
	if err != nil {
		return nil, err
	}

	next.vectors = make(map[string][]float32, len(s.vectors))
	for id, v := range s.vectors {
		next.vectors[id] = v
	}

	// A dish skipped during the full build has no order entry yet; give it
	// one so it becomes retrievable without waiting for the next reload.
	if _, cached := s.vectors[d.ID]; !cached {
		next.dishOrder = append(append(make([]string, 0, len(s.dishOrder)+1), s.dishOrder...), d.ID)
	}

	next.vectors[d.ID] = vec

	next.tagOrder = nil
	next.rebuildAggregates()

	return &next, nil
}

// withUser returns a copy of the snapshot with one user record replaced.
// User vectors are computed per request, so the dish cache carries over
// untouched.
func (s *snapshot) withUser(u *models.User, version int64) *snapshot {
	next := *s
	next.version = version
	next.catalog = s.catalog.WithUser(u)

	return &next
}

// userVector embeds a user profile at the canonical context.
func (s *snapshot) userVector(u *models.User) []float32 {
	return s.model.EmbedUser(s.encoder.EncodeUser(u, canonicalTime))
}
