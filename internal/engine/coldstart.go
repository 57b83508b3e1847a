package engine

import (
	"sort"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/pkg/vecmath"
)

// maxProxyDishes bounds how many matching dishes average into a cold-start
// proxy vector.
const maxProxyDishes = 10

// ProfileVector synthesizes a unit query vector from stated preferences.
// Matching dishes (every supplied dimension must match) average into a
// proxy; an unmatchable or empty profile falls back to the catalog mean,
// so the synthesizer is total whenever the cache is non-empty.
func (e *Engine) ProfileVector(prefs models.Preferences) ([]float32, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}

	vec, _ := e.profileVector(s, prefs)

	return vec, nil
}

// profileVector reports whether the proxy came from matching dishes
// (true) or the catalog-mean fallback (false).
func (e *Engine) profileVector(s *snapshot, prefs models.Preferences) ([]float32, bool) {
	matches := make([][]float32, 0, maxProxyDishes)

	for _, id := range s.dishOrder {
		d := s.catalog.Dish(id)
		if d == nil || !matchesPreferences(d, prefs) {
			continue
		}

		matches = append(matches, s.vectors[id])
		if len(matches) == maxProxyDishes {
			break
		}
	}

	if len(matches) == 0 {
		if e.hooks.ColdStartFallback != nil {
			e.hooks.ColdStartFallback()
		}

		e.logger.Debug("cold-start profile matched no dishes, using catalog mean",
			"cuisine", prefs.Cuisine, "taste", prefs.Taste, "price_range", prefs.PriceRange)

		fallback := make([]float32, len(s.catalogMean))
		copy(fallback, s.catalogMean)
		vecmath.NormalizeL2(fallback)

		return fallback, false
	}

	return vecmath.MeanNormalized(matches), true
}

// matchesPreferences applies the cold-start filter: overlap on every
// supplied tag dimension and the price bucket. Unset dimensions do not
// constrain.
func matchesPreferences(d *models.Dish, prefs models.Preferences) bool {
	if len(prefs.Cuisine) > 0 && !overlaps(d.CultureTags, prefs.Cuisine) {
		return false
	}

	if len(prefs.Taste) > 0 && !overlaps(d.TasteTags, prefs.Taste) {
		return false
	}

	return prefs.PriceRange.MatchesPrice(d.Price)
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}

	return false
}

// sortTags orders descending by score, stable in centroid order.
func sortTags(tags []models.ScoredTag) {
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Score > tags[j].Score
	})
}
