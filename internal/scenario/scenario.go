// Package scenario runs named, pre-scripted evaluation flows against the
// live engine and reports descriptive analytics. Scenarios are
// read-only: they never touch caches or vocabularies.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/recerrors"
)

// Scenario kinds decide which recommendation path a definition exercises.
const (
	KindProfile     = "profile"      // cold-start user preferences
	KindDishProfile = "dish_profile" // cold-start dish profile
	KindUser        = "user"         // existing behavior-tagged user
)

// Definition is one named scripted evaluation.
type Definition struct {
	Name        string             `json:"name"`
	Kind        string             `json:"kind"`
	Description string             `json:"description,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
	StoreID     string             `json:"store_id,omitempty"`
	Preferences models.Preferences `json:"preferences,omitempty"`
	TopK        int                `json:"top_k,omitempty"`
}

// Analytics summarizes one scenario's result set. Alignment fields are the
// fraction of results agreeing with the stated preference dimension and
// are only meaningful when that dimension was supplied.
type Analytics struct {
	ResultCount      int     `json:"result_count"`
	Diversity        float64 `json:"diversity"` // distinct categories / result count
	PriceMean        float64 `json:"price_mean"`
	PriceMin         float64 `json:"price_min"`
	PriceMax         float64 `json:"price_max"`
	CuisineAlignment float64 `json:"cuisine_alignment"`
	TasteAlignment   float64 `json:"taste_alignment"`
	PriceAlignment   float64 `json:"price_alignment"`
}

// Report is the outcome of one scenario run.
type Report struct {
	Scenario    string              `json:"scenario"`
	Kind        string              `json:"kind"`
	Description string              `json:"description,omitempty"`
	Results     []models.ScoredDish `json:"results"`
	Analytics   Analytics           `json:"analytics"`
}

// Recommender is the slice of the engine the evaluator needs.
type Recommender interface {
	RecommendForUser(ctx context.Context, userID string, topK int, storeID string) ([]models.ScoredDish, error)
	RecommendForProfile(ctx context.Context, prefs models.Preferences, topK int) ([]models.ScoredDish, error)
	SimilarForProfile(ctx context.Context, prefs models.Preferences, topK int, storeID string) ([]models.ScoredDish, error)
	Dish(id string) *models.Dish
}

// Evaluator holds the loaded scenario definitions.
type Evaluator struct {
	rec  Recommender
	defs map[string]Definition
}

// NewEvaluator indexes definitions by name. Later duplicates win, so a
// definitions file can override the defaults.
func NewEvaluator(rec Recommender, defs []Definition) *Evaluator {
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	return &Evaluator{rec: rec, defs: byName}
}

// LoadDefinitions reads a scenario definitions document.
func LoadDefinitions(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario definitions: %w", err)
	}

	var doc struct {
		Scenarios []Definition `json:"scenarios"`
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse scenario definitions: %w", err)
	}

	for _, d := range doc.Scenarios {
		if err := validate(d); err != nil {
			return nil, err
		}
	}

	return doc.Scenarios, nil
}

func validate(d Definition) error {
	if d.Name == "" {
		return fmt.Errorf("scenario with empty name")
	}

	switch d.Kind {
	case KindProfile, KindDishProfile:
		return nil
	case KindUser:
		if d.UserID == "" {
			return fmt.Errorf("scenario %q: user kind needs user_id", d.Name)
		}

		return nil
	default:
		return fmt.Errorf("scenario %q: unknown kind %q", d.Name, d.Kind)
	}
}

// DefaultDefinitions are the scenarios shipped with the service.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:        "cold_start_user",
			Kind:        KindProfile,
			Description: "new user stating Vietnamese spicy preferences",
			Preferences: models.Preferences{Cuisine: []string{"Việt Nam"}, Taste: []string{"Cay"}},
			TopK:        10,
		},
		{
			Name:        "cold_start_dish",
			Kind:        KindDishProfile,
			Description: "unlaunched dish profile matched against the live catalog",
			Preferences: models.Preferences{Cuisine: []string{"Việt Nam"}, Taste: []string{"Mặn"}},
			TopK:        10,
		},
		{
			Name:        "budget_conscious",
			Kind:        KindProfile,
			Description: "price-capped browsing",
			Preferences: models.Preferences{PriceRange: models.PriceRangeBudget},
			TopK:        10,
		},
		{
			Name:        "premium_user",
			Kind:        KindProfile,
			Description: "high-end browsing",
			Preferences: models.Preferences{PriceRange: models.PriceRangePremium},
			TopK:        10,
		},
	}
}

// Names lists the loaded scenario names.
func (ev *Evaluator) Names() []string {
	names := make([]string, 0, len(ev.defs))
	for name := range ev.defs {
		names = append(names, name)
	}

	return names
}

// Run executes one named scenario.
func (ev *Evaluator) Run(ctx context.Context, name string) (*Report, error) {
	def, ok := ev.defs[name]
	if !ok {
		return nil, recerrors.NewNotFoundError("scenario", "scenario "+name+" not found")
	}

	topK := def.TopK
	if topK <= 0 {
		topK = 10
	}

	var (
		results []models.ScoredDish
		err     error
	)

	switch def.Kind {
	case KindProfile:
		results, err = ev.rec.RecommendForProfile(ctx, def.Preferences, topK)
	case KindDishProfile:
		results, err = ev.rec.SimilarForProfile(ctx, def.Preferences, topK, def.StoreID)
	case KindUser:
		results, err = ev.rec.RecommendForUser(ctx, def.UserID, topK, def.StoreID)
	}

	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}

	return &Report{
		Scenario:    def.Name,
		Kind:        def.Kind,
		Description: def.Description,
		Results:     results,
		Analytics:   ev.analyze(results, def.Preferences),
	}, nil
}

func (ev *Evaluator) analyze(results []models.ScoredDish, prefs models.Preferences) Analytics {
	a := Analytics{ResultCount: len(results)}
	if len(results) == 0 {
		return a
	}

	categories := make(map[string]struct{})

	var priced, cuisineHits, tasteHits, priceHits int

	for _, r := range results {
		d := ev.rec.Dish(r.DishID)
		if d == nil {
			continue
		}

		if d.Category != "" {
			categories[d.Category] = struct{}{}
		}

		if !math.IsNaN(d.Price) {
			priced++
			a.PriceMean += d.Price

			if priced == 1 || d.Price < a.PriceMin {
				a.PriceMin = d.Price
			}

			if d.Price > a.PriceMax {
				a.PriceMax = d.Price
			}

			if prefs.PriceRange.MatchesPrice(d.Price) {
				priceHits++
			}
		}

		if overlaps(d.CultureTags, prefs.Cuisine) {
			cuisineHits++
		}

		if overlaps(d.TasteTags, prefs.Taste) {
			tasteHits++
		}
	}

	n := float64(len(results))
	a.Diversity = float64(len(categories)) / n

	if priced > 0 {
		a.PriceMean /= float64(priced)
		a.PriceAlignment = float64(priceHits) / float64(priced)
	}

	if len(prefs.Cuisine) > 0 {
		a.CuisineAlignment = float64(cuisineHits) / n
	}

	if len(prefs.Taste) > 0 {
		a.TasteAlignment = float64(tasteHits) / n
	}

	return a
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
