// Package models holds the catalog entities and result types shared across
// the recommender.
package models

// Namespace identifies one of the four tag spaces a tag belongs to.
type Namespace string

// The four tag namespaces exported by the platform catalog.
const (
	NamespaceFood    Namespace = "food"
	NamespaceTaste   Namespace = "taste"
	NamespaceCooking Namespace = "cooking_method"
	NamespaceCulture Namespace = "culture"
)

// Namespaces lists all tag namespaces in their canonical order. The shared
// tag vocabulary is built in this order, so it must not change between a
// training run and the serving process that loads its sidecar.
var Namespaces = []Namespace{NamespaceFood, NamespaceTaste, NamespaceCooking, NamespaceCulture}

// Tag is one catalog tag. Name doubles as the tag's identity in dish and
// user tag lists (the export pipeline flattens references to names).
type Tag struct {
	ID        string
	Name      string
	Namespace Namespace
}

// User is one platform user as exported by the catalog pipeline. Age is NaN
// when the export had no value; the feature encoder substitutes defaults.
type User struct {
	ID           string
	Name         string
	Age          float64
	Gender       string
	LikedTags    []string
	DislikedTags []string
	AllergyTags  []string
}

// Dish is one catalog dish. The four tag lists carry tag names from their
// respective namespaces. Price and Rating are NaN when missing from the
// export; the feature encoder substitutes defaults.
type Dish struct {
	ID          string
	StoreID     string
	Name        string
	Category    string
	Price       float64
	Rating      float64
	OrderCount  int
	FoodTags    []string
	TasteTags   []string
	CookingTags []string
	CultureTags []string
}

// Tags returns all four tag lists concatenated in namespace order.
func (d *Dish) Tags() []string {
	out := make([]string, 0, len(d.FoodTags)+len(d.TasteTags)+len(d.CookingTags)+len(d.CultureTags))
	out = append(out, d.FoodTags...)
	out = append(out, d.TasteTags...)
	out = append(out, d.CookingTags...)
	out = append(out, d.CultureTags...)

	return out
}

// Store is one platform store.
type Store struct {
	ID         string
	Name       string
	PriceRange string
	Rating     float64
}

// PriceRange buckets a stated price preference. Budget and premium carry
// fixed VND thresholds; any (or empty) applies no price constraint.
type PriceRange string

// Price-range buckets and their thresholds.
const (
	PriceRangeBudget  PriceRange = "budget"  // price <= 60,000
	PriceRangePremium PriceRange = "premium" // price >= 70,000
	PriceRangeAny     PriceRange = "any"

	BudgetMaxPrice  = 60000.0
	PremiumMinPrice = 70000.0
)

// Valid reports whether p names a known bucket.
func (p PriceRange) Valid() bool {
	switch p {
	case PriceRangeBudget, PriceRangePremium, PriceRangeAny, "":
		return true
	default:
		return false
	}
}

// MatchesPrice reports whether price satisfies the bucket. NaN prices never
// match a constrained bucket.
func (p PriceRange) MatchesPrice(price float64) bool {
	switch p {
	case PriceRangeBudget:
		return price <= BudgetMaxPrice
	case PriceRangePremium:
		return price >= PremiumMinPrice
	default:
		return true
	}
}

// Preferences is a partial taste profile for cold-start synthesis. Empty
// slices leave that dimension unconstrained.
type Preferences struct {
	Cuisine    []string   `json:"cuisine,omitempty"`
	Taste      []string   `json:"taste,omitempty"`
	PriceRange PriceRange `json:"price_range,omitempty"`
}

// IsEmpty reports whether no dimension is constrained.
func (p Preferences) IsEmpty() bool {
	return len(p.Cuisine) == 0 && len(p.Taste) == 0 &&
		(p.PriceRange == "" || p.PriceRange == PriceRangeAny)
}

// ScoredDish is one ranked recommendation: dish id plus the dot-product
// similarity of two unit vectors, so Score is in [-1, 1].
type ScoredDish struct {
	DishID  string  `json:"dish_id"`
	StoreID string  `json:"store_id"`
	Score   float64 `json:"score"`
}

// ScoredTag is one ranked tag-affinity result against a tag centroid.
type ScoredTag struct {
	Name      string    `json:"name"`
	Namespace Namespace `json:"namespace"`
	Score     float64   `json:"score"`
}

// UserUpdate carries the fields a refresh call may overwrite on a user.
// Nil pointers leave the current value untouched.
type UserUpdate struct {
	Age          *float64  `json:"age,omitempty"`
	Gender       *string   `json:"gender,omitempty"`
	LikedTags    *[]string `json:"liked_tags,omitempty"`
	DislikedTags *[]string `json:"disliked_tags,omitempty"`
	AllergyTags  *[]string `json:"allergy_tags,omitempty"`
}

// Apply returns a copy of u with the non-nil fields overwritten.
func (up UserUpdate) Apply(u *User) *User {
	out := *u

	if up.Age != nil {
		out.Age = *up.Age
	}

	if up.Gender != nil {
		out.Gender = *up.Gender
	}

	if up.LikedTags != nil {
		out.LikedTags = *up.LikedTags
	}

	if up.DislikedTags != nil {
		out.DislikedTags = *up.DislikedTags
	}

	if up.AllergyTags != nil {
		out.AllergyTags = *up.AllergyTags
	}

	return &out
}

// DishUpdate carries the fields a refresh call may overwrite on a dish.
// Nil pointers leave the current value untouched.
type DishUpdate struct {
	Name        *string   `json:"name,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	FoodTags    *[]string `json:"food_tags,omitempty"`
	TasteTags   *[]string `json:"taste_tags,omitempty"`
	CookingTags *[]string `json:"cooking_method_tags,omitempty"`
	CultureTags *[]string `json:"culture_tags,omitempty"`
}

// Apply returns a copy of d with the non-nil fields overwritten.
func (up DishUpdate) Apply(d *Dish) *Dish {
	out := *d

	if up.Name != nil {
		out.Name = *up.Name
	}

	if up.Category != nil {
		out.Category = *up.Category
	}

	if up.Price != nil {
		out.Price = *up.Price
	}

	if up.Rating != nil {
		out.Rating = *up.Rating
	}

	if up.FoodTags != nil {
		out.FoodTags = *up.FoodTags
	}

	if up.TasteTags != nil {
		out.TasteTags = *up.TasteTags
	}

	if up.CookingTags != nil {
		out.CookingTags = *up.CookingTags
	}

	if up.CultureTags != nil {
		out.CultureTags = *up.CultureTags
	}

	return &out
}
