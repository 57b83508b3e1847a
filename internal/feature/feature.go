// Package feature turns catalog records into the numeric feature bundles
// the two towers consume. Encoding is pure and fail-open: missing or
// malformed attributes become documented defaults, never errors.
package feature

import (
	"math"
	"time"

	"github.com/platefeed/recsys/internal/models"
	"github.com/platefeed/recsys/internal/vocab"
)

// MaxTags is the fixed tag-list width both towers were trained with.
// Longer lists truncate, shorter lists pad with index 0.
const MaxTags = 10

// Defaults substituted for missing attributes. These match the values the
// training pipeline imputes, so a degraded request still lands in a
// sensible region of the embedding space.
const (
	DefaultAge    = 25
	DefaultRating = 3.0
)

// Gender embedding rows. Unknown shares row 0 with absent.
const (
	GenderUnknown int32 = 0
	GenderMale    int32 = 1
	GenderFemale  int32 = 2
)

// TagList is a fixed-width, zero-padded list of tag embedding indices.
// N counts the leading valid entries; the pooling mask derives from the
// indices themselves (0 is padding).
type TagList struct {
	IDs [MaxTags]int32
	N   int
}

// UserFeatures is the encoded input to the user tower.
type UserFeatures struct {
	UserID       int32
	Age          float32 // age / 100
	Gender       int32
	Hour         float32 // hour of day / 24
	Weekday      int32   // 0 = Monday
	LikedTags    TagList
	DislikedTags TagList
}

// ItemFeatures is the encoded input to the item tower.
type ItemFeatures struct {
	DishID     int32
	StoreID    int32
	Category   int32
	Tags       TagList
	Price      float32 // price / 100000
	Rating     float32 // rating / 5
	Popularity float32 // standardized order count
	Hour       float32
	Weekday    int32
}

// PopularityStats are the training-time mean and standard deviation of
// dish order counts, carried in the model sidecar.
type PopularityStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Encoder maps catalog records through a vocabulary set. One encoder
// belongs to one model snapshot and is safe for concurrent use.
type Encoder struct {
	vocabs     *vocab.Set
	popularity PopularityStats
}

// NewEncoder builds an encoder over the given vocabularies. A zero Std in
// stats means order counts pass through unscaled.
func NewEncoder(vocabs *vocab.Set, stats PopularityStats) *Encoder {
	if stats.Std == 0 {
		stats.Std = 1
	}

	return &Encoder{vocabs: vocabs, popularity: stats}
}

// EncodeUser encodes a user profile at a given time. A nil user encodes as
// the fully-unknown user: index 0, default demographics, empty preferences.
func (e *Encoder) EncodeUser(u *models.User, at time.Time) UserFeatures {
	f := UserFeatures{
		Age:     DefaultAge / 100.0,
		Hour:    hourFraction(at),
		Weekday: weekday(at),
	}

	if u == nil {
		return f
	}

	f.UserID = e.vocabs.Users.Index(u.ID)
	f.Gender = encodeGender(u.Gender)
	f.LikedTags = e.EncodeTags(u.LikedTags)
	f.DislikedTags = e.EncodeTags(u.DislikedTags)

	if !math.IsNaN(u.Age) && u.Age > 0 {
		f.Age = float32(u.Age / 100.0)
	}

	return f
}

// EncodeDish encodes a dish and its store context at a given time.
func (e *Encoder) EncodeDish(d *models.Dish, at time.Time) ItemFeatures {
	f := ItemFeatures{
		Rating:  DefaultRating / 5.0,
		Hour:    hourFraction(at),
		Weekday: weekday(at),
	}

	if d == nil {
		return f
	}

	f.DishID = e.vocabs.Dishes.Index(d.ID)
	f.StoreID = e.vocabs.Stores.Index(d.StoreID)
	f.Category = e.vocabs.Categories.Index(d.Category)
	f.Tags = e.EncodeTags(d.Tags())
	f.Popularity = float32((float64(d.OrderCount) - e.popularity.Mean) / e.popularity.Std)

	if !math.IsNaN(d.Price) {
		f.Price = float32(d.Price / 100000.0)
	}

	if !math.IsNaN(d.Rating) && d.Rating > 0 {
		f.Rating = float32(d.Rating / 5.0)
	}

	return f
}

// EncodeTags maps tag names into a fixed-width index list. Unknown names
// drop out, duplicates collapse, anything past MaxTags truncates.
func (e *Encoder) EncodeTags(names []string) TagList {
	var list TagList

	seen := make(map[int32]struct{}, len(names))

	for _, name := range names {
		idx := e.vocabs.Tags.Index(name)
		if idx == 0 {
			continue
		}

		if _, dup := seen[idx]; dup {
			continue
		}

		seen[idx] = struct{}{}
		list.IDs[list.N] = idx
		list.N++

		if list.N == MaxTags {
			break
		}
	}

	return list
}

func encodeGender(g string) int32 {
	switch g {
	case "male":
		return GenderMale
	case "female":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

func hourFraction(at time.Time) float32 {
	return float32(at.UTC().Hour()) / 24.0
}

// weekday converts to the Monday-based indexing the model was trained
// with.
func weekday(at time.Time) int32 {
	return int32((int(at.UTC().Weekday()) + 6) % 7)
}
