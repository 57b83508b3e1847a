package tower

import (
	"fmt"
	"math/rand"
	"sort"
)

// Weights holds every trained tensor of the two towers. Tensors are
// resolved from the serialized file by name and shape-checked against the
// sidecar before use.
type Weights struct {
	Dim int

	// user tower
	UserEmb    *Matrix // [users][D]
	GenderEmb  *Matrix // [3][D/4]
	AgeW, AgeB *Matrix // [1][D/4]
	UserProjW  *Matrix // [9D/4][D]
	UserProjB  *Matrix // [1][D]

	// item tower
	DishEmb          *Matrix // [dishes][D]
	StoreEmb         *Matrix // [stores][D/2]
	CategoryEmb      *Matrix // [categories][D/4]
	PriceW, PriceB   *Matrix // [1][D/4]
	RatingW, RatingB *Matrix // [1][D/8]
	PopW, PopB       *Matrix // [1][D/8]
	ItemProjW        *Matrix // [11D/4][D]
	ItemProjB        *Matrix // [1][D]

	// shared between towers
	TagEmb       *Matrix // [tags][D/4]
	WeekdayEmb   *Matrix // [7][D/8]
	HourW, HourB *Matrix // [1][D/8]
}

// tensorShapes is the authoritative name -> expected shape table for an
// embedding width dim and the sidecar vocabulary sizes.
func tensorShapes(dim int, sizes map[string]int) map[string][2]int {
	quarter := dim / 4
	eighth := dim / 8

	return map[string][2]int{
		"user_emb":     {sizes["user"], dim},
		"gender_emb":   {3, quarter},
		"age_w":        {1, quarter},
		"age_b":        {1, quarter},
		"user_proj_w":  {userConcatWidth(dim), dim},
		"user_proj_b":  {1, dim},
		"dish_emb":     {sizes["dish"], dim},
		"store_emb":    {sizes["store"], dim / 2},
		"category_emb": {sizes["category"], quarter},
		"price_w":      {1, quarter},
		"price_b":      {1, quarter},
		"rating_w":     {1, eighth},
		"rating_b":     {1, eighth},
		"pop_w":        {1, eighth},
		"pop_b":        {1, eighth},
		"item_proj_w":  {itemConcatWidth(dim), dim},
		"item_proj_b":  {1, dim},
		"tag_emb":      {sizes["tag"], quarter},
		"weekday_emb":  {7, eighth},
		"hour_w":       {1, eighth},
		"hour_b":       {1, eighth},
	}
}

// Concatenation widths feeding each tower's final projection.
func userConcatWidth(dim int) int { return 2*dim + dim/4 }
func itemConcatWidth(dim int) int { return 2*dim + 3*(dim/4) }

// FromTensors assembles Weights from named tensors, validating every shape
// against the sidecar. Missing, extra or misshapen tensors are rejected so
// a vocabulary/weights mismatch can never reach serving.
func FromTensors(tensors map[string]*Matrix, sc *Sidecar) (*Weights, error) {
	expected := tensorShapes(sc.EmbeddingDim, sc.vocabSizes())

	for name := range tensors {
		if _, ok := expected[name]; !ok {
			return nil, fmt.Errorf("unexpected tensor %q in weights file", name)
		}
	}

	pick := func(name string) (*Matrix, error) {
		m, ok := tensors[name]
		if !ok {
			return nil, fmt.Errorf("weights file missing tensor %q", name)
		}

		if want := expected[name]; m.Rows != want[0] || m.Cols != want[1] {
			return nil, fmt.Errorf("tensor %q has shape %s, want %dx%d", name, m.shape(), want[0], want[1])
		}

		return m, nil
	}

	w := &Weights{Dim: sc.EmbeddingDim}

	var err error
	for name, dst := range map[string]**Matrix{
		"user_emb":     &w.UserEmb,
		"gender_emb":   &w.GenderEmb,
		"age_w":        &w.AgeW,
		"age_b":        &w.AgeB,
		"user_proj_w":  &w.UserProjW,
		"user_proj_b":  &w.UserProjB,
		"dish_emb":     &w.DishEmb,
		"store_emb":    &w.StoreEmb,
		"category_emb": &w.CategoryEmb,
		"price_w":      &w.PriceW,
		"price_b":      &w.PriceB,
		"rating_w":     &w.RatingW,
		"rating_b":     &w.RatingB,
		"pop_w":        &w.PopW,
		"pop_b":        &w.PopB,
		"item_proj_w":  &w.ItemProjW,
		"item_proj_b":  &w.ItemProjB,
		"tag_emb":      &w.TagEmb,
		"weekday_emb":  &w.WeekdayEmb,
		"hour_w":       &w.HourW,
		"hour_b":       &w.HourB,
	} {
		if *dst, err = pick(name); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// tensors returns the named-tensor view used for serialization.
func (w *Weights) tensors() map[string]*Matrix {
	return map[string]*Matrix{
		"user_emb":     w.UserEmb,
		"gender_emb":   w.GenderEmb,
		"age_w":        w.AgeW,
		"age_b":        w.AgeB,
		"user_proj_w":  w.UserProjW,
		"user_proj_b":  w.UserProjB,
		"dish_emb":     w.DishEmb,
		"store_emb":    w.StoreEmb,
		"category_emb": w.CategoryEmb,
		"price_w":      w.PriceW,
		"price_b":      w.PriceB,
		"rating_w":     w.RatingW,
		"rating_b":     w.RatingB,
		"pop_w":        w.PopW,
		"pop_b":        w.PopB,
		"item_proj_w":  w.ItemProjW,
		"item_proj_b":  w.ItemProjB,
		"tag_emb":      w.TagEmb,
		"weekday_emb":  w.WeekdayEmb,
		"hour_w":       w.HourW,
		"hour_b":       w.HourB,
	}
}

// Random builds weights with small deterministic random values for the
// sidecar's shapes. Training bootstraps from this; tests use it for
// realistic non-degenerate vectors.
func Random(sc *Sidecar, seed int64) (*Weights, error) {
	rng := rand.New(rand.NewSource(seed))
	shapes := tensorShapes(sc.EmbeddingDim, sc.vocabSizes())

	names := make([]string, 0, len(shapes))
	for name := range shapes {
		names = append(names, name)
	}

	// fill in a fixed order so a seed always yields the same weights
	sort.Strings(names)

	tensors := make(map[string]*Matrix, len(shapes))
	for _, name := range names {
		shape := shapes[name]
		tensors[name] = randomMatrix(rng, shape[0], shape[1])
	}

	return FromTensors(tensors, sc)
}

func randomMatrix(rng *rand.Rand, rows, cols int) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = (rng.Float32()*2 - 1) * 0.1
	}

	return m
}
