// Package tower implements serve-time inference for the trained two-tower
// model: embedding lookups, scalar projections, masked tag pooling and the
// final projections that map users and dishes into one shared unit sphere.
package tower

import (
	"github.com/platefeed/recsys/internal/feature"
	"github.com/platefeed/recsys/pkg/vecmath"
)

const poolEpsilon = 1e-8

// Model runs forward passes over one set of weights. It is immutable and
// safe for concurrent use.
type Model struct {
	w *Weights
}

// NewModel wraps validated weights.
func NewModel(w *Weights) *Model {
	return &Model{w: w}
}

// Dim is the width of the vectors both towers produce.
func (m *Model) Dim() int {
	return m.w.Dim
}

// EmbedUser maps encoded user features to a unit-norm vector.
func (m *Model) EmbedUser(f feature.UserFeatures) []float32 {
	buf := make([]float32, 0, userConcatWidth(m.w.Dim))
	buf = append(buf, m.w.UserEmb.Row(f.UserID)...)
	buf = appendScalarProj(buf, f.Age, m.w.AgeW, m.w.AgeB)
	buf = append(buf, m.w.GenderEmb.Row(f.Gender)...)
	buf = appendScalarProj(buf, f.Hour, m.w.HourW, m.w.HourB)
	buf = append(buf, m.w.WeekdayEmb.Row(f.Weekday)...)
	buf = appendPooledTags(buf, f.LikedTags, m.w.TagEmb)
	buf = appendPooledTags(buf, f.DislikedTags, m.w.TagEmb)

	out := linear(buf, m.w.UserProjW, m.w.UserProjB)
	vecmath.NormalizeL2(out)

	return out
}

// EmbedItem maps encoded dish features to a unit-norm vector.
func (m *Model) EmbedItem(f feature.ItemFeatures) []float32 {
	buf := make([]float32, 0, itemConcatWidth(m.w.Dim))
	buf = append(buf, m.w.DishEmb.Row(f.DishID)...)
	buf = append(buf, m.w.StoreEmb.Row(f.StoreID)...)
	buf = append(buf, m.w.CategoryEmb.Row(f.Category)...)
	buf = appendPooledTags(buf, f.Tags, m.w.TagEmb)
	buf = appendScalarProj(buf, f.Price, m.w.PriceW, m.w.PriceB)
	buf = appendScalarProj(buf, f.Rating, m.w.RatingW, m.w.RatingB)
	buf = appendScalarProj(buf, f.Popularity, m.w.PopW, m.w.PopB)
	buf = appendScalarProj(buf, f.Hour, m.w.HourW, m.w.HourB)
	buf = append(buf, m.w.WeekdayEmb.Row(f.Weekday)...)

	out := linear(buf, m.w.ItemProjW, m.w.ItemProjB)
	vecmath.NormalizeL2(out)

	return out
}

// Score is the dot product of two unit vectors, in [-1, 1].
func (m *Model) Score(user, item []float32) float64 {
	return vecmath.Dot(user, item)
}

// appendScalarProj appends x*w + b, projecting one scalar feature to the
// width of w.
func appendScalarProj(buf []float32, x float32, w, b *Matrix) []float32 {
	weights := w.Row(0)
	bias := b.Row(0)

	for j := range weights {
		buf = append(buf, x*weights[j]+bias[j])
	}

	return buf
}

// appendPooledTags appends the masked mean of the tag embedding rows:
// padding (index 0) contributes nothing and the sum divides by the real
// entry count plus a small epsilon, so an empty list pools to zero.
func appendPooledTags(buf []float32, tags feature.TagList, emb *Matrix) []float32 {
	start := len(buf)
	for j := 0; j < emb.Cols; j++ {
		buf = append(buf, 0)
	}

	var count int
	for _, idx := range tags.IDs {
		if idx == 0 {
			continue
		}

		row := emb.Row(idx)
		for j := range row {
			buf[start+j] += row[j]
		}

		count++
	}

	inv := float32(1.0 / (float64(count) + poolEpsilon))
	for j := start; j < len(buf); j++ {
		buf[j] *= inv
	}

	return buf
}

// linear computes in*W + b for W of shape [len(in)][out].
func linear(in []float32, w, b *Matrix) []float32 {
	out := make([]float32, w.Cols)
	copy(out, b.Row(0))

	for i, x := range in {
		if x == 0 {
			continue
		}

		row := w.Row(int32(i))
		for j := range row {
			out[j] += x * row[j]
		}
	}

	return out
}
