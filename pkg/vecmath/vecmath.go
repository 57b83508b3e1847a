// Package vecmath provides the small amount of vector arithmetic the
// recommender needs: L2 normalization, dot products, and means of
// embedding vectors.
package vecmath

import (
	"math"
)

// NormalizeL2 scales vector to unit length. It modifies the slice in-place
// to avoid allocations on the cache-rebuild hot path. A zero vector is left
// unchanged.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// Dot returns the dot product of a and b. For unit vectors this is the
// cosine similarity, bounded to [-1, 1]. Panics if lengths differ, since a
// length mismatch means two incompatible models were mixed.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		panic("vecmath: dot product of vectors with different lengths")
	}

	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

// Mean returns the element-wise mean of vectors. Returns nil when vectors is
// empty. All vectors must share one length.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			out[i] += float64(x)
		}
	}

	n := float64(len(vectors))
	mean := make([]float32, len(out))

	for i, x := range out {
		mean[i] = float32(x / n)
	}

	return mean
}

// MeanNormalized is Mean followed by NormalizeL2: the centroid of a set of
// unit vectors, re-normalized back onto the unit sphere.
func MeanNormalized(vectors [][]float32) []float32 {
	mean := Mean(vectors)
	NormalizeL2(mean)

	return mean
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	return math.Sqrt(sum)
}
