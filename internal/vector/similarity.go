package vector

import "math"

// Dot returns the dot product of a and b, or 0 when their lengths differ.
// For unit vectors it equals the cosine similarity.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i, v := range a {
		sum += float64(v) * float64(b[i])
	}
	return sum
}

// L2Norm returns the Euclidean length of x.
func L2Norm(x []float32) float64 {
	return math.Sqrt(Dot(x, x))
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}
