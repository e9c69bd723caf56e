package index

import "math"

// Vector is a sparse TF-IDF vector. Absent terms weigh zero.
type Vector map[string]float64

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Dot sums the products of weights over the terms both vectors carry.
func Dot(a, b Vector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, wa := range a {
		if wb, ok := b[term]; ok {
			sum += wa * wb
		}
	}
	return sum
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero norm.
func Cosine(a, b Vector) float64 {
	return CosineWithNorms(a, b, a.Norm(), b.Norm())
}

// CosineWithNorms is Cosine with precomputed norms.
func CosineWithNorms(a, b Vector, normA, normB float64) float64 {
	denominator := normA * normB
	if denominator == 0 {
		return 0
	}
	return Dot(a, b) / denominator
}
