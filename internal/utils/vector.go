package utils

import "math"

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths or a zero-magnitude vector score 0 rather than erroring,
// so a bad stored vector degrades a single comparison instead of a query.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float32
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}

// Magnitude returns the L2 norm of a vector.
func Magnitude(vec []float32) float32 {
	var sumOfSquares float32
	for _, v := range vec {
		sumOfSquares += v * v
	}
	return float32(math.Sqrt(float64(sumOfSquares)))
}
