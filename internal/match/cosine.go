// Package match implements embedding similarity for duplicate detection and
// verification decisions.
package match

import "math"

// Cosine returns the cosine similarity of two embedding vectors in [-1, 1].
// A zero vector (or a length mismatch) yields 0.0 rather than an error:
// a degenerate embedding can never match anything.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// BestMatch scans candidates and returns the index and similarity of the
// closest one to probe. Returns index -1 when candidates is empty.
func BestMatch(probe []float32, candidates [][]float32) (int, float64) {
	best := -1
	bestSim := 0.0
	for i, c := range candidates {
		sim := Cosine(probe, c)
		if best == -1 || sim > bestSim {
			best = i
			bestSim = sim
		}
	}
	return best, bestSim
}
