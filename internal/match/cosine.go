// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import "math"

// cosineSimilarity computes the cosine of the angle between a and b,
// accumulated in float64 so threshold comparisons behave identically across
// platforms. Mismatched lengths and zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clampScore maps a raw cosine into the [0,1] score range the resolver's
// thresholds are defined over. Negative cosines (anti-correlated text) carry
// no useful ranking signal for name matching and floor at 0.
func clampScore(cos float64) float64 {
	switch {
	case cos < 0:
		return 0
	case cos > 1:
		return 1
	}
	return cos
}
