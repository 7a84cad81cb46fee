package analysis

import "math"

// clampScore rounds x half away from zero and clamps it to 0..100.
func clampScore(x float64) int {
	return int(math.Round(min(max(x, 0), 100)))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
