package consensus

import "math"

// posteriorMean is the mean of Beta(alpha, beta).
func posteriorMean(alpha, beta float64) float64 {
	if alpha+beta <= 0 {
		return 0.5
	}
	return alpha / (alpha + beta)
}

// bayesianBlend pulls raw toward the pooled prior mean of the voters. The
// weight on raw shrinks as pooled evidence grows past scale.
func bayesianBlend(raw, sumAlpha, sumBeta, scale float64) float64 {
	n := sumAlpha + sumBeta
	if n <= 0 {
		return clamp01(raw)
	}
	w := math.Min(1, scale/n)
	return clamp01(w*clamp01(raw) + (1-w)*(sumAlpha/n))
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
