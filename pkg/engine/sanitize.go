package engine

import "math"

// Sanitize guards a raw metric value: NaN and ±Inf are replaced with the
// fallback, everything else is clamped to [0,1].
func Sanitize(value, fallback float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fallback
	}
	return Clamp(value, 0, 1)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
