package rules

import "math/rand/v2"

// RandomSource yields uniformly distributed values in [0, 1)
type RandomSource interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultRandomSource draws from math/rand/v2's goroutine-safe global generator
var DefaultRandomSource RandomSource = globalSource{}

// ClampThreshold bounds threshold to [0, max]
func ClampThreshold(threshold, max float64) float64 {
	if threshold > max {
		return max
	}
	if threshold < 0 {
		return 0
	}
	return threshold
}

// SoftGate runs the probabilistic trial for a rule whose condition holds.
// It draws once from [0, max) and passes when the draw is below the clamped
// threshold, so a threshold of max always passes and 0 never does.
func SoftGate(threshold, max float64, src RandomSource) bool {
	passed, _ := softGate(threshold, max, src)
	return passed
}

func softGate(threshold, max float64, src RandomSource) (bool, float64) {
	if src == nil {
		src = DefaultRandomSource
	}
	clamped := ClampThreshold(threshold, max)
	draw := src.Float64() * max
	return draw < clamped, draw
}
