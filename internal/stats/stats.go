// Package stats provides the fixed-precision statistical primitives the
// scoring pipeline is built on. Every function is pure and deterministic:
// identical inputs always produce identical outputs, which is what makes
// credit scores reproducible across runs and nodes.
package stats

import (
	"math"

	"github.com/shopspring/decimal"
)

// Precision used for intermediate means. Consistency, growth and
// percentage values are reported at 2 fractional digits.
const (
	meanPrecision    = 4
	percentPrecision = 2
)

// RoundHalfUp rounds v to the given number of fractional digits using
// round-half-up (0.5 always rounds toward positive infinity). Plain
// float math rounds half-to-even, which would make scores drift by a
// point depending on summation noise.
func RoundHalfUp(v float64, places int32) float64 {
	shift := decimal.New(1, places)
	half := decimal.New(5, -1)
	d := decimal.NewFromFloat(v)
	out, _ := d.Mul(shift).Add(half).Floor().Div(shift).Float64()
	return out
}

// RoundToInt rounds v to the nearest integer, half up.
func RoundToInt(v float64) int {
	return int(RoundHalfUp(v, 0))
}

// Mean returns the arithmetic mean at 4 fractional digits.
// An empty input yields 0.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return RoundHalfUp(sum/float64(len(values)), meanPrecision)
}

// StdDev returns the population standard deviation (not sample-corrected).
// Fewer than 2 values yield 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	variance := sumSq / float64(len(values))
	return RoundHalfUp(math.Sqrt(variance), meanPrecision)
}

// CoefficientOfVariation returns stdDev/mean, or 0 when the mean is 0.
func CoefficientOfVariation(values []float64) float64 {
	mean := Mean(values)
	if mean == 0 {
		return 0
	}
	return RoundHalfUp(StdDev(values)/mean, meanPrecision)
}

// ConsistencyScore maps volume variability to [0,100]: a perfectly flat
// series scores 100, and the score drops as the coefficient of variation
// grows. Result has 2 fractional digits.
func ConsistencyScore(monthlyVolumes []float64) float64 {
	cv := CoefficientOfVariation(monthlyVolumes)
	return RoundHalfUp(Clamp(100-100*cv, 0, 100), percentPrecision)
}

// GrowthRate returns the percent change from previous to current,
// rounded to 2 fractional digits. A zero previous yields 0 rather than
// a division error.
func GrowthRate(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return RoundHalfUp((current-previous)/previous*100, percentPrecision)
}

// Percentage returns part/total*100 at 2 fractional digits, or 0 when
// total is 0.
func Percentage(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return RoundHalfUp(part/total*100, percentPrecision)
}

// Clamp restricts v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClampInt restricts v to [min, max] in the integer domain.
func ClampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
