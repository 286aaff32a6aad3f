package stats

import (
	"math"
	"slices"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// CalculateMedianContinuous finds the median value in a slice of floats.
func CalculateMedianContinuous(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m, _ := mstats.Median(values)
	return m
}

// CalculateMean returns the arithmetic mean, or 0 for an empty slice.
func CalculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m, _ := mstats.Mean(values)
	return m
}

// CalculateMode returns the most frequent value. When several values share the
// highest frequency, the one encountered first in input order wins.
func CalculateMode(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}

	counts := make(map[float64]int, len(values))
	var order []float64
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	mode, best := order[0], 0
	for _, v := range order {
		if counts[v] > best {
			best = counts[v]
			mode = v
		}
	}
	return mode, true
}

// SampleVariance is the n-1 variance. ok is false when fewer than two values exist.
func SampleVariance(values []float64) (v float64, ok bool) {
	if len(values) < 2 {
		return 0, false
	}
	v = stat.Variance(values, nil)
	if v < 0 {
		v = 0
	}
	return v, true
}

// Quantile returns the linearly interpolated quantile at p (0..1) of an ascending slice,
// using index p*(n-1).
func Quantile(sorted []float64, p float64) (float64, bool) {
	n := len(sorted)
	if n == 0 || p < 0 || p > 1 {
		return 0, false
	}
	if n == 1 {
		return sorted[0], true
	}

	idx := p * float64(n-1)
	lo := math.Floor(idx)
	hi := math.Ceil(idx)
	if lo == hi {
		return sorted[int(lo)], true
	}
	frac := idx - lo
	return sorted[int(lo)] + (sorted[int(hi)]-sorted[int(lo)])*frac, true
}

// sortedCopy returns an ascending copy, leaving the input untouched.
func sortedCopy(values []float64) []float64 {
	temp := make([]float64, len(values))
	copy(temp, values)
	slices.Sort(temp)
	return temp
}

// Skewness is the adjusted Fisher-Pearson coefficient. Undefined for n<3 or zero spread.
func Skewness(values []float64) (float64, bool) {
	if len(values) < 3 {
		return 0, false
	}
	if sd := stat.StdDev(values, nil); sd == 0 || math.IsNaN(sd) {
		return 0, false
	}
	return stat.Skew(values, nil), true
}

// Kurtosis is the unbiased excess kurtosis. Undefined for n<4 or zero spread.
func Kurtosis(values []float64) (float64, bool) {
	if len(values) < 4 {
		return 0, false
	}
	if sd := stat.StdDev(values, nil); sd == 0 || math.IsNaN(sd) {
		return 0, false
	}
	return stat.ExKurtosis(values, nil), true
}

// ptr returns a pointer to a copy of v.
func ptr[T any](v T) *T {
	return &v
}
