package common

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions shared by the loudness, quantization and
// segmentation code. All of them treat an empty slice as 0.

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Median returns the middle value of data, averaging the two middle values
// for even lengths. data is not modified.
func Median(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return 0.0
	}

	sorted := make([]float64, n)
	copy(sorted, data)
	slices.Sort(sorted)

	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2.0
	}
	return sorted[mid]
}

// Max returns the largest value in data
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Max(data)
}

// RootMean returns sqrt(mean(data)). On a rectified signal this is the
// square root of the mean magnitude, which is what the "rms" loudness
// reduction reports.
func RootMean(data []float64) float64 {
	m := Mean(data)
	if m <= 0 {
		return 0.0
	}
	return math.Sqrt(m)
}

// Abs returns a new slice holding |x| for every sample
func Abs(data []float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = math.Abs(v)
	}
	return out
}

// Linspace returns n evenly spaced values over [start, stop]
func Linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return []float64{}
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, stop)
}

// LowerBound returns the first index i in the ascending slice sorted for
// which sorted[i] >= ref, or len(sorted) when every value is smaller.
func LowerBound(sorted []float64, ref float64) int {
	left, right := 0, len(sorted)
	for left < right {
		mid := left + (right-left)/2
		if sorted[mid] < ref {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
