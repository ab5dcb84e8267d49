// Package amdahl estimates the parallel fraction of a workload from a measured speedup and predicts the speedup
// Amdahl's law gives for other process counts.
//
// The group-level fit uses a single point, the largest process count measured. It is not a regression over all
// points, and the other measurements are not used to validate it.
package amdahl

import (
	"math"

	"golang.org/x/exp/slices"
)

// degenerateSpeedup is the speedup at or below which the parallel fraction is reported as 0.
const degenerateSpeedup = 1e-12

// Point is a measured or predicted speedup at a process count.
type Point struct {
	P       int     `yaml:"p"`
	Speedup float64 `yaml:"speedup"`
}

// ParallelFraction solves S = 1/((1-f) + f/p) for f:
//
//	f = (1 - 1/S) / (1 - 1/p)
//
// The fraction is not defined for p <= 1, in which case ok is false. A speedup that is NaN or not meaningfully
// positive gives f = 0.
func ParallelFraction(speedup float64, p int) (f float64, ok bool) {
	if p <= 1 {
		return 0, false
	}
	if math.IsNaN(speedup) || speedup <= degenerateSpeedup {
		return 0, true
	}
	return (1 - 1/speedup) / (1 - 1/float64(p)), true
}

// PredictedSpeedup is Amdahl's law for fraction f on p processes.
func PredictedSpeedup(f float64, p int) float64 {
	return 1 / ((1 - f) + f/float64(p))
}

// Fit is a parallel fraction estimated from the measurement at one process count.
type Fit struct {
	Fraction float64 `yaml:"f"`
	// FromP is the process count whose speedup was used.
	FromP       int     `yaml:"from_p"`
	FromSpeedup float64 `yaml:"from_speedup"`
}

// FitLargest estimates f from the point with the largest p > 1 whose speedup is finite. A NaN or infinite speedup
// at the largest p is skipped and the fit comes from the next largest p instead, so Fit.FromP can be smaller than
// the largest p in the table. ok is false when no point qualifies.
func FitLargest(points []Point) (Fit, bool) {
	best := -1
	for i, pt := range points {
		if pt.P <= 1 || math.IsNaN(pt.Speedup) || math.IsInf(pt.Speedup, 0) {
			continue
		}
		if best < 0 || pt.P > points[best].P {
			best = i
		}
	}
	if best < 0 {
		return Fit{}, false
	}
	f, _ := ParallelFraction(points[best].Speedup, points[best].P)
	return Fit{Fraction: f, FromP: points[best].P, FromSpeedup: points[best].Speedup}, true
}

// Curve returns the predicted speedup at each of ps, in ascending p order.
func (fit Fit) Curve(ps []int) []Point {
	sorted := slices.Clone(ps)
	slices.Sort(sorted)
	rv := make([]Point, 0, len(sorted))
	for _, p := range sorted {
		if p <= 0 {
			continue
		}
		rv = append(rv, Point{P: p, Speedup: PredictedSpeedup(fit.Fraction, p)})
	}
	return rv
}
