// Package stats reduces repeated trial samples to a single robust runtime and derives speedup.
package stats

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/G-Research/scalebench/internal/common/bencherrors"
)

// Sample is the outcome of one trial. A sample with a non-nil Err is a gap: the trial timed out or printed
// nothing parseable.
type Sample struct {
	Seconds float64
	Err     error
}

func (s Sample) Valid() bool {
	return s.Err == nil && !math.IsNaN(s.Seconds) && !math.IsInf(s.Seconds, 0)
}

// Measurement is the aggregate of the valid samples of one configuration.
type Measurement struct {
	Median    float64 `yaml:"median_s"`
	Valid     int     `yaml:"valid"`
	Attempted int     `yaml:"attempted"`
	Min       float64 `yaml:"min_s"`
	Max       float64 `yaml:"max_s"`
	Mean      float64 `yaml:"mean_s"`
	// Sample standard deviation; zero for a single sample.
	StdDev float64 `yaml:"stddev_s"`
}

// Median returns the median of values, averaging the two middle values when there is an even number of them.
// values is not modified. The median of an empty slice is NaN.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Aggregate computes the median and spread of the valid samples. It returns an *bencherrors.ErrNoValidSamples if
// there are none; nothing is synthesised for a configuration without data.
func Aggregate(samples []Sample) (Measurement, error) {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Valid() {
			values = append(values, s.Seconds)
		}
	}
	if len(values) == 0 {
		return Measurement{}, errors.WithStack(&bencherrors.ErrNoValidSamples{Attempted: len(samples)})
	}

	m := Measurement{
		Median:    Median(values),
		Valid:     len(values),
		Attempted: len(samples),
		Min:       floats.Min(values),
		Max:       floats.Max(values),
	}
	if len(values) == 1 {
		m.Mean = values[0]
	} else {
		m.Mean, m.StdDev = stat.MeanStdDev(values, nil)
	}
	return m, nil
}

// Speedup is serialMedian / parallelMedian, or NaN when parallelMedian is zero.
func Speedup(serialMedian, parallelMedian float64) float64 {
	if parallelMedian == 0 {
		return math.NaN()
	}
	return serialMedian / parallelMedian
}
