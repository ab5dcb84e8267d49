package amdahl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelFraction(t *testing.T) {
	tests := map[string]struct {
		speedup  float64
		p        int
		expected float64
		wantOk   bool
	}{
		"speedup 4 on 8":       {speedup: 4, p: 8, expected: 0.857142857, wantOk: true},
		"perfect scaling":      {speedup: 8, p: 8, expected: 1, wantOk: true},
		"no speedup":           {speedup: 1, p: 4, expected: 0, wantOk: true},
		"slowdown is negative": {speedup: 0.5, p: 2, expected: -2, wantOk: true},
		"zero speedup":         {speedup: 0, p: 4, expected: 0, wantOk: true},
		"tiny speedup":         {speedup: 1e-13, p: 4, expected: 0, wantOk: true},
		"negative speedup":     {speedup: -3, p: 4, expected: 0, wantOk: true},
		"NaN speedup":          {speedup: math.NaN(), p: 4, expected: 0, wantOk: true},
		"single process":       {speedup: 1, p: 1, wantOk: false},
		"zero processes":       {speedup: 1, p: 0, wantOk: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f, ok := ParallelFraction(tc.speedup, tc.p)
			assert.Equal(t, tc.wantOk, ok)
			assert.InDelta(t, tc.expected, f, 1e-6)
		})
	}
}

func TestPredictedSpeedup_InvertsParallelFraction(t *testing.T) {
	for _, p := range []int{2, 4, 6, 8, 16} {
		for _, s := range []float64{1.2, 1.9, 3.3} {
			f, ok := ParallelFraction(s, p)
			require.True(t, ok)
			assert.InDelta(t, s, PredictedSpeedup(f, p), 1e-9)
		}
	}
	assert.Equal(t, 1.0, PredictedSpeedup(0, 16))
	assert.Equal(t, 16.0, PredictedSpeedup(1, 16))
}

func TestFitLargest(t *testing.T) {
	fit, ok := FitLargest([]Point{
		{P: 1, Speedup: 1},
		{P: 8, Speedup: 4},
		{P: 2, Speedup: 1.9},
		{P: 4, Speedup: 3.1},
	})
	require.True(t, ok)
	assert.Equal(t, 8, fit.FromP)
	assert.Equal(t, 4.0, fit.FromSpeedup)
	assert.InDelta(t, 0.857, fit.Fraction, 1e-3)
}

func TestFitLargest_SkipsNaN(t *testing.T) {
	fit, ok := FitLargest([]Point{{P: 2, Speedup: 1.5}, {P: 4, Speedup: math.NaN()}})
	require.True(t, ok)
	assert.Equal(t, 2, fit.FromP)
}

func TestFitLargest_NoUsablePoint(t *testing.T) {
	_, ok := FitLargest([]Point{{P: 1, Speedup: 1}})
	assert.False(t, ok)
	_, ok = FitLargest(nil)
	assert.False(t, ok)
}

func TestFit_Curve(t *testing.T) {
	fit := Fit{Fraction: 0.5}
	curve := fit.Curve([]int{4, 1, 2})
	require.Len(t, curve, 3)
	assert.Equal(t, 1, curve[0].P)
	assert.InDelta(t, 1.0, curve[0].Speedup, 1e-12)
	assert.Equal(t, 2, curve[1].P)
	assert.InDelta(t, 4.0/3.0, curve[1].Speedup, 1e-12)
	assert.Equal(t, 4, curve[2].P)
	assert.InDelta(t, 1.6, curve[2].Speedup, 1e-12)
}
