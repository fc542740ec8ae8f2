package market

import (
	"fmt"
	"math"
)

// VolatilityMode selects how sigma is derived from the buffered log returns.
type VolatilityMode int

const (
	// ModeSample uses the Bessel-corrected sample standard deviation.
	ModeSample VolatilityMode = iota
	// ModeEWMA uses an exponentially weighted running variance.
	ModeEWMA
)

// DefaultEWMALambda is the decay factor applied when none is configured.
const DefaultEWMALambda = 0.94

// VolatilityEstimator derives a rolling volatility estimate from a window of
// reference prices. The output is in the native time unit of the input
// cadence; no annualization is applied.
type VolatilityEstimator struct {
	mode    VolatilityMode
	lambda  float64
	returns *Ring[float64]
	last    float64

	ewmaVar float64
	seeded  bool
}

// NewVolatilityEstimator creates an estimator holding the last window prices
// (hence window-1 log returns).
func NewVolatilityEstimator(window int, mode VolatilityMode, lambda float64) (*VolatilityEstimator, error) {
	if window < 2 {
		return nil, fmt.Errorf("volatility window must be >= 2, got %d", window)
	}
	if lambda <= 0 || lambda >= 1 {
		lambda = DefaultEWMALambda
	}
	returns, err := NewRing[float64](window - 1)
	if err != nil {
		return nil, err
	}
	return &VolatilityEstimator{mode: mode, lambda: lambda, returns: returns}, nil
}

// AddPrice appends a reference price. Non-positive prices carry no return
// information and are skipped.
func (v *VolatilityEstimator) AddPrice(p float64) {
	if p <= 0 {
		return
	}
	if v.last > 0 {
		r := math.Log(p / v.last)
		v.returns.Push(r)
		if v.mode == ModeEWMA && v.seeded {
			v.ewmaVar = v.lambda*v.ewmaVar + (1-v.lambda)*r*r
		}
	}
	v.last = p
}

// AddKlines feeds candle closes, oldest first.
func (v *VolatilityEstimator) AddKlines(klines []Kline) {
	for _, k := range klines {
		v.AddPrice(k.Close)
	}
}

// Calculate returns the current sigma estimate. ok is false while fewer than
// two returns are buffered; that is insufficient data, not an error.
func (v *VolatilityEstimator) Calculate() (sigma float64, ok bool) {
	rs := v.returns.Values()
	if len(rs) < 2 {
		return 0, false
	}
	if v.mode == ModeEWMA {
		if !v.seeded {
			v.ewmaVar = sampleVariance(rs)
			v.seeded = true
		}
		return math.Sqrt(v.ewmaVar), true
	}
	return math.Sqrt(sampleVariance(rs)), true
}

// Ready reports whether at least minSamples returns are buffered. It is
// independent of Calculate's strict minimum of 2.
func (v *VolatilityEstimator) Ready(minSamples int) bool {
	return v.returns.Len() >= minSamples
}

// Reset drops all buffered prices and the EWMA state.
func (v *VolatilityEstimator) Reset() {
	v.returns.Clear()
	v.last = 0
	v.ewmaVar = 0
	v.seeded = false
}

// sampleVariance is Bessel-corrected (divide by n-1).
func sampleVariance(rs []float64) float64 {
	sum := 0.0
	for _, r := range rs {
		sum += r
	}
	mean := sum / float64(len(rs))
	sumSq := 0.0
	for _, r := range rs {
		d := r - mean
		sumSq += d * d
	}
	return sumSq / float64(len(rs)-1)
}
