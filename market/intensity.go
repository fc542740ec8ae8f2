package market

import "fmt"

// Kappa 估计值的边界；超出该区间 AS 价差公式在数值上不稳定。
const (
	MinKappa = 0.001
	MaxKappa = 0.5

	// MinIntensitySamples is the spread-history floor below which Calculate
	// reports not-ready.
	MinIntensitySamples = 5

	fallbackKappa = 0.01
)

// IntensityEstimator converts observed relative spreads into a heuristic
// order-arrival intensity (kappa). A tighter average spread implies a more
// competitive market and therefore a larger kappa.
type IntensityEstimator struct {
	spreads *Ring[float64]
}

// NewIntensityEstimator creates an estimator buffering the last window
// relative spreads.
func NewIntensityEstimator(window int) (*IntensityEstimator, error) {
	if window < MinIntensitySamples {
		return nil, fmt.Errorf("kappa window must be >= %d, got %d", MinIntensitySamples, window)
	}
	spreads, err := NewRing[float64](window)
	if err != nil {
		return nil, err
	}
	return &IntensityEstimator{spreads: spreads}, nil
}

// Observe records the relative spread (ask-bid)/mid of a book snapshot.
// Snapshots with an empty side are ignored.
func (e *IntensityEstimator) Observe(b *Book) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return
	}
	mid := (bid.Price + ask.Price) / 2
	if mid <= 0 {
		return
	}
	e.spreads.Push((ask.Price - bid.Price) / mid)
}

// Calculate returns the kappa estimate 1/(avgSpread*spreadMultiplier),
// clamped to [MinKappa, MaxKappa]. ok is false with fewer than
// MinIntensitySamples samples or a non-positive average spread.
func (e *IntensityEstimator) Calculate(spreadMultiplier float64) (kappa float64, ok bool) {
	vals := e.spreads.Values()
	if len(vals) < MinIntensitySamples {
		return 0, false
	}
	sum := 0.0
	for _, s := range vals {
		sum += s
	}
	avg := sum / float64(len(vals))
	if avg <= 0 {
		return 0, false
	}
	if spreadMultiplier <= 0 {
		spreadMultiplier = 1
	}
	return clamp(1/(avg*spreadMultiplier), MinKappa, MaxKappa), true
}

// Samples returns the number of buffered spread observations.
func (e *IntensityEstimator) Samples() int { return e.spreads.Len() }

// Reset drops the buffered spread history.
func (e *IntensityEstimator) Reset() { e.spreads.Clear() }

// KappaFromVolatility is the fallback used while spread history is
// unavailable, so the quoting loop never stalls for lack of kappa.
func KappaFromVolatility(sigma float64) float64 {
	if sigma <= 0 {
		return fallbackKappa
	}
	return clamp(sigma/10, MinKappa, MaxKappa)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
