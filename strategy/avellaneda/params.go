package avellaneda

// Params are the Avellaneda-Stoikov inputs for one quoting cycle. They are
// recomputed every cycle from estimator output and operator overrides, and
// never mutated after the quote is produced.
type Params struct {
	Gamma   float64 // risk aversion, > 0
	Kappa   float64 // order-arrival intensity, > 0
	Sigma   float64 // volatility per update interval, >= 0
	Horizon float64 // remaining time horizon, in update-interval units
}
