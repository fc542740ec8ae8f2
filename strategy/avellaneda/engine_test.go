package avellaneda

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHalfSpread_PositiveForValidInputs(t *testing.T) {
	gammas := []float64{0.01, 0.1, 0.5, 1, 5}
	kappas := []float64{0.001, 0.01, 0.1, 0.5}
	sigmas := []float64{0, 0.0001, 0.01, 0.5}

	for _, g := range gammas {
		for _, k := range kappas {
			for _, s := range sigmas {
				delta, err := HalfSpread(g, k, s)
				require.NoError(t, err)
				assert.Greater(t, delta, 0.0, "gamma=%v kappa=%v sigma=%v", g, k, s)
			}
		}
	}
}

func TestHalfSpread_InvalidParameters(t *testing.T) {
	_, err := HalfSpread(0, 0.1, 0.01)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = HalfSpread(0.5, 0, 0.01)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = HalfSpread(-1, -1, 0.01)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestReservationPrice_InventorySkew(t *testing.T) {
	// Long inventory biases the center below mid, short above, flat on mid.
	assert.Equal(t, 100.0, ReservationPrice(100, 0, 0.5, 0.1))
	assert.Less(t, ReservationPrice(100, 2, 0.5, 0.1), 100.0)
	assert.Greater(t, ReservationPrice(100, -2, 0.5, 0.1), 100.0)

	// mid - q*gamma*sigma^2
	assert.InDelta(t, 100-2*0.5*0.01, ReservationPrice(100, 2, 0.5, 0.1), 1e-12)
}

func TestApplyConstraints_RepairsCrossedQuote(t *testing.T) {
	q := Quote{Mid: 100, HalfSpread: 1, Bid: 100.5, Ask: 99.5}
	out := ApplyConstraints(q, 0, 10)

	assert.Less(t, out.Bid, out.Mid)
	assert.Greater(t, out.Ask, out.Mid)
	assert.InDelta(t, 99, out.Bid, 1e-12)
	assert.InDelta(t, 101, out.Ask, 1e-12)
}

func TestApplyConstraints_MinSpreadWidening(t *testing.T) {
	q := Quote{Mid: 100, HalfSpread: 0.05, Bid: 99.95, Ask: 100.05}
	out := ApplyConstraints(q, 0.5, 10)

	assert.GreaterOrEqual(t, out.Spread(), 0.5-1e-12)
	// Widening is symmetric.
	assert.InDelta(t, 99.75, out.Bid, 1e-12)
	assert.InDelta(t, 100.25, out.Ask, 1e-12)
}

func TestApplyConstraints_MaxSpreadNarrowing(t *testing.T) {
	q := Quote{Mid: 100, HalfSpread: 0.5, Bid: 95, Ask: 105}
	out := ApplyConstraints(q, 0, 2)

	// Cap is 2*halfSpread*multiplier = 2.
	assert.InDelta(t, 2.0, out.Spread(), 1e-12)
	assert.InDelta(t, 99, out.Bid, 1e-12)
	assert.InDelta(t, 101, out.Ask, 1e-12)
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		tick  float64
		dir   RoundDirection
		want  float64
	}{
		{"down", 100.019, 0.01, RoundDown, 100.01},
		{"up", 100.011, 0.01, RoundUp, 100.02},
		{"nearest low", 100.012, 0.01, RoundNearest, 100.01},
		{"nearest high", 100.018, 0.01, RoundNearest, 100.02},
		{"aligned down", 100.01, 0.01, RoundDown, 100.01},
		{"aligned up", 100.01, 0.01, RoundUp, 100.01},
		{"zero tick passthrough", 100.0123, 0, RoundDown, 100.0123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundToTick(tt.price, tt.tick, tt.dir), 1e-9)
		})
	}
}

func TestRoundToTick_Idempotent(t *testing.T) {
	for _, dir := range []RoundDirection{RoundDown, RoundUp, RoundNearest} {
		once := RoundToTick(49992.1363, 0.01, dir)
		twice := RoundToTick(once, 0.01, dir)
		assert.Equal(t, once, twice, "direction %v", dir)
	}
}

func TestCompute_FlatInventoryScenario(t *testing.T) {
	p := Params{Gamma: 0.5, Kappa: 0.01, Sigma: 0.001, Horizon: 1}
	q, err := Compute(50000, 0, p, 0.01, 0, 2)
	require.NoError(t, err)

	// Flat inventory keeps the reservation price on mid.
	assert.Equal(t, 50000.0, q.ReservationPrice)

	// (1/0.5)*ln(1+0.5/0.01) + 0.5*0.5*0.001^2 ~= 2*ln(51)
	wantDelta := 2*math.Log(51) + 0.25*0.000001
	assert.InDelta(t, wantDelta, q.HalfSpread, 1e-9)

	// Bid floors, ask ceils on the 0.01 grid.
	assert.InDelta(t, 49992.13, q.Bid, 1e-9)
	assert.InDelta(t, 50007.87, q.Ask, 1e-9)

	assert.Less(t, q.Bid, q.Mid)
	assert.Greater(t, q.Ask, q.Mid)
}

func TestCompute_ConstrainedOrdering(t *testing.T) {
	p := Params{Gamma: 0.5, Kappa: 0.1, Sigma: 0.002, Horizon: 1}
	for _, inv := range []float64{-5, -1, 0, 1, 5} {
		q, err := Compute(200, inv, p, 0.01, 0.05, 1.5)
		require.NoError(t, err)
		assert.Less(t, q.Bid, q.Mid, "inventory %v", inv)
		assert.Greater(t, q.Ask, q.Mid, "inventory %v", inv)
		assert.GreaterOrEqual(t, q.Spread(), 0.05-1e-9, "inventory %v", inv)
	}
}

func TestCompute_InvalidParams(t *testing.T) {
	_, err := Compute(100, 0, Params{Gamma: 0, Kappa: 0.01}, 0.01, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
