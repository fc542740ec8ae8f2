// Package avellaneda implements the Avellaneda-Stoikov quoting formulas as
// pure functions over numeric inputs. It owns no state; the engine package
// feeds it fused parameters every cycle.
package avellaneda

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidParameter is returned when gamma or kappa reaches the spread
// formula non-positive. These are hard economic preconditions, not transient
// failures; the caller aborts the cycle.
var ErrInvalidParameter = errors.New("avellaneda: gamma and kappa must be > 0")

// RoundDirection selects how RoundToTick resolves off-grid prices.
type RoundDirection int

const (
	RoundDown RoundDirection = iota
	RoundUp
	RoundNearest
)

// Quote is the output of one pricing cycle. It is read-only once emitted;
// the next cycle supersedes it rather than mutating it.
type Quote struct {
	Mid              float64
	ReservationPrice float64
	HalfSpread       float64
	Bid              float64
	Ask              float64
	Inventory        float64
	Params           Params
	Time             time.Time
}

// Spread returns the quoted width.
func (q Quote) Spread() float64 { return q.Ask - q.Bid }

// ReservationPrice is the inventory-adjusted quoting center:
// mid - q*gamma*sigma^2. Positive inventory biases the center downward to
// encourage selling; symmetric for short inventory.
func ReservationPrice(mid, inventory, gamma, sigma float64) float64 {
	return mid - inventory*gamma*sigma*sigma
}

// HalfSpread is the optimal distance from the reservation price to each
// quoted side: (1/gamma)*ln(1+gamma/kappa) + 0.5*gamma*sigma^2.
func HalfSpread(gamma, kappa, sigma float64) (float64, error) {
	if gamma <= 0 || kappa <= 0 {
		return 0, ErrInvalidParameter
	}
	return math.Log(1+gamma/kappa)/gamma + 0.5*gamma*sigma*sigma, nil
}

// BidAsk centers the two quotes on the reservation price.
func BidAsk(reservation, halfSpread float64) (bid, ask float64) {
	return reservation - halfSpread, reservation + halfSpread
}

// ApplyConstraints repairs and clamps a raw quote. The bid<mid<ask repair
// runs before the width clamps because the repair itself changes the spread.
func ApplyConstraints(q Quote, minSpread, maxSpreadMultiplier float64) Quote {
	if q.Bid >= q.Mid {
		q.Bid = q.Mid - q.HalfSpread
	}
	if q.Ask <= q.Mid {
		q.Ask = q.Mid + q.HalfSpread
	}
	if spread := q.Ask - q.Bid; minSpread > 0 && spread < minSpread {
		pad := (minSpread - spread) / 2
		q.Bid -= pad
		q.Ask += pad
	}
	if maxSpread := 2 * q.HalfSpread * maxSpreadMultiplier; maxSpreadMultiplier >= 1 && q.Ask-q.Bid > maxSpread {
		trim := (q.Ask - q.Bid - maxSpread) / 2
		q.Bid += trim
		q.Ask -= trim
	}
	return q
}

// RoundToTick aligns price to the tick grid. Prices already on the grid are
// fixed points for every direction, so repeated rounding is stable.
func RoundToTick(price, tick float64, dir RoundDirection) float64 {
	if tick <= 0 {
		return price
	}
	ratio := price / tick
	// Guard against float noise on already-aligned prices.
	if nearest := math.Round(ratio); math.Abs(ratio-nearest) < 1e-9 {
		return nearest * tick
	}
	switch dir {
	case RoundUp:
		return math.Ceil(ratio) * tick
	case RoundNearest:
		return math.Round(ratio) * tick
	default:
		return math.Floor(ratio) * tick
	}
}

// Compute runs the full pipeline: reservation price, optimal half-spread,
// constraint repair, then tick alignment. Bid rounds down and ask rounds up
// so rounding never narrows the realized spread below the computed one.
func Compute(mid, inventory float64, p Params, tick, minSpread, maxSpreadMultiplier float64) (Quote, error) {
	delta, err := HalfSpread(p.Gamma, p.Kappa, p.Sigma)
	if err != nil {
		return Quote{}, err
	}
	reservation := ReservationPrice(mid, inventory, p.Gamma, p.Sigma)
	bid, ask := BidAsk(reservation, delta)
	q := Quote{
		Mid:              mid,
		ReservationPrice: reservation,
		HalfSpread:       delta,
		Bid:              bid,
		Ask:              ask,
		Inventory:        inventory,
		Params:           p,
		Time:             time.Now().UTC(),
	}
	q = ApplyConstraints(q, minSpread, maxSpreadMultiplier)
	q.Bid = RoundToTick(q.Bid, tick, RoundDown)
	q.Ask = RoundToTick(q.Ask, tick, RoundUp)
	return q, nil
}
