// Package inventory tracks signed position, weighted average entry price and
// realized/unrealized PnL. The ledger is mutated exclusively by ApplyFill;
// realized PnL only moves on fills that reduce the position's magnitude.
package inventory

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"avellaneda-mm/order"
)

// ErrInvalidFill rejects non-positive fill quantities.
var ErrInvalidFill = errors.New("inventory: fill quantity must be > 0")

// PositionSource is the slice of the exchange contract the ledger needs to
// seed itself. nil position with nil error means the venue reports no
// position.
type PositionSource interface {
	GetPosition(ctx context.Context, symbol string) (*Position, error)
}

// Position is a venue-reported signed exposure.
type Position struct {
	Symbol     string
	Quantity   float64 // positive = long, negative = short
	EntryPrice float64
}

// Fill is one executed trade applied to the ledger; the trade log is
// append-only.
type Fill struct {
	Side     order.Side
	Quantity float64
	Price    float64
	Time     time.Time
}

// Snapshot is a read-only copy of the ledger for events and monitoring.
type Snapshot struct {
	Quantity      float64
	AvgEntryPrice float64
	RealizedPnL   float64
	UnrealizedPnL float64
	TotalPnL      float64
	BuyVolume     float64
	SellVolume    float64
	Trades        int
}

// Ledger owns the inventory state for one strategy instance.
type Ledger struct {
	maxPosition float64 // > 0
	minPosition float64 // < 0
	target      float64

	mu         sync.RWMutex
	qty        float64
	avg        float64 // meaningful only while qty != 0
	realized   float64
	unrealized float64
	buyVolume  float64
	sellVolume float64
	trades     []Fill
}

// NewLedger creates an empty ledger bounded by [minPosition, maxPosition].
// Bound validity is enforced by config resolution before construction.
func NewLedger(maxPosition, minPosition, target float64) *Ledger {
	return &Ledger{maxPosition: maxPosition, minPosition: minPosition, target: target}
}

// Initialize seeds the ledger from the venue's reported position. A failed
// snapshot leaves the ledger flat and returns the underlying error so the
// caller can log it; startup is never blocked on it.
func (l *Ledger) Initialize(ctx context.Context, src PositionSource, symbol string) error {
	pos, err := src.GetPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if pos == nil || pos.Quantity == 0 {
		return nil
	}
	l.mu.Lock()
	l.qty = pos.Quantity
	l.avg = pos.EntryPrice
	l.mu.Unlock()
	return nil
}

// ApplyFill records an executed trade. Fills extending the position update
// the volume-weighted average entry price; fills against it realize PnL for
// the covered portion, and a sign flip restarts the average at the fill
// price for the new leg.
func (l *Ledger) ApplyFill(side order.Side, qty, price float64) error {
	if qty <= 0 {
		return ErrInvalidFill
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = append(l.trades, Fill{Side: side, Quantity: qty, Price: price, Time: time.Now().UTC()})

	signed := qty
	if side == order.SideSell {
		signed = -qty
		l.sellVolume += qty
	} else {
		l.buyVolume += qty
	}

	if l.qty == 0 || (l.qty > 0) == (signed > 0) {
		// Extending (or opening) in the fill's direction.
		total := l.avg*math.Abs(l.qty) + price*qty
		l.qty += signed
		l.avg = total / math.Abs(l.qty)
		return nil
	}

	// Reducing or flipping: realize PnL on the covered portion only.
	covered := math.Min(qty, math.Abs(l.qty))
	if l.qty > 0 {
		l.realized += covered * (price - l.avg)
	} else {
		l.realized += covered * (l.avg - price)
	}
	l.qty += signed
	switch {
	case l.qty == 0:
		l.avg = 0
	case (l.qty > 0) == (signed > 0):
		// Flipped through zero; the remainder is a fresh leg at the fill price.
		l.avg = price
	}
	return nil
}

// UpdateUnrealizedPnL marks the open position against mid. Zero when flat.
func (l *Ledger) UpdateUnrealizedPnL(mid float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.qty == 0 {
		l.unrealized = 0
	} else {
		l.unrealized = l.qty * (mid - l.avg)
	}
	return l.unrealized
}

// CanBuy reports whether buying qty keeps inventory within bounds.
func (l *Ledger) CanBuy(qty float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.qty+qty <= l.maxPosition
}

// CanSell reports whether selling qty keeps inventory within bounds.
func (l *Ledger) CanSell(qty float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.qty-qty >= l.minPosition
}

// MaxLong reports whether a buy of qty would breach the long limit.
func (l *Ledger) MaxLong(qty float64) bool { return !l.CanBuy(qty) }

// MaxShort reports whether a sell of qty would breach the short limit.
func (l *Ledger) MaxShort(qty float64) bool { return !l.CanSell(qty) }

// InventoryRatio is the signed fraction of the relevant limit, for
// monitoring: qty/maxPosition when long, qty/|minPosition| when short.
func (l *Ledger) InventoryRatio() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.qty >= 0 {
		if l.maxPosition <= 0 {
			return 0
		}
		return l.qty / l.maxPosition
	}
	if l.minPosition >= 0 {
		return 0
	}
	return l.qty / -l.minPosition
}

// Quantity returns the signed inventory.
func (l *Ledger) Quantity() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.qty
}

// AvgEntryPrice returns the weighted average entry price (0 while flat).
func (l *Ledger) AvgEntryPrice() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.avg
}

// RealizedPnL returns cumulative realized PnL.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realized
}

// TotalPnL returns realized plus last-marked unrealized PnL.
func (l *Ledger) TotalPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realized + l.unrealized
}

// Snapshot copies the current state for event emission.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Quantity:      l.qty,
		AvgEntryPrice: l.avg,
		RealizedPnL:   l.realized,
		UnrealizedPnL: l.unrealized,
		TotalPnL:      l.realized + l.unrealized,
		BuyVolume:     l.buyVolume,
		SellVolume:    l.sellVolume,
		Trades:        len(l.trades),
	}
}

// Trades returns a copy of the append-only trade log.
func (l *Ledger) Trades() []Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Fill, len(l.trades))
	copy(out, l.trades)
	return out
}
