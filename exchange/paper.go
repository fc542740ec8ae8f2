package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"avellaneda-mm/inventory"
	"avellaneda-mm/market"
	"avellaneda-mm/order"
)

// Paper is an in-memory venue honoring the Exchange contract. It is used for
// dry runs, simulation and tests: books and klines are set by the caller (or
// a BookStream), resting limit orders fill when the opposite best crosses
// their price, and fills execute at the resting price (maker assumption).
type Paper struct {
	constraints order.Constraints

	mu        sync.RWMutex
	books     map[string]*market.Book
	klines    map[string][]market.Kline
	positions map[string]inventory.Position
	orders    map[string]*order.Order
	seq       int
}

// NewPaper creates an empty paper venue. Constraints are optional; the zero
// value accepts any price/quantity.
func NewPaper(constraints order.Constraints) *Paper {
	return &Paper{
		constraints: constraints,
		books:       make(map[string]*market.Book),
		klines:      make(map[string][]market.Kline),
		positions:   make(map[string]inventory.Position),
		orders:      make(map[string]*order.Order),
	}
}

// SetBook installs a depth snapshot and matches resting orders against it.
func (p *Paper) SetBook(b *market.Book) {
	if b == nil || b.Symbol == "" {
		return
	}
	p.mu.Lock()
	p.books[b.Symbol] = b
	p.matchLocked(b)
	p.mu.Unlock()
}

// SetKlines installs candle history for a symbol, oldest first.
func (p *Paper) SetKlines(symbol string, klines []market.Kline) {
	p.mu.Lock()
	p.klines[symbol] = klines
	p.mu.Unlock()
}

// SetPosition installs a venue-reported position snapshot.
func (p *Paper) SetPosition(pos inventory.Position) {
	p.mu.Lock()
	p.positions[pos.Symbol] = pos
	p.mu.Unlock()
}

// matchLocked fills resting orders crossed by the new book. Caller holds the
// write lock.
func (p *Paper) matchLocked(b *market.Book) {
	bestBid, okBid := b.BestBid()
	bestAsk, okAsk := b.BestAsk()
	for _, o := range p.orders {
		if o.Symbol != b.Symbol || !o.Status.Active() {
			continue
		}
		crossed := (o.Side == order.SideBuy && okAsk && bestAsk.Price <= o.Price) ||
			(o.Side == order.SideSell && okBid && bestBid.Price >= o.Price)
		if crossed {
			o.ExecutedQuantity = o.Quantity
			o.Status = order.StatusFilled
			o.Updated = time.Now().UTC()
		}
	}
}

func (p *Paper) GetOrderBook(ctx context.Context, symbol string, depth int) (*market.Book, error) {
	p.mu.RLock()
	b, ok := p.books[symbol]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("paper: no book for %s", symbol)
	}
	out := &market.Book{Symbol: b.Symbol, Time: b.Time}
	out.Bids = append(out.Bids, b.Bids...)
	out.Asks = append(out.Asks, b.Asks...)
	if depth > 0 {
		if len(out.Bids) > depth {
			out.Bids = out.Bids[:depth]
		}
		if len(out.Asks) > depth {
			out.Asks = out.Asks[:depth]
		}
	}
	return out, nil
}

func (p *Paper) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	p.mu.RLock()
	ks := p.klines[symbol]
	p.mu.RUnlock()
	if limit > 0 && len(ks) > limit {
		ks = ks[len(ks)-limit:]
	}
	out := make([]market.Kline, len(ks))
	copy(out, ks)
	return out, nil
}

func (p *Paper) GetPosition(ctx context.Context, symbol string) (*inventory.Position, error) {
	p.mu.RLock()
	pos, ok := p.positions[symbol]
	p.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	out := pos
	return &out, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, req order.Request) (*order.Order, error) {
	if req.Symbol == "" || (req.Side != order.SideBuy && req.Side != order.SideSell) {
		return nil, fmt.Errorf("paper: invalid order request %+v", req)
	}
	if req.Type == "" {
		req.Type = order.TypeLimit
	}
	if req.Type == order.TypeLimit {
		if err := p.constraints.Validate(req.Price, req.Quantity); err != nil {
			return nil, fmt.Errorf("paper: %w", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	now := time.Now().UTC()
	o := &order.Order{
		ID:       fmt.Sprintf("paper-%06d", p.seq),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     req.Type,
		Price:    req.Price,
		Quantity: req.Quantity,
		Status:   order.StatusNew,
		Created:  now,
		Updated:  now,
	}
	p.orders[o.ID] = o
	if b, ok := p.books[req.Symbol]; ok {
		p.matchLocked(b)
	}
	out := *o
	return &out, nil
}

func (p *Paper) CancelOrder(ctx context.Context, symbol, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok || o.Symbol != symbol {
		return ErrOrderNotFound
	}
	if o.Status.Terminal() {
		return fmt.Errorf("paper: order %s already %s", id, o.Status)
	}
	o.Status = order.StatusCanceled
	o.Updated = time.Now().UTC()
	return nil
}

func (p *Paper) CancelAllOrders(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.orders {
		if o.Symbol == symbol && o.Status.Active() {
			o.Status = order.StatusCanceled
			o.Updated = time.Now().UTC()
		}
	}
	return nil
}

func (p *Paper) GetOrder(ctx context.Context, symbol, id string) (*order.Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o, ok := p.orders[id]
	if !ok || o.Symbol != symbol {
		return nil, ErrOrderNotFound
	}
	out := *o
	return &out, nil
}

// OpenOrders returns the active orders for a symbol, for inspection in sim
// runs and tests.
func (p *Paper) OpenOrders(symbol string) []order.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []order.Order
	for _, o := range p.orders {
		if o.Symbol == symbol && o.Status.Active() {
			out = append(out, *o)
		}
	}
	return out
}
