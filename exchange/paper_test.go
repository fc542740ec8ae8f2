package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avellaneda-mm/inventory"
	"avellaneda-mm/market"
	"avellaneda-mm/order"
)

func testBook(bid, ask float64) *market.Book {
	return &market.Book{
		Symbol: "BTCUSDT",
		Bids:   []market.Level{{Price: bid, Quantity: 1}},
		Asks:   []market.Level{{Price: ask, Quantity: 1}},
	}
}

func TestPaper_OrderLifecycle(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(order.Constraints{})
	p.SetBook(testBook(49990, 50010))

	o, err := p.PlaceOrder(ctx, order.Request{
		Symbol: "BTCUSDT", Side: order.SideBuy, Quantity: 0.001, Price: 49985, TimeInForce: order.GTC,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusNew, o.Status)

	got, err := p.GetOrder(ctx, "BTCUSDT", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusNew, got.Status)

	require.NoError(t, p.CancelOrder(ctx, "BTCUSDT", o.ID))
	got, err = p.GetOrder(ctx, "BTCUSDT", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCanceled, got.Status)

	// Cancelling a terminal order is an error.
	assert.Error(t, p.CancelOrder(ctx, "BTCUSDT", o.ID))
}

func TestPaper_CrossingFill(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(order.Constraints{})
	p.SetBook(testBook(49990, 50010))

	bid, err := p.PlaceOrder(ctx, order.Request{
		Symbol: "BTCUSDT", Side: order.SideBuy, Quantity: 0.002, Price: 49980,
	})
	require.NoError(t, err)

	// Ask drops through the resting bid: the order fills at its own price.
	p.SetBook(testBook(49950, 49975))

	got, err := p.GetOrder(ctx, "BTCUSDT", bid.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, got.Status)
	assert.Equal(t, 0.002, got.ExecutedQuantity)
	assert.Empty(t, p.OpenOrders("BTCUSDT"))
}

func TestPaper_ImmediateCross(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(order.Constraints{})
	p.SetBook(testBook(49990, 50010))

	// A sell below the best bid crosses immediately on placement.
	o, err := p.PlaceOrder(ctx, order.Request{
		Symbol: "BTCUSDT", Side: order.SideSell, Quantity: 0.001, Price: 49985,
	})
	require.NoError(t, err)

	got, err := p.GetOrder(ctx, "BTCUSDT", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, got.Status)
}

func TestPaper_ConstraintsEnforced(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(order.Constraints{TickSize: 0.01, LotSize: 0.001})
	p.SetBook(testBook(49990, 50010))

	_, err := p.PlaceOrder(ctx, order.Request{
		Symbol: "BTCUSDT", Side: order.SideBuy, Quantity: 0.001, Price: 49985.005,
	})
	assert.Error(t, err, "off-tick price rejected")
}

func TestPaper_CancelAllAndUnknown(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(order.Constraints{})
	p.SetBook(testBook(49990, 50010))

	_, err := p.PlaceOrder(ctx, order.Request{Symbol: "BTCUSDT", Side: order.SideBuy, Quantity: 1, Price: 49000})
	require.NoError(t, err)
	_, err = p.PlaceOrder(ctx, order.Request{Symbol: "BTCUSDT", Side: order.SideSell, Quantity: 1, Price: 51000})
	require.NoError(t, err)
	require.Len(t, p.OpenOrders("BTCUSDT"), 2)

	require.NoError(t, p.CancelAllOrders(ctx, "BTCUSDT"))
	assert.Empty(t, p.OpenOrders("BTCUSDT"))

	_, err = p.GetOrder(ctx, "BTCUSDT", "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, p.CancelOrder(ctx, "BTCUSDT", "nope"), ErrOrderNotFound)
}

func TestPaper_MarketData(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(order.Constraints{})

	_, err := p.GetOrderBook(ctx, "BTCUSDT", 5)
	assert.Error(t, err, "no book installed yet")

	p.SetBook(&market.Book{
		Symbol: "BTCUSDT",
		Bids:   []market.Level{{Price: 100, Quantity: 1}, {Price: 99, Quantity: 2}, {Price: 98, Quantity: 3}},
		Asks:   []market.Level{{Price: 101, Quantity: 1}, {Price: 102, Quantity: 2}},
	})
	b, err := p.GetOrderBook(ctx, "BTCUSDT", 2)
	require.NoError(t, err)
	assert.Len(t, b.Bids, 2)
	assert.Equal(t, 100.5, b.Mid())

	p.SetKlines("BTCUSDT", []market.Kline{{Close: 1}, {Close: 2}, {Close: 3}})
	ks, err := p.GetKlines(ctx, "BTCUSDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, ks, 2)
	assert.Equal(t, 2.0, ks[0].Close)

	pos, err := p.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos)

	p.SetPosition(inventory.Position{Symbol: "BTCUSDT", Quantity: -1, EntryPrice: 100})
	pos, err = p.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, -1.0, pos.Quantity)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("paper", func(opts Options) (Exchange, error) {
		return NewPaper(order.Constraints{}), nil
	}))
	assert.Error(t, r.Register("paper", func(opts Options) (Exchange, error) { return nil, nil }))
	assert.Error(t, r.Register("", nil))

	ex, err := r.Open("paper", Options{})
	require.NoError(t, err)
	assert.NotNil(t, ex)

	_, err = r.Open("binance", Options{})
	assert.Error(t, err)
	assert.Equal(t, []string{"paper"}, r.Names())
}
