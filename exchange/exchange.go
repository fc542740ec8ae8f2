// Package exchange defines the venue capability contract the engine consumes
// and ships two implementations: an in-memory paper venue and a generic
// websocket depth feed. Venue-specific adapters live outside this module and
// plug in through the Registry.
package exchange

import (
	"context"
	"errors"

	"avellaneda-mm/inventory"
	"avellaneda-mm/market"
	"avellaneda-mm/order"
)

// ErrOrderNotFound is returned by GetOrder when the venue does not know the
// order id. The engine treats it as "no outstanding order".
var ErrOrderNotFound = errors.New("exchange: order not found")

// Exchange is the capability set any venue must implement. All amounts are
// floating-point quantities in the asset's native units; precision and lot
// enforcement beyond the configured tick/lot size is the implementation's
// responsibility.
type Exchange interface {
	// GetOrderBook returns a depth snapshot, price-sorted best-first.
	GetOrderBook(ctx context.Context, symbol string, depth int) (*market.Book, error)
	// GetKlines returns up to limit candles ordered oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error)
	// GetPosition returns the signed position, or nil when none is reported.
	GetPosition(ctx context.Context, symbol string) (*inventory.Position, error)

	PlaceOrder(ctx context.Context, req order.Request) (*order.Order, error)
	CancelOrder(ctx context.Context, symbol, id string) error
	CancelAllOrders(ctx context.Context, symbol string) error
	GetOrder(ctx context.Context, symbol, id string) (*order.Order, error)
}
