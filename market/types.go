package market

import "time"

// Level 表示订单簿中的一个价位档。
type Level struct {
	Price    float64
	Quantity float64
}

// Book is a depth snapshot with price-sorted levels, best first.
type Book struct {
	Symbol string
	Bids   []Level
	Asks   []Level
	Time   time.Time
}

// BestBid returns the top bid level; ok is false when the side is empty.
func (b *Book) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level; ok is false when the side is empty.
func (b *Book) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// Mid 返回中间价；若缺失任一侧返回 0。
func (b *Book) Mid() float64 {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0
	}
	return (bid.Price + ask.Price) / 2
}

// Kline is a single OHLCV candle.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
