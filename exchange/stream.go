package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"avellaneda-mm/market"
)

// BookMessage is the wire shape of one depth snapshot on the stream:
// levels are [price, quantity] pairs sorted best-first, ts is unix millis.
// The shape is deliberately venue-neutral; venue adapters translate into it.
type BookMessage struct {
	Symbol string       `json:"symbol"`
	Bids   [][2]float64 `json:"bids"`
	Asks   [][2]float64 `json:"asks"`
	TS     int64        `json:"ts"`
}

// BookStream consumes depth snapshots from a websocket endpoint and hands
// them to a sink, typically Paper.SetBook. It reconnects with doubling
// backoff until the context is cancelled.
type BookStream struct {
	URL         string
	Dialer      *websocket.Dialer
	ReadTimeout time.Duration // per-message deadline, default 30s
	MinBackoff  time.Duration // default 1s
	MaxBackoff  time.Duration // default 30s

	// OnError, when set, observes connection/decoding failures.
	OnError func(err error)
}

// Run blocks until ctx is cancelled, feeding decoded books to sink.
func (s *BookStream) Run(ctx context.Context, sink func(*market.Book)) error {
	if s.URL == "" {
		return fmt.Errorf("stream: url required")
	}
	if sink == nil {
		return fmt.Errorf("stream: sink required")
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	readTimeout := s.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	backoff := s.MinBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := s.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	wait := backoff
	for {
		if err := s.consume(ctx, dialer, readTimeout, sink); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.reportError(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

// consume runs one connection until it fails or the context is cancelled.
func (s *BookStream) consume(ctx context.Context, dialer *websocket.Dialer, readTimeout time.Duration, sink func(*market.Book)) error {
	conn, _, err := dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return fmt.Errorf("stream dial %s: %w", s.URL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}
		book, err := DecodeBookMessage(message)
		if err != nil {
			s.reportError(err)
			continue
		}
		sink(book)
	}
}

func (s *BookStream) reportError(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}

// DecodeBookMessage parses one wire message into a market.Book.
func DecodeBookMessage(data []byte) (*market.Book, error) {
	var msg BookMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("stream decode: %w", err)
	}
	if msg.Symbol == "" {
		return nil, fmt.Errorf("stream decode: missing symbol")
	}
	book := &market.Book{Symbol: msg.Symbol, Time: time.UnixMilli(msg.TS).UTC()}
	for _, lv := range msg.Bids {
		book.Bids = append(book.Bids, market.Level{Price: lv[0], Quantity: lv[1]})
	}
	for _, lv := range msg.Asks {
		book.Asks = append(book.Asks, market.Level{Price: lv[0], Quantity: lv[1]})
	}
	return book, nil
}
