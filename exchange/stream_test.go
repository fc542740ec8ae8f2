package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avellaneda-mm/market"
)

func TestDecodeBookMessage(t *testing.T) {
	data := []byte(`{"symbol":"BTCUSDT","bids":[[49990,1.5],[49980,2]],"asks":[[50010,1]],"ts":1700000000000}`)
	book, err := DecodeBookMessage(data)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", book.Symbol)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, market.Level{Price: 49990, Quantity: 1.5}, book.Bids[0])
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 50000.0, book.Mid())
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), book.Time)
}

func TestDecodeBookMessage_Invalid(t *testing.T) {
	_, err := DecodeBookMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeBookMessage([]byte(`{"bids":[],"asks":[]}`))
	assert.Error(t, err, "missing symbol")
}

func TestBookStream_Run(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := `{"symbol":"BTCUSDT","bids":[[49990,1]],"asks":[[50010,1]],"ts":1700000000000}`
		for i := 0; i < 3; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	books := make(chan *market.Book, 8)
	stream := &BookStream{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}

	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, func(b *market.Book) { books <- b }) }()

	select {
	case b := <-books:
		assert.Equal(t, "BTCUSDT", b.Symbol)
		assert.Equal(t, 50000.0, b.Mid())
	case <-time.After(3 * time.Second):
		t.Fatal("no book received from stream")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}
}

func TestBookStream_RequiresURLAndSink(t *testing.T) {
	var s BookStream
	assert.Error(t, s.Run(context.Background(), func(*market.Book) {}))

	s.URL = "ws://localhost:1"
	assert.Error(t, s.Run(context.Background(), nil))
}
