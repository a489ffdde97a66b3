package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"CypherFeed/pkg/config"
	"CypherFeed/pkg/logger"
	"CypherFeed/pkg/ws"
)

func TestParseAggTradeCombined(t *testing.T) {
	frame := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"64250.10","q":"0.5","T":1717000000123}}`)
	tick, ok := parseAggTrade(frame)
	if !ok {
		t.Fatal("expected parse ok")
	}
	if tick.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q", tick.Symbol)
	}
	if tick.Price != 64250.10 {
		t.Errorf("price = %v", tick.Price)
	}
	if tick.Volume != 0.5 {
		t.Errorf("volume = %v", tick.Volume)
	}
	if tick.Timestamp != 1717000000 {
		t.Errorf("timestamp = %v", tick.Timestamp)
	}
	if tick.Source != "binance" {
		t.Errorf("source = %q", tick.Source)
	}
}

func TestParseAggTradeBare(t *testing.T) {
	frame := []byte(`{"e":"aggTrade","s":"ETHUSDT","p":"3100.5","q":"2","T":1717000001000}`)
	tick, ok := parseAggTrade(frame)
	if !ok {
		t.Fatal("expected parse ok")
	}
	if tick.Symbol != "ETHUSDT" || tick.Price != 3100.5 {
		t.Errorf("got %+v", tick)
	}
}

func TestParseAggTradeRejects(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"subscribe ack", `{"result":null,"id":1}`},
		{"other event", `{"e":"kline","s":"BTCUSDT","p":"1"}`},
		{"bad price", `{"e":"aggTrade","s":"BTCUSDT","p":"abc","q":"1","T":1}`},
		{"zero price", `{"e":"aggTrade","s":"BTCUSDT","p":"0","q":"1","T":1}`},
		{"not json", `not json`},
	}
	for _, tc := range cases {
		if _, ok := parseAggTrade([]byte(tc.frame)); ok {
			t.Errorf("%s: expected reject", tc.name)
		}
	}
}

func TestStreamName(t *testing.T) {
	if got := streamName("BTCUSDT"); got != "btcusdt@aggTrade" {
		t.Errorf("streamName = %q", got)
	}
}

// TestReadCancelWhileStreaming cancels the reader context while the
// server keeps pushing trades. The subscription callback keeps firing
// after ticks is closed, which must not bring the process down.
func TestReadCancelWhileStreaming(t *testing.T) {
	var upgrader websocket.Upgrader
	frame := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"64000","q":"0.1","T":1717000000123}}`)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// discard the SUBSCRIBE frame so the write side never blocks
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		for {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}))
	t.Cleanup(s.Close)

	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	mgr := ws.NewManager(l)
	t.Cleanup(func() { mgr.Close() })

	b := NewBinance(mgr, config.BinanceConfig{
		StreamURL: "ws" + strings.TrimPrefix(s.URL, "http"),
		Symbols:   []string{"BTCUSDT"},
	}, config.ReconnectConfig{Policy: "fixed", Interval: 10 * time.Millisecond})
	if err := b.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	readCtx, cancel := context.WithCancel(context.Background())
	ticks, _ := b.Read(readCtx)

	select {
	case tick := <-ticks:
		if tick == nil || tick.Symbol != "BTCUSDT" {
			t.Fatalf("tick = %+v", tick)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no tick before cancel")
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				// socket is still live and feeding the callback
				time.Sleep(50 * time.Millisecond)
				return
			}
		case <-deadline:
			t.Fatal("ticks never closed after cancel")
		}
	}
}
