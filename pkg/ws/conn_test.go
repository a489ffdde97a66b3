package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"CypherFeed/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

var upgrader = websocket.Upgrader{}

// wsServer runs session for every incoming connection.
func wsServer(t *testing.T, session func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		session(conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// drain holds the server side open until the peer closes.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnFanOutByChannel(t *testing.T) {
	s := wsServer(t, func(conn *websocket.Conn) {
		msgs := []string{
			`{"stream":"btcusdt@aggTrade","data":{"p":"1"}}`,
			`{"stream":"ethusdt@aggTrade","data":{"p":"2"}}`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		drain(conn)
	})

	c := newConn(ConnConfig{Name: "test", URL: wsURL(s)}, nil)
	t.Cleanup(func() { c.Close() })

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(key string) Handler {
		return func(channel string, data []byte) {
			mu.Lock()
			got[key] = append(got[key], channel)
			mu.Unlock()
		}
	}
	c.Subscribe("btcusdt@aggTrade", record("btc"))
	c.Subscribe("*", record("all"))

	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["all"]) == 2
	}, "wildcard handler did not see both frames")

	mu.Lock()
	defer mu.Unlock()
	if len(got["btc"]) != 1 || got["btc"][0] != "btcusdt@aggTrade" {
		t.Errorf("btc handler saw %v, want exactly the btcusdt frame", got["btc"])
	}
}

func TestConnReplaysSubscribesOnConnect(t *testing.T) {
	subs := make(chan string, 2)
	s := wsServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subs <- string(data)
		drain(conn)
	})

	c := newConn(ConnConfig{
		Name:       "test",
		URL:        wsURL(s),
		Subscribes: []any{map[string]any{"method": "SUBSCRIBE", "id": 1}},
	}, nil)
	t.Cleanup(func() { c.Close() })
	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case got := <-subs:
		if !strings.Contains(got, "SUBSCRIBE") {
			t.Errorf("server received %q, want subscribe payload", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the subscribe payload")
	}
}

func TestConnReconnects(t *testing.T) {
	var dials atomic.Int32
	s := wsServer(t, func(conn *websocket.Conn) {
		n := dials.Add(1)
		if n == 1 {
			return // drop the first connection immediately
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"x"}`)); err != nil {
			return
		}
		drain(conn)
	})

	c := newConn(ConnConfig{
		Name:      "test",
		URL:       wsURL(s),
		Reconnect: ReconnectPolicy{Policy: "fixed", Interval: 10 * time.Millisecond},
	}, nil)
	t.Cleanup(func() { c.Close() })

	received := make(chan struct{}, 1)
	c.Subscribe("x", func(string, []byte) {
		select {
		case received <- struct{}{}:
		default:
		}
	})

	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("no frame after reconnect")
	}
	if dials.Load() < 2 {
		t.Errorf("dials = %d, want at least 2", dials.Load())
	}
}

func TestConnGivesUpAfterMaxAttempts(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := wsURL(s)
	s.Close() // every dial now fails

	c := newConn(ConnConfig{
		Name: "test",
		URL:  url,
		Reconnect: ReconnectPolicy{
			Policy:      "fixed",
			Interval:    5 * time.Millisecond,
			MaxAttempts: 2,
		},
	}, nil)
	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return c.State() == StateClosed }, "connection never gave up")
	if c.LastErr() == nil {
		t.Error("LastErr is nil after failed dials")
	}
}

func TestConnSend(t *testing.T) {
	echoed := make(chan string, 1)
	s := wsServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		echoed <- string(data)
		drain(conn)
	})

	c := newConn(ConnConfig{Name: "test", URL: wsURL(s)}, nil)
	t.Cleanup(func() { c.Close() })
	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return c.State() == StateConnected }, "never connected")
	if err := c.Send(map[string]string{"op": "ping"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-echoed:
		if !strings.Contains(got, "ping") {
			t.Errorf("server received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestConnStartIsOneShot(t *testing.T) {
	var dials atomic.Int32
	s := wsServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		drain(conn)
	})

	c := newConn(ConnConfig{Name: "test", URL: wsURL(s)}, nil)
	t.Cleanup(func() { c.Close() })

	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(t.Context()); err != ErrStarted {
		t.Fatalf("second Start err = %v, want ErrStarted", err)
	}

	waitFor(t, func() bool { return c.State() == StateConnected }, "never connected")
	time.Sleep(50 * time.Millisecond)
	if n := dials.Load(); n != 1 {
		t.Errorf("server saw %d sessions, want 1", n)
	}
}

func TestConnSendAfterClose(t *testing.T) {
	c := newConn(ConnConfig{Name: "test", URL: "ws://localhost:0"}, nil)
	_ = c.Close()
	if err := c.Send("x"); err != ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := c.Start(t.Context()); err != ErrClosed {
		t.Errorf("Start err = %v, want ErrClosed", err)
	}
}

func TestDefaultChannel(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"combined stream", `{"stream":"btcusdt@aggTrade","data":{}}`, "btcusdt@aggTrade"},
		{"channel field", `{"channel":"ticker"}`, "ticker"},
		{"event field", `{"e":"aggTrade","s":"BTCUSDT"}`, "aggTrade"},
		{"stream wins over event", `{"stream":"a","e":"b"}`, "a"},
		{"no key", `{"p":"1"}`, ""},
		{"invalid json", `nope`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultChannel([]byte(tt.data)); got != tt.want {
				t.Errorf("DefaultChannel(%s) = %q, want %q", tt.data, got, tt.want)
			}
		})
	}
}
