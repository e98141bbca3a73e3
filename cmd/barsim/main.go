// cmd/barsim — Demo WebSocket bar server.
// Broadcasts simulated closed OHLCV bars for running the signal engine
// in ws feed mode without real exchange credentials.
//
// Bar JSON shape is identical to model.Bar:
//
//	{"symbol":"BTCUSDT","tf":60,"ts":"...","open":1.0,"high":1.01,"low":0.99,"close":1.005,"volume":120,"simulated":true}
//
// Config (env vars):
//
//	BAR_SERVER_ADDR   — listen address          (default: ":8081")
//	BAR_SYMBOL        — symbol to simulate      (default: "BTCUSDT")
//	BAR_TF_SECONDS    — bar length in seconds   (default: "60")
//	BAR_INTERVAL_MS   — emit interval in ms     (default: "1000"; accelerated bar time)
//	BAR_START_PRICE   — starting price           (default: "1.0")
package main

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"signal-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop bar
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[barsim] upgrade error: %v", err)
			return
		}
		log.Printf("[barsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[barsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends bar JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Bar generator ───────────────────────────────────────────────────────────

// nextBar walks the price through four intra-bar steps so high/low
// straddle open/close realistically.
func nextBar(rng *rand.Rand, price *float64, symbol string, tf int, ts time.Time) model.Bar {
	const vol = 0.005

	open := *price
	high, low := open, open
	p := open
	for i := 0; i < 4; i++ {
		p *= 1 + rng.NormFloat64()*vol/2
		high = math.Max(high, p)
		low = math.Min(low, p)
	}
	*price = p

	return model.Bar{
		Symbol:    symbol,
		Timeframe: tf,
		TS:        ts.UTC().Truncate(time.Duration(tf) * time.Second),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     p,
		Volume:    math.Abs(rng.NormFloat64())*50 + 50,
		Simulated: true,
	}
}

func runGenerator(h *hub, symbol string, tf int, startPrice float64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	price := startPrice

	// Bar time advances one timeframe per emitted bar, regardless of the
	// accelerated wall-clock interval.
	barTS := time.Now().UTC().Truncate(time.Duration(tf) * time.Second)

	for range ticker.C {
		bar := nextBar(rng, &price, symbol, tf, barTS)
		barTS = barTS.Add(time.Duration(tf) * time.Second)
		h.broadcast(bar.JSON())
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[barsim] starting demo bar server...")

	addr := envOrDefault("BAR_SERVER_ADDR", ":8081")
	symbol := envOrDefault("BAR_SYMBOL", "BTCUSDT")
	tf := envIntOrDefault("BAR_TF_SECONDS", 60)
	intervalMs := envIntOrDefault("BAR_INTERVAL_MS", 1000)
	startPrice := envFloatOrDefault("BAR_START_PRICE", 1.0)

	if tf <= 0 || intervalMs <= 0 || startPrice <= 0 {
		log.Fatalf("[barsim] invalid config: tf=%d interval=%dms start=%v", tf, intervalMs, startPrice)
	}
	log.Printf("[barsim] simulating %s @ %ds, one bar every %dms", symbol, tf, intervalMs)

	h := newHub()
	go runGenerator(h, symbol, tf, startPrice, time.Duration(intervalMs)*time.Millisecond)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"barsim"}`)
	})

	log.Printf("[barsim] ✅ listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[barsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
