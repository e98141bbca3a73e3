// Package barsource supplies ordered OHLCV bars to the engine service.
//
// Three sources exist: a live WebSocket feed, a synthetic random-walk
// generator and a SQLite-backed replayer. Which one runs is an explicit
// configuration choice — synthetic data is never substituted silently for
// a failed live feed, and every synthetic/replayed bar is marked
// Simulated so signals derived from it carry their provenance.
package barsource

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"signal-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

// WSConfig holds configuration for the live WebSocket bar feed.
type WSConfig struct {
	// URL of the bar WebSocket endpoint, e.g. "ws://localhost:9001/ws".
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *WSConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// WSSource connects to a JSON bar WebSocket feed and pushes model.Bar
// values into barCh. The wire format is identical to model.Bar.
type WSSource struct {
	cfg WSConfig

	// Optional hook — called each time a reconnection happens.
	OnReconnect func()
}

// NewWS creates a WSSource. Returns an error if the URL is unparseable.
func NewWS(cfg WSConfig) (*WSSource, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &WSSource{cfg: cfg}, nil
}

// Start connects and streams bars into barCh. Blocks until ctx is
// cancelled. Reconnects automatically with exponential backoff; retry is
// this source's concern, the engine never sees the gaps as errors.
func (s *WSSource) Start(ctx context.Context, barCh chan<- model.Bar) error {
	delay := s.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := s.runOnce(ctx, barCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[barsource] disconnected (%v), reconnecting in %s...", err, delay)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel.
func (s *WSSource) runOnce(ctx context.Context, barCh chan<- model.Bar) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[barsource] connected to %s", s.cfg.URL)

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var bar model.Bar
		if err := json.Unmarshal(raw, &bar); err != nil {
			log.Printf("[barsource] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if bar.Symbol == "" || bar.TS.IsZero() {
			log.Println("[barsource] skipping bar with empty symbol or timestamp")
			continue
		}

		select {
		case barCh <- bar:
		default:
			log.Println("[barsource] barCh full, dropping bar")
		}
	}
}
