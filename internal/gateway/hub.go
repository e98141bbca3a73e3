package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and fans out bar, snapshot and signal
// messages received over Redis PubSub. The last payload per channel is
// cached so newly connected clients get immediate state.
type Hub struct {
	Rdb       *goredis.Client
	Symbol    string
	Timeframe int

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	// Optional counters, nil-safe
	OnFanoutDrop   func()
	OnClientChange func(count int)
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub fanning out one symbol/timeframe stream.
func NewHub(rdb *goredis.Client, symbol string, timeframe int) *Hub {
	return &Hub{
		Rdb:         rdb,
		Symbol:      symbol,
		Timeframe:   timeframe,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
}

func (h *Hub) channels() []string {
	bar := model.Bar{Symbol: h.Symbol, Timeframe: h.Timeframe}
	snap := model.Snapshot{Symbol: h.Symbol, Timeframe: h.Timeframe}
	sig := model.Signal{Symbol: h.Symbol}
	return []string{bar.ChannelKey(), snap.ChannelKey(), sig.ChannelKey()}
}

// Run subscribes to the engine's PubSub channels and routes messages to
// connected clients. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	channels := h.channels()
	pubsub := h.Rdb.Subscribe(ctx, channels...)
	defer pubsub.Close()

	log.Printf("[gateway] subscribed to %d PubSub channels", len(channels))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Broadcast sends data on a channel to all subscribed clients.
// The envelope JSON is hand-crafted to keep the fan-out path off
// json.Marshal, and carries both a global and a per-channel seq for
// client-side gap detection.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')

	h.mu.Lock()
	rb, exists := h.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(500)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()
	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wantsChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			if h.OnFanoutDrop != nil {
				h.OnFanoutDrop()
			}
		}
	}
}

// HandleWSRequest registers an upgraded WebSocket connection.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientChange != nil {
		h.OnClientChange(count)
	}

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	if h.OnClientChange != nil {
		h.OnClientChange(count)
	}
}

// GetLatestAll returns a snapshot of the last payload per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by the /api/missed REST endpoint for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// channelKind maps a PubSub channel name to its message kind
// ("bar", "snapshot", "signal"). Unknown channels return "".
func channelKind(channel string) string {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) < 2 || parts[0] != "pub" {
		return ""
	}
	switch parts[1] {
	case "bar", "snapshot", "signal":
		return parts[1]
	}
	return ""
}
