package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"signal-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Controller is the engine surface the gateway exposes over REST.
type Controller interface {
	StartAnalyzer() error
	StopAnalyzer() error
	Status() Status
}

// Status is the /api/status response.
type Status struct {
	Running         bool   `json:"running"`
	Rule            string `json:"rule"`
	Symbol          string `json:"symbol"`
	Timeframe       int    `json:"timeframe"`
	Simulated       bool   `json:"simulated"`
	BarsSeen        int64  `json:"bars_seen"`
	SignalsEmitted  int64  `json:"signals_emitted"`
	LastBarAt       string `json:"last_bar_at,omitempty"`
	LastSignalAt    string `json:"last_signal_at,omitempty"`
	GuardUntil      string `json:"guard_until,omitempty"`
	CooldownUntil   string `json:"cooldown_until,omitempty"`
	IndicatorsReady bool   `json:"indicators_ready"`
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, ctrl Controller, signals model.SignalStore, processStart time.Time) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastTS := r.URL.Query().Get("last_ts")
		hub.HandleWSRequest(conn, lastTS)
	})

	// REST: recent emitted signals, newest first
	mux.HandleFunc("/api/signals", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 500 {
				limit = l
			}
		}

		list, err := signals.RecentSignals(r.Context(), limit)
		if err != nil {
			log.Printf("[gateway] recent signals query failed: %v", err)
			http.Error(w, `{"error":"signal query failed"}`, http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []model.Signal{}
		}
		json.NewEncoder(w).Encode(list)
	})

	// REST: analyzer status
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ctrl.Status())
	})

	// REST: start/stop the analyzer
	mux.HandleFunc("/api/engine/start", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != "POST" {
			http.Error(w, `{"error":"POST required"}`, http.StatusMethodNotAllowed)
			return
		}
		if err := ctrl.StartAnalyzer(); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusConflict)
			return
		}
		log.Println("[gateway] analyzer started via REST")
		json.NewEncoder(w).Encode(ctrl.Status())
	})

	mux.HandleFunc("/api/engine/stop", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != "POST" {
			http.Error(w, `{"error":"POST required"}`, http.StatusMethodNotAllowed)
			return
		}
		if err := ctrl.StopAnalyzer(); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusConflict)
			return
		}
		log.Println("[gateway] analyzer stopped via REST")
		json.NewEncoder(w).Encode(ctrl.Status())
	})

	// REST: last payload per channel
	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})

	// REST: gap backfill from the replay buffer
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		fromSeq, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		toSeq, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if channel == "" || fromSeq <= 0 || toSeq < fromSeq {
			http.Error(w, `{"error":"channel, from and to are required"}`, http.StatusBadRequest)
			return
		}

		envelopes := hub.GetReplayRange(channel, fromSeq, toSeq)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = e
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"channel":     channel,
			"current_seq": hub.GetChannelSeq(channel),
			"envelopes":   out,
		})
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		redisOK := true
		if err := hub.Rdb.Ping(r.Context()).Err(); err != nil {
			redisOK = false
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"redis":      redisOK,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
