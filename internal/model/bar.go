package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Bar represents one closed OHLCV observation for a symbol and timeframe.
// Prices are float64: crypto pairs have sub-cent tick sizes with no fixed
// decimal scale. Bars are immutable once emitted by a source and ordered
// by TS ascending within a (symbol, timeframe) stream.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe int       `json:"tf"` // timeframe in seconds
	TS        time.Time `json:"ts"` // bucket start time (UTC, TF-aligned)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	// Simulated marks bars produced by the synthetic generator or replay.
	// The flag is carried through to any signal derived from this bar so
	// downstream consumers always know the data provenance.
	Simulated bool `json:"simulated,omitempty"`
}

// Key returns a unique key for this bar's stream: "symbol:{tf}s".
func (b *Bar) Key() string {
	return b.Symbol + ":" + strconv.Itoa(b.Timeframe) + "s"
}

// ChannelKey returns the Redis Pub/Sub channel for bars of this stream:
// "pub:bar:{tf}s:{symbol}".
func (b *Bar) ChannelKey() string {
	return "pub:bar:" + strconv.Itoa(b.Timeframe) + "s:" + b.Symbol
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	buf, _ := json.Marshal(b)
	return buf
}
