package model

import (
	"encoding/json"
	"time"
)

// SignalType classifies an emitted signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// Signal is one emitted trade alert. It is created exactly once per
// qualifying evaluation and immutable thereafter; delivery bookkeeping
// lives in the store rows, never on the record itself.
type Signal struct {
	ID        int64      `json:"id,omitempty"` // assigned by the store on insert
	Symbol    string     `json:"symbol"`
	Timeframe int        `json:"tf"`
	Type      SignalType `json:"type"`
	Price     float64    `json:"price"`

	// Indicator context captured at emission time.
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	Volume     float64 `json:"volume"`

	Reason    string    `json:"reason"`
	Simulated bool      `json:"simulated,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// ChannelKey returns the Redis Pub/Sub channel for signals of this symbol:
// "pub:signal:{symbol}".
func (s *Signal) ChannelKey() string {
	return "pub:signal:" + s.Symbol
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
