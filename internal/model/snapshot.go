package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Snapshot holds the derived indicator values for a single bar. Snapshots
// are aligned 1:1 with the bar series that produced them; each field is
// undefined until its indicator's warm-up window is filled.
//
// Invariant: MACDHistogram = MACD - MACDSignal wherever both are defined.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe int       `json:"tf"`
	TS        time.Time `json:"ts"`

	SMA           Value `json:"sma"`
	EMA           Value `json:"ema"`
	RSI           Value `json:"rsi"`
	MACD          Value `json:"macd"`
	MACDSignal    Value `json:"macd_signal"`
	MACDHistogram Value `json:"macd_histogram"`
	VolumeSMA     Value `json:"volume_sma"`
}

// Ready reports whether the snapshot carries everything the analyzer's
// decision rules require: RSI and both MACD lines.
func (s *Snapshot) Ready() bool {
	return s.RSI.Defined && s.MACD.Defined && s.MACDSignal.Defined
}

// ChannelKey returns the Redis Pub/Sub channel for snapshots of this
// stream: "pub:snapshot:{tf}s:{symbol}".
func (s *Snapshot) ChannelKey() string {
	return "pub:snapshot:" + strconv.Itoa(s.Timeframe) + "s:" + s.Symbol
}

// JSON returns the JSON-encoded snapshot.
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
