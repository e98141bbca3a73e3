package gateway

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"
)

// buildEnvelope reproduces the hand-crafted JSON logic from Hub.Broadcast
// so we can test envelope format independently of Redis/WS dependencies.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
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
	return buf
}

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

// TestBroadcastEnvelopeFormat verifies the hand-crafted JSON envelope
// matches the expected structure.
func TestBroadcastEnvelopeFormat(t *testing.T) {
	channel := "pub:bar:60s:BTCUSDT"
	data := []byte(`{"symbol":"BTCUSDT","tf":60,"ts":1760000000,"open":100,"high":105,"low":99,"close":103,"volume":500}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := buildEnvelope(channel, data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}

	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
	if env.Seq != 42 {
		t.Errorf("seq: got %d, want 42", env.Seq)
	}
	if env.ChannelSeq != 7 {
		t.Errorf("channel_seq: got %d, want 7", env.ChannelSeq)
	}

	// Data should be parseable JSON
	var bar map[string]interface{}
	if err := json.Unmarshal(env.Data, &bar); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if _, ok := bar["close"]; !ok {
		t.Error("data missing 'close' field")
	}

	// TS should be valid RFC3339Nano
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Errorf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
}

// TestBroadcastEnvelopeSignal tests that the envelope wraps payloads with
// null fields without mangling them (snapshots carry nulls during warm-up).
func TestBroadcastEnvelopeSignal(t *testing.T) {
	channel := "pub:signal:BTCUSDT"
	data := []byte(`{"type":"BUY","price":103.5,"rsi":28.4,"macd_signal":null,"simulated":true}`)

	buf := buildEnvelope(channel, data, time.Now().UTC(), 1, 1)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}

	var sig struct {
		Type       string   `json:"type"`
		Price      float64  `json:"price"`
		MACDSignal *float64 `json:"macd_signal"`
		Simulated  bool     `json:"simulated"`
	}
	if err := json.Unmarshal(env.Data, &sig); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if sig.Type != "BUY" {
		t.Errorf("type: got %q, want BUY", sig.Type)
	}
	if sig.MACDSignal != nil {
		t.Error("expected null macd_signal to decode as nil")
	}
	if !sig.Simulated {
		t.Error("expected simulated=true")
	}
}

// TestChannelKind tests the channel classifier with various formats.
func TestChannelKind(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{"pub:bar:60s:BTCUSDT", "bar"},
		{"pub:snapshot:60s:BTCUSDT", "snapshot"},
		{"pub:signal:BTCUSDT", "signal"},
		{"pub:config:whatever", ""},
		{"garbage", ""},
		{"bar:60s:BTCUSDT", ""},
	}

	for _, tt := range tests {
		if got := channelKind(tt.channel); got != tt.want {
			t.Errorf("channelKind(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

// TestEnvelopeSeqMonotonic verifies sequence numbers are reflected correctly.
func TestEnvelopeSeqMonotonic(t *testing.T) {
	channel := "pub:bar:60s:BTCUSDT"
	data := []byte(`{}`)
	now := time.Now().UTC()

	for i := int64(1); i <= 100; i++ {
		buf := buildEnvelope(channel, data, now, i, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("seq=%d: invalid JSON: %v", i, err)
		}
		if env.Seq != i {
			t.Errorf("seq: got %d, want %d", env.Seq, i)
		}
	}
}

// TestHub_PerChannelSeq verifies per-channel sequences track independently
// through the real Broadcast path.
func TestHub_PerChannelSeq(t *testing.T) {
	h := NewHub(nil, "BTCUSDT", 60)

	barCh := "pub:bar:60s:BTCUSDT"
	sigCh := "pub:signal:BTCUSDT"

	for i := 0; i < 3; i++ {
		h.Broadcast(barCh, []byte(`{}`))
	}
	for i := 0; i < 2; i++ {
		h.Broadcast(sigCh, []byte(`{}`))
	}

	if got := h.GetChannelSeq(barCh); got != 3 {
		t.Errorf("bar channel seq: got %d, want 3", got)
	}
	if got := h.GetChannelSeq(sigCh); got != 2 {
		t.Errorf("signal channel seq: got %d, want 2", got)
	}

	// Replay buffer should hold every envelope per channel
	if got := len(h.GetReplayRange(barCh, 1, 10)); got != 3 {
		t.Errorf("bar replay range: got %d envelopes, want 3", got)
	}
	if got := len(h.GetReplayRange(sigCh, 1, 10)); got != 2 {
		t.Errorf("signal replay range: got %d envelopes, want 2", got)
	}

	// Latest cache should hold both channels
	latest := h.GetLatestAll()
	if _, ok := latest[barCh]; !ok {
		t.Error("latest missing bar channel")
	}
	if _, ok := latest[sigCh]; !ok {
		t.Error("latest missing signal channel")
	}
}
