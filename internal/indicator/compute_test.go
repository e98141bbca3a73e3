package indicator

import (
	"math/rand"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

func makeBars(n int, seed int64) []model.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]model.Bar, n)
	price := 1.0
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := range bars {
		price *= 1 + (rng.Float64()-0.5)*0.01
		bars[i] = model.Bar{
			Symbol:    "BTCUSDT",
			Timeframe: 60,
			TS:        ts.Add(time.Duration(i) * time.Minute),
			Open:      price * 0.999,
			High:      price * 1.001,
			Low:       price * 0.998,
			Close:     price,
			Volume:    100 + rng.Float64()*50,
		}
	}
	return bars
}

func TestComputeIndicators_Alignment(t *testing.T) {
	bars := makeBars(80, 1)
	snaps := ComputeIndicators(bars, DefaultParams())

	if len(snaps) != len(bars) {
		t.Fatalf("expected %d snapshots, got %d", len(bars), len(snaps))
	}
	for i := range snaps {
		if !snaps[i].TS.Equal(bars[i].TS) {
			t.Errorf("snapshot %d TS mismatch: %v vs bar %v", i, snaps[i].TS, bars[i].TS)
		}
		if snaps[i].Symbol != "BTCUSDT" || snaps[i].Timeframe != 60 {
			t.Errorf("snapshot %d lost stream identity: %+v", i, snaps[i])
		}
	}
}

func TestComputeIndicators_ShortSeries_NoError(t *testing.T) {
	// Shorter than every warm-up window: all values undefined, no panic.
	bars := makeBars(5, 2)
	snaps := ComputeIndicators(bars, DefaultParams())

	for i, s := range snaps {
		if s.SMA.Defined || s.EMA.Defined || s.RSI.Defined ||
			s.MACD.Defined || s.MACDSignal.Defined || s.MACDHistogram.Defined ||
			s.VolumeSMA.Defined {
			t.Errorf("snapshot %d: expected all-undefined on short series", i)
		}
		if s.Ready() {
			t.Errorf("snapshot %d: Ready() true on short series", i)
		}
	}
}

func TestComputeIndicators_Empty(t *testing.T) {
	snaps := ComputeIndicators(nil, DefaultParams())
	if len(snaps) != 0 {
		t.Fatalf("expected empty output for empty input, got %d", len(snaps))
	}
}

func TestComputeIndicators_ReadyAfterWarmup(t *testing.T) {
	p := DefaultParams()
	bars := makeBars(120, 3)
	snaps := ComputeIndicators(bars, p)

	// The analyzer needs RSI + both MACD lines; the last to warm up is the
	// MACD signal line.
	boundary := p.MACDSlow - 1 + p.MACDSignal - 1
	for i, s := range snaps {
		if i < boundary && s.Ready() {
			t.Errorf("snapshot %d ready before warm-up boundary %d", i, boundary)
		}
		if i >= boundary && !s.Ready() {
			t.Errorf("snapshot %d not ready after warm-up boundary %d", i, boundary)
		}
	}
}

func TestComputeIndicators_Deterministic(t *testing.T) {
	bars := makeBars(90, 4)
	a := ComputeIndicators(bars, DefaultParams())
	b := ComputeIndicators(bars, DefaultParams())
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("recompute diverged at index %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
