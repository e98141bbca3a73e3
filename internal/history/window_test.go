package history

import (
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

func barAt(minute int) model.Bar {
	return model.Bar{
		Symbol:    "BTCUSDT",
		Timeframe: 60,
		TS:        time.Date(2026, 3, 2, 9, minute, 0, 0, time.UTC),
		Close:     float64(100 + minute),
	}
}

func TestWindow_AppendAndOrder(t *testing.T) {
	w := NewWindow(10)
	for m := 0; m < 5; m++ {
		if !w.Append(barAt(m)) {
			t.Fatalf("append of bar %d rejected", m)
		}
	}

	bars := w.Bars()
	if len(bars) != 5 {
		t.Fatalf("expected 5 bars, got %d", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].TS.After(bars[i-1].TS) {
			t.Errorf("bars out of order at index %d", i)
		}
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for m := 0; m < 7; m++ {
		w.Append(barAt(m))
	}

	bars := w.Bars()
	if len(bars) != 3 {
		t.Fatalf("expected capacity-bounded 3 bars, got %d", len(bars))
	}
	if bars[0].Close != 104 || bars[2].Close != 106 {
		t.Errorf("expected bars 4..6 retained, got closes %v %v %v",
			bars[0].Close, bars[1].Close, bars[2].Close)
	}
}

func TestWindow_RejectsDuplicatesAndOutOfOrder(t *testing.T) {
	w := NewWindow(10)
	w.Append(barAt(3))

	if w.Append(barAt(3)) {
		t.Error("duplicate timestamp accepted")
	}
	if w.Append(barAt(1)) {
		t.Error("out-of-order bar accepted")
	}
	if w.Len() != 1 {
		t.Errorf("window mutated by rejected bars: len=%d", w.Len())
	}
}

func TestWindow_LastTS(t *testing.T) {
	w := NewWindow(4)
	if !w.LastTS().IsZero() {
		t.Error("empty window should report zero LastTS")
	}
	w.Append(barAt(2))
	w.Append(barAt(5))
	want := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	if !w.LastTS().Equal(want) {
		t.Errorf("LastTS = %v, want %v", w.LastTS(), want)
	}
}

func TestWindow_BarsCopyIsStable(t *testing.T) {
	w := NewWindow(3)
	w.Append(barAt(0))
	snapshot := w.Bars()

	for m := 1; m < 5; m++ {
		w.Append(barAt(m))
	}
	if snapshot[0].Close != 100 {
		t.Error("Bars() result mutated by later appends")
	}
}
