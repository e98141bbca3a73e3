// Package history provides a bounded trailing window of closed bars for
// one (symbol, timeframe) stream. The engine recomputes indicator series
// over this window on every tick, so the window only needs to be a little
// longer than the largest warm-up period.
package history

import (
	"time"

	"signal-systemv1/internal/model"
)

// Window is a circular buffer of bars ordered by TS ascending.
// Single-goroutine usage (the engine's evaluation loop), so no locks.
type Window struct {
	buf   []model.Bar
	start int // index of the oldest bar
	count int
}

// NewWindow creates a window holding at most capacity bars. Minimum
// capacity is 2 (crossover rules need a previous bar).
func NewWindow(capacity int) *Window {
	if capacity < 2 {
		capacity = 2
	}
	return &Window{buf: make([]model.Bar, capacity)}
}

// Append adds a closed bar, evicting the oldest when full. Returns false
// and leaves the window untouched for out-of-order or duplicate bars
// (TS not strictly after the newest held bar).
func (w *Window) Append(b model.Bar) bool {
	if w.count > 0 {
		last := w.buf[(w.start+w.count-1)%len(w.buf)]
		if !b.TS.After(last.TS) {
			return false
		}
	}
	if w.count == len(w.buf) {
		w.buf[w.start] = b
		w.start = (w.start + 1) % len(w.buf)
		return true
	}
	w.buf[(w.start+w.count)%len(w.buf)] = b
	w.count++
	return true
}

// Bars returns the window contents oldest-first as a fresh slice, safe for
// the caller to hold across subsequent Appends.
func (w *Window) Bars() []model.Bar {
	out := make([]model.Bar, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Len returns the number of bars currently held.
func (w *Window) Len() int { return w.count }

// LastTS returns the timestamp of the newest bar, or the zero time when
// the window is empty.
func (w *Window) LastTS() time.Time {
	if w.count == 0 {
		return time.Time{}
	}
	return w.buf[(w.start+w.count-1)%len(w.buf)].TS
}
