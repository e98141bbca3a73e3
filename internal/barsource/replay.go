package barsource

import (
	"context"
	"log"
	"time"

	"signal-systemv1/internal/model"
)

// Replayer reads historical bars from a BarReader (SQLite) and replays
// them at a configurable speed multiplier. Replayed bars are marked
// Simulated — a signal derived from historical data must never look live.
type Replayer struct {
	reader model.BarReader
}

// NewReplayer creates a Replayer backed by a bar reader.
func NewReplayer(reader model.BarReader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all bars for the given symbol + timeframe, emitting them
// into barCh. speed controls the playback rate: 1.0 = real-time,
// 10.0 = 10x, 0 = as fast as possible. fromTS filters bars to those after
// this Unix timestamp (0 = all).
func (r *Replayer) Run(ctx context.Context, symbol string, tf int, fromTS int64, speed float64, barCh chan<- model.Bar) error {
	bars, err := r.reader.ReadBars(symbol, tf, fromTS, 0)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		log.Println("[replay] no bars found in SQLite")
		return nil
	}

	log.Printf("[replay] loaded %d bars for %s:%ds, speed=%.1fx", len(bars), symbol, tf, speed)

	var prevTS time.Time
	emitted := 0

	for _, b := range bars {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d bars", emitted)
			return ctx.Err()
		default:
		}

		// Simulate time gaps between bars.
		if speed > 0 && !prevTS.IsZero() {
			gap := b.TS.Sub(prevTS)
			if gap > 0 {
				scaledGap := time.Duration(float64(gap) / speed)
				// Cap max sleep to avoid very long waits
				if scaledGap > 5*time.Second {
					scaledGap = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = b.TS

		b.Simulated = true
		barCh <- b
		emitted++
	}

	log.Printf("[replay] completed: %d bars replayed", emitted)
	return nil
}
