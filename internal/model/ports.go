package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the engine service from concrete storage
// implementations (Redis, SQLite). Each implementation satisfies one or
// more of these interfaces.

// BarWriter persists closed bars.
type BarWriter interface {
	// Run reads bars from barCh and writes them in batches.
	// Blocks until ctx is cancelled or barCh is closed.
	Run(ctx context.Context, barCh <-chan Bar)

	// Close releases underlying resources.
	Close() error
}

// BarReader reads historical bars for warm-up backfill and replay.
type BarReader interface {
	// ReadBars reads bars for a symbol + timeframe after a Unix timestamp,
	// ordered by TS ascending. limit <= 0 means no limit.
	ReadBars(symbol string, tf int, afterTS int64, limit int) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// SignalStore persists emitted signals and their delivery status.
type SignalStore interface {
	// InsertSignal stores a signal and returns its assigned ID.
	InsertSignal(ctx context.Context, sig *Signal) (int64, error)

	// MarkDelivered records a delivery attempt outcome for a signal.
	MarkDelivered(ctx context.Context, id int64, channel string, ok bool) error

	// RecentSignals returns the most recent signals, newest first.
	RecentSignals(ctx context.Context, limit int) ([]Signal, error)
}

// StateStore checkpoints analyzer state as raw JSON. Using []byte avoids a
// model→analyzer→model import cycle.
type StateStore interface {
	// SaveState persists the serialized analyzer state for a stream key.
	SaveState(ctx context.Context, key string, data []byte) error

	// LoadState retrieves the serialized analyzer state for a stream key.
	// Returns (nil, nil) when no checkpoint exists.
	LoadState(ctx context.Context, key string) ([]byte, error)
}

// Publisher fans out realtime records to subscribers (Redis Pub/Sub, WS hub).
type Publisher interface {
	PublishBar(ctx context.Context, bar Bar)
	PublishSnapshot(ctx context.Context, snap Snapshot)
	PublishSignal(ctx context.Context, sig Signal)
}

// Clock abstracts time for deterministic tests of cooldown/guard behavior.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
