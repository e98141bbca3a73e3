package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backfill, replay and the
// REST API.
type Reader struct {
	db *sql.DB
}

var _ model.BarReader = (*Reader)(nil)

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for a symbol + timeframe after a Unix timestamp,
// ordered by timestamp ascending. limit <= 0 means no limit.
func (r *Reader) ReadBars(symbol string, tf int, afterTS int64, limit int) ([]model.Bar, error) {
	q := `
		SELECT symbol, tf, ts, open, high, low, close, volume, simulated
		FROM bars
		WHERE symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`
	args := []any{symbol, tf, afterTS}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		var simulated int
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &simulated); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		b.Simulated = simulated != 0
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// RecentSignals returns the most recent signals, newest first.
func (r *Reader) RecentSignals(ctx context.Context, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, tf, type, price, rsi, macd, macd_signal, volume, reason, simulated, emitted_at
		FROM signals
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var signals []model.Signal
	for rows.Next() {
		var s model.Signal
		var typ string
		var emittedUnix int64
		var simulated int
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Timeframe, &typ, &s.Price, &s.RSI, &s.MACD,
			&s.MACDSignal, &s.Volume, &s.Reason, &simulated, &emittedUnix); err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		s.Type = model.SignalType(typ)
		s.Simulated = simulated != 0
		s.EmittedAt = time.Unix(emittedUnix, 0).UTC()
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// LoadState retrieves the serialized analyzer state for a stream key.
// Returns (nil, nil) when no checkpoint exists.
func (r *Reader) LoadState(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM analyzer_state WHERE stream_key = ?`, key,
	).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no checkpoint
		}
		return nil, fmt.Errorf("sqlite load state: %w", err)
	}
	return []byte(data), nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
