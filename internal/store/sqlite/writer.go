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

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching for
// bars, plus synchronous inserts for signals and analyzer state (those are
// rare and must be durable before delivery starts).
type Writer struct {
	db *sql.DB

	// Optional metrics hook, called after each successful batch commit.
	OnCommit func(n int, d time.Duration)
}

var _ model.BarWriter = (*Writer)(nil)

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode
// and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol     TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			simulated  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			tf          INTEGER NOT NULL,
			type        TEXT    NOT NULL,
			price       REAL    NOT NULL,
			rsi         REAL,
			macd        REAL,
			macd_signal REAL,
			volume      REAL,
			reason      TEXT,
			simulated   INTEGER NOT NULL DEFAULT 0,
			emitted_at  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS signal_deliveries (
			signal_id  INTEGER NOT NULL,
			channel    TEXT    NOT NULL,
			delivered  INTEGER NOT NULL,
			attempted_at INTEGER NOT NULL,
			PRIMARY KEY (signal_id, channel)
		);

		CREATE TABLE IF NOT EXISTS analyzer_state (
			stream_key TEXT PRIMARY KEY,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			elapsed := time.Since(start)
			log.Printf("[sqlite] committed %d bars in %v", len(batch), elapsed)
			if w.OnCommit != nil {
				w.OnCommit(len(batch), elapsed)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of bars in a single transaction.
func (w *Writer) insertBatch(bars []model.Bar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, tf, ts, open, high, low, close, volume, simulated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(b.Symbol, b.Timeframe, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume, boolToInt(b.Simulated))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// InsertSignal stores an emitted signal synchronously and returns its row
// ID. Signals are rare (cooldown-limited), so there is no batching.
func (w *Writer) InsertSignal(ctx context.Context, sig *model.Signal) (int64, error) {
	res, err := w.db.ExecContext(ctx, `
		INSERT INTO signals (symbol, tf, type, price, rsi, macd, macd_signal, volume, reason, simulated, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.Symbol, sig.Timeframe, string(sig.Type), sig.Price, sig.RSI, sig.MACD, sig.MACDSignal,
		sig.Volume, sig.Reason, boolToInt(sig.Simulated), sig.EmittedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite insert signal: %w", err)
	}
	return res.LastInsertId()
}

// MarkDelivered records a delivery attempt outcome for a signal+channel.
// Delivery bookkeeping lives here, outside the immutable signal record.
func (w *Writer) MarkDelivered(ctx context.Context, id int64, channel string, ok bool) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signal_deliveries (signal_id, channel, delivered, attempted_at)
		VALUES (?, ?, ?, ?)
	`, id, channel, boolToInt(ok), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite mark delivered: %w", err)
	}
	return nil
}

// SaveState persists the serialized analyzer state for a stream key.
func (w *Writer) SaveState(ctx context.Context, key string, data []byte) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analyzer_state (stream_key, data, updated_at)
		VALUES (?, ?, ?)
	`, key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save state: %w", err)
	}
	return nil
}

// GetLastTimestamp returns the last stored bar timestamp for a stream.
// Returns 0 if no bars exist.
func (w *Writer) GetLastTimestamp(symbol string, tf int) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM bars WHERE symbol = ? AND tf = ?`,
		symbol, tf,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the writer.
func (w *Writer) Close() error {
	return w.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
