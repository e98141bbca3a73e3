// Package engine is the top-level orchestrator: it wires the bar feed,
// the in-memory history window, indicator computation, the analyzer and
// all output paths (SQLite, Redis, notifications, the WS gateway) into
// one evaluation pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/analyzer"
	"signal-systemv1/internal/barsource"
	"signal-systemv1/internal/gateway"
	"signal-systemv1/internal/history"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"
	"signal-systemv1/pkg/exchange"
)

// signalStore combines the SQLite writer and reader into the full
// model.SignalStore surface (insert + delivery bookkeeping + queries).
type signalStore struct {
	*sqlitestore.Writer
	*sqlitestore.Reader
}

var (
	_ model.SignalStore  = signalStore{}
	_ gateway.Controller = (*Service)(nil)
)

// Service owns the engine lifecycle and the bar evaluation loop.
type Service struct {
	cfg *config.Config

	params   indicator.Params
	window   *history.Window
	analyzer *analyzer.Analyzer
	anMu     sync.Mutex
	clock    model.Clock

	sqlWriter  *sqlitestore.Writer
	sqlReader  *sqlitestore.Reader
	signals    signalStore
	publisher  *redisstore.Publisher
	dispatcher *notification.Dispatcher
	hub        *gateway.Hub
	prom       *metrics.Metrics
	health     *metrics.HealthStatus

	barCh     chan model.Bar
	persistCh chan model.Bar

	streamKey     string
	feedSimulated bool
	startedAt     time.Time

	// Evaluation context, owned by the eval loop goroutine.
	lastBar  model.Bar
	prevSnap model.Snapshot

	barsSeen       int64 // atomic
	signalsEmitted int64 // atomic

	statMu       sync.Mutex
	lastBarAt    time.Time
	lastSignalAt time.Time
	ready        bool

	gatewaySrv *http.Server
	metricsSrv *metrics.Server
}

// New creates a Service from a validated Config. It connects to Redis and
// SQLite and builds the notification dispatcher.
func New(cfg *config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config rejected: %w", err)
	}

	bar := model.Bar{Symbol: cfg.Symbol, Timeframe: cfg.Timeframe}
	svc := &Service{
		cfg:       cfg,
		params:    cfg.IndicatorParams(),
		window:    history.NewWindow(cfg.WindowSize),
		analyzer:  analyzer.New(cfg.AnalyzerConfig()),
		clock:     model.SystemClock{},
		prom:      metrics.NewMetrics(),
		health:    metrics.NewHealthStatus(),
		barCh:     make(chan model.Bar, 1024),
		persistCh: make(chan model.Bar, 5000),
		streamKey: bar.Key(),
		startedAt: time.Now(),
	}

	// ---- Open SQLite ----
	os.MkdirAll("data", 0o755)
	var err error
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("sqlite writer init: %w", err)
	}
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		svc.sqlWriter.Close()
		return nil, fmt.Errorf("sqlite reader init: %w", err)
	}
	svc.signals = signalStore{Writer: svc.sqlWriter, Reader: svc.sqlReader}

	// ---- Connect to Redis ----
	svc.publisher, err = redisstore.NewPublisher(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		svc.sqlReader.Close()
		svc.sqlWriter.Close()
		return nil, fmt.Errorf("redis init: %w", err)
	}
	svc.publisher.OnPublishError = func() { svc.prom.RedisPublishErrors.Inc() }
	svc.publisher.OnBreakerTrip = func() { svc.prom.RedisBreakerTrips.Inc() }
	svc.publisher.OnBreakerState = func(st int) { svc.prom.RedisBreakerState.Set(float64(st)) }
	svc.publisher.OnPublishDur = func(d time.Duration) { svc.prom.RedisPublishDur.Observe(d.Seconds()) }
	svc.sqlWriter.OnCommit = func(n int, d time.Duration) { svc.prom.SQLiteCommitDur.Observe(d.Seconds()) }

	// ---- Notification channels ----
	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	svc.dispatcher = notification.NewDispatcher(svc.signals, notifiers...)
	svc.dispatcher.OnFailure = func(channel string) {
		svc.prom.NotifyFailures.WithLabelValues(channel).Inc()
	}

	// ---- WS fan-out hub ----
	svc.hub = gateway.NewHub(svc.publisher.Client(), cfg.Symbol, cfg.Timeframe)
	svc.hub.OnFanoutDrop = func() { svc.prom.FanoutDrops.Inc() }
	svc.hub.OnClientChange = func(count int) { svc.prom.WSClients.Set(float64(count)) }

	svc.health.SetFeedInfo(cfg.Symbol, cfg.Timeframe, cfg.FeedMode != "ws")
	// Both stores were just pinged successfully above.
	svc.health.SetRedisConnected(true)
	svc.health.SetSQLiteOK(true)
	return svc, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	cfg := s.cfg
	log.Printf("[engine] starting signal engine for %s @ %ds (feed=%s, rule=%s)",
		cfg.Symbol, cfg.Timeframe, cfg.FeedMode, cfg.Rule)

	// ---- Restore analyzer state ----
	s.restoreState(ctx)

	// ---- Warm up the history window ----
	s.backfillWindow(ctx)

	// ---- Persistence ----
	go s.sqlWriter.Run(ctx, s.persistCh)

	// ---- Bar feed ----
	if err := s.startFeed(ctx); err != nil {
		return err
	}

	// ---- Gateway ----
	go s.hub.Run(ctx)
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, s.hub, s, s.signals, s.startedAt)
	s.gatewaySrv = &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
	go func() {
		log.Printf("[engine] gateway listening on %s", cfg.GatewayAddr)
		if err := s.gatewaySrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[engine] gateway server error: %v", err)
		}
	}()

	// ---- Metrics + health ----
	s.metricsSrv = metrics.NewServer(cfg.MetricsAddr, s.health)
	s.metricsSrv.Start()
	s.health.StartLivenessChecker(ctx, s.publisher.Client(), s.sqlWriter.DB(), 15*time.Second)

	if cfg.AutoStart {
		if err := s.StartAnalyzer(); err != nil {
			log.Printf("[engine] auto-start: %v", err)
		}
	}

	log.Printf("[engine] signal engine active: %s @ %ds", cfg.Symbol, cfg.Timeframe)
	log.Println("[engine] pipeline: [Bars] → [Indicators] → [Analyzer] → [Notify]")
	log.Printf("[engine] rule=%s cooldown=%dm guard=%ds", cfg.Rule, cfg.CooldownMinutes, cfg.GuardSeconds)
	log.Println("[engine] ✅ all systems running. Press Ctrl+C to stop.")

	s.evalLoop(ctx)

	s.shutdown()
	return nil
}

// evalLoop consumes bars and drives evaluation. Evaluation is
// single-flight: bars that queue up while one evaluation runs are all
// ingested, then judged once against the freshest snapshot. Signals are
// decided per closed bar, so collapsing a backlog loses nothing.
func (s *Service) evalLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-s.barCh:
			if !ok {
				return
			}
			ingested := s.ingest(ctx, bar)
			n := len(s.barCh)
			for i := 0; i < n; i++ {
				if s.ingest(ctx, <-s.barCh) {
					ingested = true
				}
			}
			if ingested {
				s.evaluate(ctx)
			}
		}
	}
}

// ingest appends a bar to the window, persists and publishes it.
// Returns false for duplicate or out-of-order bars.
func (s *Service) ingest(ctx context.Context, bar model.Bar) bool {
	if !s.window.Append(bar) {
		s.prom.DroppedBars.Inc()
		log.Printf("[engine] dropped stale bar ts=%s (window head %s)",
			bar.TS.Format(time.RFC3339), s.window.LastTS().Format(time.RFC3339))
		return false
	}

	s.lastBar = bar
	atomic.AddInt64(&s.barsSeen, 1)
	s.prom.BarsTotal.Inc()
	s.prom.BarLagSeconds.Set(time.Since(bar.TS).Seconds())
	s.health.SetLastBarTime(bar.TS)
	s.health.SetFeedConnected(true) // bars flowing means the feed is up

	s.statMu.Lock()
	s.lastBarAt = bar.TS
	s.statMu.Unlock()

	s.persistCh <- bar
	s.publisher.PublishBar(ctx, bar)
	return true
}

// evaluate recomputes indicators over the window and runs the analyzer
// against the newest snapshot.
func (s *Service) evaluate(ctx context.Context) {
	bars := s.window.Bars()
	if len(bars) == 0 {
		return
	}

	start := time.Now()
	snaps := indicator.ComputeIndicators(bars, s.params)
	s.prom.ComputeDur.Observe(time.Since(start).Seconds())

	cur := snaps[len(snaps)-1]
	prev := s.prevSnap
	if len(snaps) > 1 {
		prev = snaps[len(snaps)-2]
	}
	s.prevSnap = cur
	s.publisher.PublishSnapshot(ctx, cur)

	s.statMu.Lock()
	s.ready = cur.Ready()
	s.statMu.Unlock()

	s.prom.EvaluationsTotal.Inc()

	s.anMu.Lock()
	sig, outcome := s.analyzer.Evaluate(cur, prev, s.lastBar, s.clock.Now())
	state := s.analyzer.State()
	s.anMu.Unlock()

	if sig == nil {
		s.prom.SuppressionsTotal.WithLabelValues(string(outcome)).Inc()
		return
	}

	id, err := s.sqlWriter.InsertSignal(ctx, sig)
	if err != nil {
		log.Printf("[engine] signal insert failed: %v", err)
	} else {
		sig.ID = id
	}

	atomic.AddInt64(&s.signalsEmitted, 1)
	s.prom.SignalsTotal.WithLabelValues(string(sig.Type)).Inc()
	s.statMu.Lock()
	s.lastSignalAt = sig.EmittedAt
	s.statMu.Unlock()

	log.Printf("[engine] 🔔 %s signal: %s @ %.8g (%s)", sig.Type, sig.Symbol, sig.Price, sig.Reason)

	s.publisher.PublishSignal(ctx, *sig)
	go s.dispatcher.Dispatch(context.Background(), *sig)
	s.checkpoint(ctx, state)
}

// checkpoint persists analyzer state to both stores. Failures are logged,
// not fatal: a missed checkpoint only widens the restart cooldown window.
func (s *Service) checkpoint(ctx context.Context, st analyzer.State) {
	data, err := st.Marshal()
	if err != nil {
		log.Printf("[engine] state marshal failed: %v", err)
		return
	}
	if err := s.publisher.SaveState(ctx, s.streamKey, data); err != nil {
		log.Printf("[engine] redis checkpoint failed: %v", err)
	}
	if err := s.sqlWriter.SaveState(ctx, s.streamKey, data); err != nil {
		log.Printf("[engine] sqlite checkpoint failed: %v", err)
	}
}

// restoreState loads the last analyzer checkpoint, Redis first with a
// SQLite fallback. Only the cooldown survives a restart; running state
// and the startup guard are always re-armed by StartAnalyzer.
func (s *Service) restoreState(ctx context.Context) {
	data, err := s.publisher.LoadState(ctx, s.streamKey)
	if err != nil {
		log.Printf("[engine] redis checkpoint read error: %v", err)
	}
	if data == nil {
		data, err = s.sqlReader.LoadState(ctx, s.streamKey)
		if err != nil {
			log.Printf("[engine] sqlite checkpoint read error: %v", err)
		}
	}
	if len(data) == 0 {
		return
	}

	st, err := analyzer.UnmarshalState(data)
	if err != nil {
		log.Printf("[engine] checkpoint unmarshal error: %v", err)
		return
	}
	st.Running = false
	st.StartupGuardUntil = time.Time{}
	if s.cfg.ResetCooldownOnRestart {
		st.LastAlertAt = time.Time{}
	}

	s.anMu.Lock()
	s.analyzer.RestoreState(st)
	s.anMu.Unlock()

	if !st.LastAlertAt.IsZero() {
		log.Printf("[engine] restored checkpoint: last alert %s (cooldown carries over)",
			st.LastAlertAt.UTC().Format(time.RFC3339))
	}
}

// backfillWindow warms up the history window so indicators are defined as
// soon as possible: exchange REST history when credentials are configured,
// locally persisted bars otherwise.
func (s *Service) backfillWindow(ctx context.Context) {
	span := time.Duration(s.cfg.WindowSize*s.cfg.Timeframe) * time.Second
	from := time.Now().Add(-span)

	if s.cfg.HasExchangeCreds() {
		if n := s.backfillFromExchange(ctx, from); n > 0 {
			log.Printf("[engine] warmed up window with %d bars from exchange history", n)
			return
		}
	}

	bars, err := s.sqlReader.ReadBars(s.cfg.Symbol, s.cfg.Timeframe, from.Unix(), s.cfg.WindowSize)
	if err != nil {
		log.Printf("[engine] WARNING: sqlite backfill failed: %v (starting cold)", err)
		return
	}
	count := 0
	for _, b := range bars {
		if s.window.Append(b) {
			count++
		}
	}
	if count > 0 {
		log.Printf("[engine] warmed up window with %d bars from SQLite", count)
	} else {
		log.Println("[engine] no historical bars available, starting cold")
	}
}

func (s *Service) backfillFromExchange(ctx context.Context, from time.Time) int {
	client := exchange.NewClient(exchange.Config{
		APIKey:     s.cfg.ExchangeAPIKey,
		ClientCode: s.cfg.ExchangeClientCode,
		Password:   s.cfg.ExchangePassword,
		TOTPSecret: s.cfg.ExchangeTOTPSecret,
	})
	if err := client.Login(ctx); err != nil {
		log.Printf("[engine] WARNING: exchange login failed: %v", err)
		return 0
	}
	defer client.Logout(ctx)

	bars, err := client.FetchBars(ctx, s.cfg.Symbol, s.cfg.Timeframe, from, time.Now())
	if err != nil {
		log.Printf("[engine] WARNING: exchange history fetch failed: %v", err)
		return 0
	}

	count := 0
	for _, b := range bars {
		if s.window.Append(b) {
			// Backfilled bars are persisted too, so a later replay or
			// restart can serve them locally.
			s.persistCh <- b
			count++
		}
	}
	return count
}

// startFeed launches the configured bar source.
func (s *Service) startFeed(ctx context.Context) error {
	switch s.cfg.FeedMode {
	case "sim":
		s.feedSimulated = true
		src := barsource.NewSim(barsource.SimConfig{
			Symbol:    s.cfg.Symbol,
			Timeframe: s.cfg.Timeframe,
		})
		go func() {
			if err := src.Start(ctx, s.barCh); err != nil {
				log.Printf("[engine] sim feed ended with error: %v", err)
			}
		}()
		s.health.SetFeedConnected(true)

	case "replay":
		s.feedSimulated = true
		rep := barsource.NewReplayer(s.sqlReader)
		go func() {
			if err := rep.Run(ctx, s.cfg.Symbol, s.cfg.Timeframe, s.cfg.ReplayFromTS, s.cfg.ReplaySpeed, s.barCh); err != nil {
				log.Printf("[engine] replay ended with error: %v", err)
			} else {
				log.Println("[engine] replay complete")
			}
		}()
		s.health.SetFeedConnected(true)

	default:
		src, err := barsource.NewWS(barsource.WSConfig{URL: s.cfg.FeedWSURL})
		if err != nil {
			return fmt.Errorf("ws feed init: %w", err)
		}
		src.OnReconnect = func() {
			s.prom.WSReconnects.Inc()
			s.health.SetFeedConnected(false)
		}
		go func() {
			s.health.SetFeedConnected(true)
			if err := src.Start(ctx, s.barCh); err != nil {
				log.Printf("[engine] ws feed ended with error: %v", err)
			}
		}()
	}
	return nil
}

// shutdown saves a final checkpoint and closes everything.
func (s *Service) shutdown() {
	log.Println("[engine] shutdown signal received, saving final checkpoint...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s.anMu.Lock()
	state := s.analyzer.State()
	s.anMu.Unlock()
	s.checkpoint(shutCtx, state)

	if s.gatewaySrv != nil {
		s.gatewaySrv.Shutdown(shutCtx)
	}
	if s.metricsSrv != nil {
		s.metricsSrv.Stop(shutCtx)
	}
	s.publisher.Close()
	s.sqlReader.Close()
	s.sqlWriter.Close()

	log.Println("[engine] shutdown complete.")
}

// ── gateway.Controller ──

// StartAnalyzer arms the analyzer and its startup guard.
func (s *Service) StartAnalyzer() error {
	s.anMu.Lock()
	defer s.anMu.Unlock()
	if s.analyzer.Running() {
		return errors.New("analyzer already running")
	}
	s.analyzer.Start(s.clock.Now())
	s.health.SetAnalyzerOn(true)
	log.Printf("[engine] analyzer started: %s", s.analyzer.Dump())
	return nil
}

// StopAnalyzer halts signal evaluation. Bars keep flowing and persisting.
func (s *Service) StopAnalyzer() error {
	s.anMu.Lock()
	defer s.anMu.Unlock()
	if !s.analyzer.Running() {
		return errors.New("analyzer not running")
	}
	s.analyzer.Stop()
	s.health.SetAnalyzerOn(false)
	log.Printf("[engine] analyzer stopped: %s", s.analyzer.Dump())
	return nil
}

// Status reports the current engine state for /api/status.
func (s *Service) Status() gateway.Status {
	s.anMu.Lock()
	running := s.analyzer.Running()
	st := s.analyzer.State()
	s.anMu.Unlock()

	s.statMu.Lock()
	lastBarAt := s.lastBarAt
	lastSignalAt := s.lastSignalAt
	ready := s.ready
	s.statMu.Unlock()

	out := gateway.Status{
		Running:         running,
		Rule:            s.cfg.Rule,
		Symbol:          s.cfg.Symbol,
		Timeframe:       s.cfg.Timeframe,
		Simulated:       s.feedSimulated,
		BarsSeen:        atomic.LoadInt64(&s.barsSeen),
		SignalsEmitted:  atomic.LoadInt64(&s.signalsEmitted),
		IndicatorsReady: ready,
	}
	if !lastBarAt.IsZero() {
		out.LastBarAt = lastBarAt.UTC().Format(time.RFC3339)
	}
	if !lastSignalAt.IsZero() {
		out.LastSignalAt = lastSignalAt.UTC().Format(time.RFC3339)
	}
	if !st.StartupGuardUntil.IsZero() {
		out.GuardUntil = st.StartupGuardUntil.UTC().Format(time.RFC3339)
	}
	if !st.LastAlertAt.IsZero() {
		cooldownUntil := st.LastAlertAt.Add(time.Duration(s.cfg.CooldownMinutes) * time.Minute)
		if cooldownUntil.After(s.clock.Now()) {
			out.CooldownUntil = cooldownUntil.UTC().Format(time.RFC3339)
		}
	}
	return out
}
