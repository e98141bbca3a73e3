package analyzer

import (
	"strings"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testBar(close, volume float64) model.Bar {
	return model.Bar{
		Symbol:    "BTCUSDT",
		Timeframe: 60,
		TS:        t0,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    volume,
	}
}

// snap builds a ready snapshot with the given RSI and MACD lines.
func snap(rsi, macd, macdSignal float64) model.Snapshot {
	return model.Snapshot{
		Symbol:     "BTCUSDT",
		Timeframe:  60,
		TS:         t0,
		RSI:        model.Val(rsi),
		MACD:       model.Val(macd),
		MACDSignal: model.Val(macdSignal),
	}
}

// bullishCross is a clearly-qualifying upward crossover pair:
// prev MACD below signal, current MACD above, RSI 45 inside [20,80].
func bullishCross() (cur, prev model.Snapshot) {
	prev = snap(44, -0.002, -0.001)
	cur = snap(45, 0.001, 0.0005)
	return cur, prev
}

// started returns a running analyzer and a timestamp past its startup guard.
func started(cfg Config) (*Analyzer, time.Time) {
	a := New(cfg)
	a.Start(t0)
	return a, t0.Add(cfg.GuardWindow + time.Second)
}

// ────────────────────────────────────────────────────────────
// Lifecycle: startup guard
// ────────────────────────────────────────────────────────────

func TestStartupGuard_SuppressesQualifyingCrossover(t *testing.T) {
	a := New(DefaultConfig())
	a.Start(t0)

	cur, prev := bullishCross()
	for _, dt := range []time.Duration{0, time.Second, time.Minute, 2*time.Minute - time.Second} {
		sig, out := a.Evaluate(cur, prev, testBar(1.001, 100), t0.Add(dt))
		if sig != nil || out != OutcomeGuard {
			t.Errorf("at +%v: expected guard suppression, got sig=%v outcome=%s", dt, sig, out)
		}
	}

	// First evaluation past the guard clears it and may emit.
	sig, out := a.Evaluate(cur, prev, testBar(1.001, 100), t0.Add(DefaultGuardWindow))
	if sig == nil || out != OutcomeEmitted {
		t.Fatalf("past guard: expected emission, got sig=%v outcome=%s", sig, out)
	}
}

func TestEvaluate_WhenStopped_ReturnsNone(t *testing.T) {
	a := New(DefaultConfig())
	cur, prev := bullishCross()
	if sig, out := a.Evaluate(cur, prev, testBar(1.001, 100), t0); sig != nil || out != OutcomeStopped {
		t.Fatalf("stopped analyzer must not emit: sig=%v outcome=%s", sig, out)
	}
}

// ────────────────────────────────────────────────────────────
// Cooldown
// ────────────────────────────────────────────────────────────

func TestCooldown_Enforced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownMinutes = 5
	a, now := started(cfg)

	cur, prev := bullishCross()
	sig, _ := a.Evaluate(cur, prev, testBar(1.001, 100), now)
	if sig == nil {
		t.Fatal("expected initial signal")
	}

	// Any call inside (emit, emit+5min) is suppressed regardless of data.
	for _, dt := range []time.Duration{time.Second, time.Minute, 5*time.Minute - time.Second} {
		s, out := a.Evaluate(cur, prev, testBar(1.001, 100), now.Add(dt))
		if s != nil || out != OutcomeCooldown {
			t.Errorf("at +%v: expected cooldown suppression, got sig=%v outcome=%s", dt, s, out)
		}
	}

	// One second past the cooldown a qualifying setup emits again.
	s, out := a.Evaluate(cur, prev, testBar(1.001, 100), now.Add(5*time.Minute+time.Second))
	if s == nil || out != OutcomeEmitted {
		t.Fatalf("past cooldown: expected emission, got sig=%v outcome=%s", s, out)
	}
}

func TestCooldown_SurvivesStopStart(t *testing.T) {
	cfg := DefaultConfig()
	a, now := started(cfg)

	cur, prev := bullishCross()
	if sig, _ := a.Evaluate(cur, prev, testBar(1.001, 100), now); sig == nil {
		t.Fatal("expected initial signal")
	}

	a.Stop()
	a.Start(now.Add(time.Second))

	// Past the new guard but still inside the original cooldown.
	at := now.Add(time.Second + cfg.GuardWindow + time.Second)
	if sig, out := a.Evaluate(cur, prev, testBar(1.001, 100), at); sig != nil || out != OutcomeCooldown {
		t.Fatalf("cooldown must survive restart: sig=%v outcome=%s", sig, out)
	}
}

func TestCooldown_ResetOnRestartToggle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResetCooldownOnRestart = true
	a, now := started(cfg)

	cur, prev := bullishCross()
	if sig, _ := a.Evaluate(cur, prev, testBar(1.001, 100), now); sig == nil {
		t.Fatal("expected initial signal")
	}

	a.Stop()
	a.Start(now.Add(time.Second))

	at := now.Add(time.Second + cfg.GuardWindow + time.Second)
	if sig, out := a.Evaluate(cur, prev, testBar(1.001, 100), at); sig == nil || out != OutcomeEmitted {
		t.Fatalf("reset toggle must drop the cooldown: sig=%v outcome=%s", sig, out)
	}
}

// ────────────────────────────────────────────────────────────
// Crossover rule
// ────────────────────────────────────────────────────────────

func TestCrossover_BuyScenario(t *testing.T) {
	a, now := started(DefaultConfig())

	cur, prev := bullishCross()
	sig, _ := a.Evaluate(cur, prev, testBar(1.001, 100), now)
	if sig == nil {
		t.Fatal("expected BUY signal")
	}
	if sig.Type != model.SignalBuy {
		t.Errorf("expected BUY, got %s", sig.Type)
	}
	if sig.Price != 1.001 {
		t.Errorf("signal price = %v, want current close 1.001", sig.Price)
	}
	if sig.RSI != 45 || sig.MACD != 0.001 || sig.MACDSignal != 0.0005 {
		t.Errorf("signal indicator context mismatch: %+v", sig)
	}
	if !sig.EmittedAt.Equal(now) {
		t.Errorf("EmittedAt = %v, want %v", sig.EmittedAt, now)
	}
}

func TestCrossover_SellScenario(t *testing.T) {
	a, now := started(DefaultConfig())

	prev := snap(55, 0.002, 0.001)
	cur := snap(54, -0.001, -0.0005)
	sig, _ := a.Evaluate(cur, prev, testBar(0.999, 100), now)
	if sig == nil || sig.Type != model.SignalSell {
		t.Fatalf("expected SELL on downward crossover, got %v", sig)
	}
}

func TestCrossover_RSIOutOfBand_NoSignal(t *testing.T) {
	a, now := started(DefaultConfig())

	// Identical crossover, RSI 85 outside (20,80).
	prev := snap(84, -0.002, -0.001)
	cur := snap(85, 0.001, 0.0005)
	sig, out := a.Evaluate(cur, prev, testBar(1.001, 100), now)
	if sig != nil || out != OutcomeNoSetup {
		t.Fatalf("RSI out of band must suppress: sig=%v outcome=%s", sig, out)
	}
}

func TestCrossover_NoCross_NoSignal(t *testing.T) {
	a, now := started(DefaultConfig())

	// MACD above signal on both bars: positioned bullish but no crossover.
	prev := snap(45, 0.002, 0.001)
	cur := snap(46, 0.003, 0.001)
	if sig, out := a.Evaluate(cur, prev, testBar(1.001, 100), now); sig != nil || out != OutcomeNoSetup {
		t.Fatalf("no crossover must not emit: sig=%v outcome=%s", sig, out)
	}
}

func TestCrossover_PreviousUndefined_NoSignal(t *testing.T) {
	a, now := started(DefaultConfig())

	cur, _ := bullishCross()
	if sig, out := a.Evaluate(cur, model.Snapshot{}, testBar(1.001, 100), now); sig != nil || out != OutcomeNoSetup {
		t.Fatalf("zero previous snapshot must not emit: sig=%v outcome=%s", sig, out)
	}
}

func TestEvaluate_WarmupSnapshot_ReturnsNone(t *testing.T) {
	a, now := started(DefaultConfig())

	// Current snapshot still warming up: RSI defined, MACD not.
	cur := model.Snapshot{RSI: model.Val(45)}
	if sig, out := a.Evaluate(cur, model.Snapshot{}, testBar(1.0, 100), now); sig != nil || out != OutcomeWarmup {
		t.Fatalf("warm-up must be a wait state: sig=%v outcome=%s", sig, out)
	}
}

// ────────────────────────────────────────────────────────────
// Scoring rule
// ────────────────────────────────────────────────────────────

func scoringConfig() Config {
	cfg := DefaultConfig()
	cfg.Rule = RuleScoring
	cfg.RSILower = 30
	cfg.RSIUpper = 70
	cfg.MinScore = 2
	return cfg
}

func TestScoring_BuyOnOversoldWithVolume(t *testing.T) {
	a, now := started(scoringConfig())

	// RSI 32 in the oversold zone [30,40], MACD above its signal line, and
	// volume 200 above its SMA 120: three buy confirmations vs one sell.
	cur := snap(32, 0.002, 0.001)
	cur.VolumeSMA = model.Val(120)
	sig, _ := a.Evaluate(cur, model.Snapshot{}, testBar(1.0, 200), now)
	if sig == nil || sig.Type != model.SignalBuy {
		t.Fatalf("expected scoring BUY, got %v", sig)
	}
	if !strings.Contains(sig.Reason, "oversold") {
		t.Errorf("reason should name the confirmations, got %q", sig.Reason)
	}
}

func TestScoring_SellOnOverboughtWithVolume(t *testing.T) {
	a, now := started(scoringConfig())

	// RSI 68 in the overbought zone [60,70], MACD below its signal line.
	cur := snap(68, -0.002, -0.001)
	cur.VolumeSMA = model.Val(120)
	sig, _ := a.Evaluate(cur, model.Snapshot{}, testBar(1.0, 200), now)
	if sig == nil || sig.Type != model.SignalSell {
		t.Fatalf("expected scoring SELL, got %v", sig)
	}
}

func TestScoring_SingleConfirmation_BelowThreshold(t *testing.T) {
	a, now := started(scoringConfig())

	// Only the RSI zone confirms: volume below average, MACD bearish.
	cur := snap(32, -0.002, -0.001)
	cur.VolumeSMA = model.Val(300)
	if sig, out := a.Evaluate(cur, model.Snapshot{}, testBar(1.0, 100), now); sig != nil || out != OutcomeNoSetup {
		t.Fatalf("score 1 < minScore 2 must not emit: sig=%v outcome=%s", sig, out)
	}
}

func TestScoring_DeepNegativeMACD_NotBullish(t *testing.T) {
	a, now := started(scoringConfig())

	// MACD is above its signal line but 5% of price below zero, far past
	// the deep-zone cutoff. The cross must not count as bullish, so the
	// oversold RSI alone stays below the score threshold.
	cur := snap(32, -5, -10)
	cur.VolumeSMA = model.Val(300)
	if sig, out := a.Evaluate(cur, model.Snapshot{}, testBar(100, 100), now); sig != nil || out != OutcomeNoSetup {
		t.Fatalf("deep-negative MACD must not confirm a buy: sig=%v outcome=%s", sig, out)
	}
}

func TestScoring_Tie_NoSignal(t *testing.T) {
	cfg := scoringConfig()
	cfg.RSILower = 45 // zones [45,55] and [45,55] overlap at RSI 50
	cfg.RSIUpper = 55
	a, now := started(cfg)

	// RSI 50 confirms both zones, volume confirms both sides, MACD exactly
	// on its signal line confirms neither: 2 vs 2, contradictory, skip.
	cur := snap(50, 0.001, 0.001)
	cur.VolumeSMA = model.Val(100)
	sig, out := a.Evaluate(cur, model.Snapshot{}, testBar(1.0, 200), now)
	if sig != nil || out != OutcomeNoSetup {
		t.Fatalf("tie must emit nothing: sig=%v outcome=%s", sig, out)
	}
}

// ────────────────────────────────────────────────────────────
// State checkpointing
// ────────────────────────────────────────────────────────────

func TestState_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	a, now := started(cfg)
	cur, prev := bullishCross()
	if sig, _ := a.Evaluate(cur, prev, testBar(1.001, 100), now); sig == nil {
		t.Fatal("expected signal")
	}

	data, err := a.State().Marshal()
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	restored, err := UnmarshalState(data)
	if err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}

	b := New(cfg)
	b.RestoreState(restored)
	b.Start(now.Add(time.Second))

	// The restored analyzer is still inside the original cooldown.
	at := now.Add(time.Second + cfg.GuardWindow + time.Second)
	if sig, out := b.Evaluate(cur, prev, testBar(1.001, 100), at); sig != nil || out != OutcomeCooldown {
		t.Fatalf("restored state must keep cooldown: sig=%v outcome=%s", sig, out)
	}
}
