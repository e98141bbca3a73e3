// Package analyzer implements the signal decision engine: it consumes
// per-bar indicator snapshots and decides, bar by bar, whether a tradeable
// BUY/SELL condition occurred, subject to a startup quiet period and an
// alert cooldown.
//
// The analyzer owns no I/O. Its only side effect is mutating its own State
// (last-alert time, startup-guard deadline); persisting bars, storing the
// emitted signal and delivering notifications are the caller's job. One
// Analyzer instance serves one (symbol, timeframe) stream and must not be
// evaluated concurrently; the engine service serializes ticks.
package analyzer

import (
	"fmt"
	"time"

	"signal-systemv1/internal/model"
)

// Outcome classifies what one Evaluate call did, for logging and metrics.
type Outcome string

const (
	OutcomeEmitted  Outcome = "emitted"
	OutcomeStopped  Outcome = "stopped"  // engine not running
	OutcomeGuard    Outcome = "guard"    // startup guard active
	OutcomeCooldown Outcome = "cooldown" // alert cooldown active
	OutcomeWarmup   Outcome = "warmup"   // indicators not yet defined
	OutcomeNoSetup  Outcome = "no_setup" // rule found nothing
)

// Analyzer evaluates indicator snapshots against one decision rule.
type Analyzer struct {
	cfg   Config
	state State
}

// New creates an Analyzer for a validated Config. Config validation happens
// at acceptance time (internal/engine); the analyzer assumes it holds.
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Start transitions Stopped → Running and arms the startup guard: no
// signals are emitted until now + guard window, so the first bars can
// populate before crossovers are judged.
func (a *Analyzer) Start(now time.Time) {
	a.state.Running = true
	a.state.StartupGuardUntil = now.Add(a.cfg.GuardWindow)
}

// Stop transitions Running → Stopped and clears the startup guard. The
// last-alert time is retained so the cooldown survives a stop/start cycle,
// unless ResetCooldownOnRestart is set.
func (a *Analyzer) Stop() {
	a.state.Running = false
	a.state.StartupGuardUntil = time.Time{}
	if a.cfg.ResetCooldownOnRestart {
		a.state.LastAlertAt = time.Time{}
	}
}

// Running reports whether the analyzer is accepting evaluations.
func (a *Analyzer) Running() bool { return a.state.Running }

// State returns a copy of the current analyzer state.
func (a *Analyzer) State() State { return a.state }

// RestoreState replaces the analyzer state from a checkpoint. Called once
// at startup before the first Evaluate.
func (a *Analyzer) RestoreState(s State) { a.state = s }

// Evaluate inspects the current (and previous) snapshot and returns at most
// one signal. prev may be the zero Snapshot when no prior bar exists; the
// crossover rule treats that as "no crossover". bar is the bar that
// produced cur and supplies price, volume and provenance for the emitted
// record.
func (a *Analyzer) Evaluate(cur, prev model.Snapshot, bar model.Bar, now time.Time) (*model.Signal, Outcome) {
	if !a.state.Running {
		return nil, OutcomeStopped
	}

	if !a.state.StartupGuardUntil.IsZero() {
		if now.Before(a.state.StartupGuardUntil) {
			return nil, OutcomeGuard
		}
		a.state.StartupGuardUntil = time.Time{}
	}

	cooldown := time.Duration(a.cfg.CooldownMinutes) * time.Minute
	if !a.state.LastAlertAt.IsZero() && now.Sub(a.state.LastAlertAt) < cooldown {
		return nil, OutcomeCooldown
	}

	// Insufficient history is a wait state, not an error.
	if !cur.Ready() {
		return nil, OutcomeWarmup
	}

	var verdict ruleVerdict
	switch a.cfg.Rule {
	case RuleScoring:
		verdict = a.scoringRule(cur, bar)
	default:
		verdict = a.crossoverRule(cur, prev)
	}
	if verdict.signalType == "" {
		return nil, OutcomeNoSetup
	}

	sig := &model.Signal{
		Symbol:     bar.Symbol,
		Timeframe:  bar.Timeframe,
		Type:       verdict.signalType,
		Price:      bar.Close,
		RSI:        cur.RSI.V,
		MACD:       cur.MACD.V,
		MACDSignal: cur.MACDSignal.V,
		Volume:     bar.Volume,
		Reason:     verdict.reason,
		Simulated:  bar.Simulated,
		EmittedAt:  now,
	}
	a.onSignalEmitted(now)
	return sig, OutcomeEmitted
}

// onSignalEmitted arms the cooldown.
func (a *Analyzer) onSignalEmitted(now time.Time) {
	a.state.LastAlertAt = now
}

// Dump returns a one-line state summary for logs.
func (a *Analyzer) Dump() string {
	last := "never"
	if !a.state.LastAlertAt.IsZero() {
		last = a.state.LastAlertAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("running=%v rule=%s lastAlert=%s guardUntil=%s",
		a.state.Running, a.cfg.Rule, last, a.state.StartupGuardUntil.UTC().Format(time.RFC3339))
}
