package analyzer

import "time"

// Rule selects the decision rule. Exactly one rule is active per
// deployment; the two rules diverge materially and are never merged.
type Rule string

const (
	// RuleCrossover requires a strict two-bar MACD/signal-line crossover
	// with RSI inside the configured band.
	RuleCrossover Rule = "crossover"

	// RuleScoring counts independent single-bar confirmation conditions
	// (MACD posture, RSI zone, volume) against a minimum score.
	RuleScoring Rule = "scoring"
)

// DefaultGuardWindow is the quiet period after Start during which no
// signals are emitted while the first bars populate.
const DefaultGuardWindow = 2 * time.Minute

// Config is the read-only parameter bag for one analyzer instance.
// Invariants (enforced at config-acceptance time, see internal/engine):
// RSILower < RSIUpper, CooldownMinutes > 0, MinScore >= 1.
type Config struct {
	Rule Rule

	RSILower float64 // e.g. 20 or 30
	RSIUpper float64 // e.g. 80 or 70

	// MinScore is the confirmation count threshold for RuleScoring
	// (1..3; 2 is the balanced default).
	MinScore int

	CooldownMinutes int
	GuardWindow     time.Duration

	// ResetCooldownOnRestart drops the last-alert time on Stop, so a
	// restarted engine may alert immediately after its guard window.
	// Default false: the cooldown survives restarts.
	ResetCooldownOnRestart bool
}

// DefaultConfig returns the balanced production defaults.
func DefaultConfig() Config {
	return Config{
		Rule:            RuleCrossover,
		RSILower:        20,
		RSIUpper:        80,
		MinScore:        2,
		CooldownMinutes: 5,
		GuardWindow:     DefaultGuardWindow,
	}
}
