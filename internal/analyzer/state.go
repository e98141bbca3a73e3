package analyzer

import (
	"encoding/json"
	"time"
)

// State is the mutable per-stream engine state. It is mutated only by the
// analyzer's own lifecycle methods and by Evaluate; zero time values mean
// "not set".
type State struct {
	Running           bool      `json:"running"`
	LastAlertAt       time.Time `json:"last_alert_at"`
	StartupGuardUntil time.Time `json:"startup_guard_until"`
}

// Marshal serializes the state for checkpoint persistence. Only the
// last-alert time matters across restarts (the guard is re-armed by Start
// and Running is a live property), but the full state is stored for
// debuggability.
func (s State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState restores a State from a checkpoint payload.
func UnmarshalState(data []byte) (State, error) {
	var s State
	err := json.Unmarshal(data, &s)
	return s, err
}
