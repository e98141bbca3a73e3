// Package notification delivers emitted signals to external channels
// (Telegram, webhooks). The analyzer only produces the signal record;
// formatting and delivery live here, invoked by the engine service after
// the signal is persisted.
package notification

import (
	"context"
	"fmt"
	"log"

	"signal-systemv1/internal/model"
)

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Name identifies the channel for delivery bookkeeping ("telegram",
	// "webhook", "log").
	Name() string

	// Send delivers a signal. Returns error if delivery fails.
	Send(ctx context.Context, sig model.Signal) error
}

// FormatSignal renders the standard human-readable alert text.
func FormatSignal(sig model.Signal) string {
	tag := ""
	if sig.Simulated {
		tag = " [SIMULATED]"
	}
	return fmt.Sprintf("%s %s%s @ %.6f\nRSI %.1f | MACD %.6f vs %.6f | vol %.1f\n%s",
		sig.Type, sig.Symbol, tag, sig.Price,
		sig.RSI, sig.MACD, sig.MACDSignal, sig.Volume, sig.Reason)
}

// LogNotifier writes alerts to the process log (useful for development and
// as an always-on channel of last resort).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, sig model.Signal) error {
	log.Printf("[notify] %s", FormatSignal(sig))
	return nil
}

// Dispatcher fans one signal out to all configured notifiers and records
// each delivery outcome in the signal store. A failed channel never blocks
// the others.
type Dispatcher struct {
	notifiers []Notifier
	store     model.SignalStore

	// Optional metrics hook, called once per failed delivery attempt.
	OnFailure func(channel string)
}

// NewDispatcher creates a Dispatcher. store may be nil (no bookkeeping).
func NewDispatcher(store model.SignalStore, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, store: store}
}

// Dispatch sends the signal to every notifier sequentially. Signals are
// rare (cooldown-limited), so per-channel latency is acceptable here and
// keeps delivery ordering deterministic.
func (d *Dispatcher) Dispatch(ctx context.Context, sig model.Signal) {
	for _, n := range d.notifiers {
		err := n.Send(ctx, sig)
		if err != nil {
			log.Printf("[notify] %s delivery failed for signal %d: %v", n.Name(), sig.ID, err)
			if d.OnFailure != nil {
				d.OnFailure(n.Name())
			}
		}
		if d.store != nil && sig.ID != 0 {
			if merr := d.store.MarkDelivered(ctx, sig.ID, n.Name(), err == nil); merr != nil {
				log.Printf("[notify] delivery bookkeeping failed: %v", merr)
			}
		}
	}
}
