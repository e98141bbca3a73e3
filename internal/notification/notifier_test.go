package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

type fakeNotifier struct {
	name string
	err  error
	sent int
}

func (f *fakeNotifier) Name() string { return f.name }
func (f *fakeNotifier) Send(ctx context.Context, sig model.Signal) error {
	f.sent++
	return f.err
}

type fakeStore struct {
	delivered map[string]bool
}

func (s *fakeStore) InsertSignal(ctx context.Context, sig *model.Signal) (int64, error) {
	return 1, nil
}
func (s *fakeStore) MarkDelivered(ctx context.Context, id int64, channel string, ok bool) error {
	s.delivered[channel] = ok
	return nil
}
func (s *fakeStore) RecentSignals(ctx context.Context, limit int) ([]model.Signal, error) {
	return nil, nil
}

func testSignal() model.Signal {
	return model.Signal{
		ID:         7,
		Symbol:     "BTCUSDT",
		Timeframe:  60,
		Type:       model.SignalBuy,
		Price:      1.001,
		RSI:        45,
		MACD:       0.001,
		MACDSignal: 0.0005,
		Volume:     120,
		Reason:     "MACD crossed above signal",
		EmittedAt:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_AllChannelsAttempted(t *testing.T) {
	store := &fakeStore{delivered: map[string]bool{}}
	good := &fakeNotifier{name: "telegram"}
	bad := &fakeNotifier{name: "webhook", err: errors.New("boom")}
	after := &fakeNotifier{name: "log"}

	d := NewDispatcher(store, good, bad, after)
	d.Dispatch(context.Background(), testSignal())

	if good.sent != 1 || bad.sent != 1 || after.sent != 1 {
		t.Errorf("every channel should be attempted once: %d %d %d", good.sent, bad.sent, after.sent)
	}
	if !store.delivered["telegram"] || store.delivered["webhook"] || !store.delivered["log"] {
		t.Errorf("delivery bookkeeping wrong: %v", store.delivered)
	}
}

func TestDispatcher_FailureHookFires(t *testing.T) {
	var failed []string
	d := NewDispatcher(nil, &fakeNotifier{name: "webhook", err: errors.New("boom")})
	d.OnFailure = func(channel string) { failed = append(failed, channel) }

	d.Dispatch(context.Background(), testSignal())

	if len(failed) != 1 || failed[0] != "webhook" {
		t.Errorf("expected webhook failure hook, got %v", failed)
	}
}

func TestFormatSignal_MarksSimulated(t *testing.T) {
	sig := testSignal()
	if strings.Contains(FormatSignal(sig), "SIMULATED") {
		t.Error("live signal must not carry the simulated tag")
	}
	sig.Simulated = true
	if !strings.Contains(FormatSignal(sig), "SIMULATED") {
		t.Error("simulated signal must be tagged")
	}
}
