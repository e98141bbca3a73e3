// Package redis provides the realtime fan-out and checkpoint store: bars,
// snapshots and signals go out over Pub/Sub for the gateway and any other
// subscriber, and analyzer state is checkpointed under a key so cooldowns
// survive restarts.
//
// A circuit breaker wraps every call. Redis being down must never stall
// the evaluation loop; publishing degrades to log-only until the breaker
// closes again.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	stateKeyPrefix  = "analyzer:state:"
	defaultStateTTL = 0 // checkpoints do not expire

	breakerMaxFailures  = 5
	breakerResetTimeout = 10 * time.Second
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher publishes realtime records via Pub/Sub and stores analyzer
// state checkpoints.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker

	// Optional hooks for metrics.
	OnPublishError func()
	OnBreakerTrip  func()
	OnBreakerState func(state int) // numeric State on every transition
	OnPublishDur   func(d time.Duration)
}

var (
	_ model.Publisher  = (*Publisher)(nil)
	_ model.StateStore = (*Publisher)(nil)
)

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher creates a Publisher and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := &Publisher{client: client}
	p.breaker = NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout)
	p.breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s → %s", from, to)
		if to == StateOpen && p.OnBreakerTrip != nil {
			p.OnBreakerTrip()
		}
		if p.OnBreakerState != nil {
			p.OnBreakerState(int(to))
		}
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return p, nil
}

// PublishBar publishes a closed bar to its stream channel.
func (p *Publisher) PublishBar(ctx context.Context, bar model.Bar) {
	p.publish(ctx, bar.ChannelKey(), bar.JSON())
}

// PublishSnapshot publishes a per-bar indicator snapshot.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap model.Snapshot) {
	p.publish(ctx, snap.ChannelKey(), snap.JSON())
}

// PublishSignal publishes an emitted signal.
func (p *Publisher) PublishSignal(ctx context.Context, sig model.Signal) {
	p.publish(ctx, sig.ChannelKey(), sig.JSON())
}

func (p *Publisher) publish(ctx context.Context, channel string, payload []byte) {
	start := time.Now()
	err := p.breaker.Execute(func() error {
		return p.client.Publish(ctx, channel, payload).Err()
	})
	if err == nil && p.OnPublishDur != nil {
		p.OnPublishDur(time.Since(start))
	}
	if err != nil {
		if err != ErrCircuitOpen {
			log.Printf("[redis] publish %s: %v", channel, err)
		}
		if p.OnPublishError != nil {
			p.OnPublishError()
		}
	}
}

// SaveState persists the serialized analyzer state for a stream key.
func (p *Publisher) SaveState(ctx context.Context, key string, data []byte) error {
	return p.breaker.Execute(func() error {
		return p.client.Set(ctx, stateKeyPrefix+key, data, defaultStateTTL).Err()
	})
}

// LoadState retrieves the serialized analyzer state for a stream key.
// Returns (nil, nil) when no checkpoint exists.
func (p *Publisher) LoadState(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.breaker.Execute(func() error {
		res, err := p.client.Get(ctx, stateKeyPrefix+key).Bytes()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		data = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis load state: %w", err)
	}
	return data, nil
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
