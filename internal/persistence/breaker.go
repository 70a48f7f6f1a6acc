package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before probing again.
	OpenTimeout time.Duration
}

// Breaker fails fast while the wrapped KV keeps failing. ErrNotFound is a
// normal answer and never trips the circuit.
type Breaker struct {
	next KV
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewBreaker(name string, next KV, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("persistence circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (b *Breaker) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := b.cb.Execute(func() ([]byte, error) {
		return b.next.Read(ctx, key)
	})
	return data, b.wrap(err)
}

func (b *Breaker) Write(ctx context.Context, key string, value []byte) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Write(ctx, key, value)
	})
	return b.wrap(err)
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("breaker %s: %w", b.cb.Name(), err)
	}
	return err
}
