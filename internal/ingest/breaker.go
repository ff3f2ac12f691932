package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds the configuration for the store circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive store failures required to
	// trip the breaker. Default: 5
	MaxFailures uint32

	// Timeout is how long the breaker stays open before letting a trial
	// ingestion through. Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxRequests is the number of trial ingestions allowed while
	// half-open. Default: 1
	HalfOpenMaxRequests uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are given.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// storeBreaker wraps gobreaker around the ingestion transaction.
//
// When closed, ingestions reach the store. After MaxFailures consecutive
// failures it opens and rejects ingestions with ErrStoreUnavailable until
// Timeout elapses; a successful trial ingestion then closes it again.
type storeBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func newStoreBreaker(config BreakerConfig, logger zerolog.Logger) *storeBreaker {
	defaults := DefaultBreakerConfig()
	if config.MaxFailures == 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.HalfOpenMaxRequests == 0 {
		config.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}

	settings := gobreaker.Settings{
		Name:        "ingest-store",
		MaxRequests: config.HalfOpenMaxRequests,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the store's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("ingest: store circuit breaker changed state")
		},
	}

	return &storeBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// execute runs fn through the breaker. An open or saturated breaker returns
// ErrStoreUnavailable without calling fn.
func (b *storeBreaker) execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrStoreUnavailable
	}
	return err
}

// state returns "closed", "open" or "half-open".
func (b *storeBreaker) state() string {
	return b.breaker.State().String()
}
