// Package retry re-runs a whole operation with exponential backoff when it
// fails with a transient error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/rest-ingest/pkg/client"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Common errors returned by Do.
var (
	// ErrExhausted is returned when all attempts failed with retryable errors.
	ErrExhausted = errors.New("retry attempts exhausted")

	// ErrCancelled is returned when the context ends during a backoff wait.
	ErrCancelled = errors.New("context cancelled")
)

// Classified is implemented by errors that know their failure class.
// Errors that do not implement it are never retried.
type Classified interface {
	ErrorClass() client.ErrorClass
}

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ConfigForErrorClass returns the retry configuration suited to an error
// class, keeping base's attempt budget.
func ConfigForErrorClass(base Config, class client.ErrorClass) Config {
	cfg := base
	switch class {
	case client.ErrorClassRateLimit:
		// 429 - longer backoff
		cfg.InitialBackoff = base.InitialBackoff * 5
		cfg.MaxBackoff = base.MaxBackoff * 2
	case client.ErrorClassNetwork:
		cfg.InitialBackoff = base.InitialBackoff * 2
	}
	return cfg
}

// ClassOf returns the failure class carried by err, or "" when err does not
// carry one.
func ClassOf(err error) client.ErrorClass {
	var classified Classified
	if errors.As(err, &classified) {
		return classified.ErrorClass()
	}
	return ""
}

// Retryable reports whether Do would try again after err.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return ClassOf(err).Retryable()
}

// Do runs fn until it succeeds, fails with a non-retryable error, or
// cfg.MaxAttempts is reached. It respects context cancellation and adds
// jitter to each backoff.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	var backoff time.Duration
	var class client.ErrorClass

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(class)).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !Retryable(err) {
			return err
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		// backoff restarts when the failure class changes
		if next := ClassOf(err); next != class || backoff == 0 {
			class = next
			backoff = ConfigForErrorClass(cfg, class).InitialBackoff
		}
		classCfg := ConfigForErrorClass(cfg, class)

		retriesTotal.WithLabelValues(string(class)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(jitter.Seconds())

		log.Debug().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v (last error: %w)", ErrCancelled, ctx.Err(), lastErr)
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * classCfg.BackoffMultiplier)
		if classCfg.MaxBackoff > 0 && backoff > classCfg.MaxBackoff {
			backoff = classCfg.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(ClassOf(lastErr))).Inc()
	log.Warn().
		Str("error_class", string(ClassOf(lastErr))).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}
