package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filings_retries_total",
		Help: "Total retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filings_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filings_retry_exhausted_total",
		Help: "Times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the first backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff between attempts.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryConfigForKind returns the retry configuration tuned for an error kind.
// Rate limit errors back off longer than plain server hiccups.
func retryConfigForKind(kind Kind) RetryConfig {
	switch kind {
	case KindServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case KindRateLimit:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case KindNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// retryWithBackoff executes fn with exponential backoff and jitter. Only
// transient errors are retried; a permanent error returns immediately. When
// attempts run out, the last typed error is wrapped in ErrRetryExhausted so
// callers can still match its kind with errors.As.
func retryWithBackoff(ctx context.Context, logger zerolog.Logger, cfg RetryConfig, fn func() error) error {
	var lastErr error
	backoff := cfg.InitialBackoff
	maxAttempts := cfg.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !IsTransient(err) {
			return err
		}

		// The first failure decides which per-kind tuning applies. Only the
		// default policy is retuned; an explicitly configured one is used
		// as-is.
		if attempt == 1 && cfg == DefaultRetryConfig() {
			if apiErr := AsError(err); apiErr != nil {
				kindCfg := retryConfigForKind(apiErr.Kind)
				backoff = kindCfg.InitialBackoff
				cfg.MaxBackoff = kindCfg.MaxBackoff
				cfg.BackoffMultiplier = kindCfg.BackoffMultiplier
			}
		}

		if attempt >= maxAttempts {
			break
		}

		kind := kindLabel(err)
		retriesTotal.WithLabelValues(kind).Inc()

		// Jitter of ±20% prevents synchronized retries.
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

		// The server's own pause request takes precedence when longer.
		if apiErr := AsError(err); apiErr != nil && apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}
		retryBackoffSeconds.WithLabelValues(kind).Observe(wait.Seconds())

		logger.Debug().
			Str("kind", kind).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("kind", kind).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	kind := kindLabel(lastErr)
	retryExhaustedTotal.WithLabelValues(kind).Inc()
	logger.Warn().
		Str("kind", kind).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}

// kindLabel returns the metric label for an error's kind.
func kindLabel(err error) string {
	if apiErr := AsError(err); apiErr != nil {
		return string(apiErr.Kind)
	}
	return "unknown"
}
