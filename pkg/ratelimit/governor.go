package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request governance.
var (
	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filings_rate_limit_throttles_total",
		Help: "Requests delayed by proactive throttling",
	})

	rateLimitQueueWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filings_rate_limit_queue_waits_total",
		Help: "Requests queued because the rate limit budget was exhausted",
	})

	rateLimitExcessiveWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filings_rate_limit_excessive_waits_total",
		Help: "Queue waits that exceeded the excessive-wait warning threshold",
	})
)

// Default governance parameters.
const (
	// DefaultThrottleThreshold is the fraction of remaining capacity below
	// which proactive throttling begins.
	DefaultThrottleThreshold = 0.1

	// DefaultExhaustedWait is the fallback queue wait when the budget is
	// exhausted and the server did not report a reset time.
	DefaultExhaustedWait = 60 * time.Second

	// DefaultExcessiveWaitWarn is the queue wait above which an
	// excessive-wait notification is emitted.
	DefaultExcessiveWaitWarn = 300 * time.Second
)

// GovernorConfig holds governance tuning parameters.
type GovernorConfig struct {
	// ThrottleThreshold is the fraction in (0,1) of remaining capacity below
	// which requests are delayed until the window resets.
	ThrottleThreshold float64

	// ExhaustedWait is the queue wait used when no reset time is known.
	ExhaustedWait time.Duration

	// ExcessiveWaitWarn is the warning threshold for queue waits.
	ExcessiveWaitWarn time.Duration
}

// DefaultGovernorConfig returns the default governance parameters.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		ThrottleThreshold: DefaultThrottleThreshold,
		ExhaustedWait:     DefaultExhaustedWait,
		ExcessiveWaitWarn: DefaultExcessiveWaitWarn,
	}
}

// Governor gates every outbound call against the shared rate limit budget.
// Two policies apply: proactive throttling (delay until reset once the
// remaining fraction drops below the threshold) and exhaustion queueing
// (park the caller until the window resets or new headers arrive).
//
// No fairness is guaranteed among queued callers: any parked caller may be
// the one to proceed after a wake signal.
type Governor struct {
	tracker  *Tracker
	cfg      GovernorConfig
	observer Observer
	logger   zerolog.Logger
}

// NewGovernor creates a governor over the given tracker. Zero config fields
// fall back to defaults; a threshold outside (0,1) is rejected.
func NewGovernor(tracker *Tracker, cfg GovernorConfig, observer Observer, logger zerolog.Logger) (*Governor, error) {
	if cfg.ThrottleThreshold == 0 {
		cfg.ThrottleThreshold = DefaultThrottleThreshold
	}
	if cfg.ThrottleThreshold < 0 || cfg.ThrottleThreshold >= 1 {
		return nil, fmt.Errorf("throttle threshold must be in (0,1), got %g", cfg.ThrottleThreshold)
	}
	if cfg.ExhaustedWait <= 0 {
		cfg.ExhaustedWait = DefaultExhaustedWait
	}
	if cfg.ExcessiveWaitWarn <= 0 {
		cfg.ExcessiveWaitWarn = DefaultExcessiveWaitWarn
	}

	return &Governor{
		tracker:  tracker,
		cfg:      cfg,
		observer: observer,
		logger:   logger,
	}, nil
}

// Acquire blocks until the caller may send a request, per the tracked budget:
//
//   - no state yet: proceed immediately
//   - exhausted: park until the window resets or fresh headers arrive
//   - stale state: proceed (the reported window is already over)
//   - below threshold: sleep until the window resets, then proceed
//
// The wait is interruptible through ctx; an abandoned queue wait still
// releases its queued-count slot.
func (g *Governor) Acquire(ctx context.Context, requestID string) error {
	g.tracker.Hydrate(ctx)

	t := g.tracker
	t.mu.Lock()

	if t.state == nil {
		t.mu.Unlock()
		return nil
	}

	if t.state.Exhausted() {
		// waitForReset unlocks t.mu.
		return g.waitForReset(ctx, requestID)
	}

	now := time.Now()
	if t.state.Stale(now) {
		t.mu.Unlock()
		return nil
	}

	frac, ok := t.state.FractionRemaining()
	if !ok || frac >= g.cfg.ThrottleThreshold {
		t.mu.Unlock()
		return nil
	}

	delay, _ := t.state.TimeUntilReset(now)
	ev := g.event(requestID, t.state, delay)
	t.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	rateLimitThrottlesTotal.Inc()
	fire(g.observer.OnThrottle, ev)
	g.logger.Warn().
		Str("request_id", requestID).
		Dur("delay", delay).
		Float64("fraction_remaining", frac).
		Msg("Rate limit low - throttling request")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// waitForReset parks the caller while the budget is exhausted. Called with
// t.mu held; unlocks it before returning.
//
// The caller sleeps on the tracker's condition variable and re-checks the
// state on every wake: another caller may have consumed freed capacity first,
// or fresh headers may report the budget exhausted again with a later reset.
// Dropping that re-check would race two callers into believing capacity is
// available. Waits are bounded per pass (a timer broadcasts at the computed
// deadline) rather than blocking once for an unbounded duration.
func (g *Governor) waitForReset(ctx context.Context, requestID string) error {
	t := g.tracker

	now := time.Now()
	wait := g.cfg.ExhaustedWait
	if d, ok := t.state.TimeUntilReset(now); ok {
		wait = d
	}
	deadline := now.Add(wait)
	ev := g.event(requestID, t.state, wait)

	t.queued++
	rateLimitQueuedRequests.Set(float64(t.queued))
	defer func() {
		t.queued--
		rateLimitQueuedRequests.Set(float64(t.queued))
		t.mu.Unlock()
		fire(g.observer.OnQueueExit, g.event(requestID, nil, 0))
	}()

	rateLimitQueueWaitsTotal.Inc()
	excessive := wait > g.cfg.ExcessiveWaitWarn
	if excessive {
		rateLimitExcessiveWaitsTotal.Inc()
	}

	// Entry callbacks and logging run without the lock so an observer may
	// use the public accessors; the loop below re-checks state after
	// re-acquiring.
	t.mu.Unlock()

	fire(g.observer.OnQueueEnter, ev)
	g.logger.Warn().
		Str("request_id", requestID).
		Dur("wait", wait).
		Msg("Rate limit exhausted - queueing request")

	if excessive {
		fire(g.observer.OnExcessiveWait, ev)
		g.logger.Warn().
			Str("request_id", requestID).
			Dur("wait", wait).
			Dur("threshold", g.cfg.ExcessiveWaitWarn).
			Msg("Excessive rate limit wait")
	}

	// A context cancellation must wake the parked caller.
	stop := context.AfterFunc(ctx, t.cond.Broadcast)
	defer stop()

	t.mu.Lock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.state == nil || !t.state.Exhausted() {
			return nil
		}

		now = time.Now()
		if d, ok := t.state.TimeUntilReset(now); ok {
			if d <= 0 {
				// Reset time has passed with no fresh headers; proceed and
				// let the next response re-establish the state.
				return nil
			}
			deadline = now.Add(d)
		}
		if !now.Before(deadline) {
			// Default window elapsed without news.
			return nil
		}

		timer := time.AfterFunc(deadline.Sub(now), t.cond.Broadcast)
		t.cond.Wait()
		timer.Stop()
	}
}

// event snapshots state into an observer Event. Called with t.mu held when
// state is non-nil.
func (g *Governor) event(requestID string, state *State, wait time.Duration) Event {
	ev := Event{RequestID: requestID, Wait: wait}
	if state != nil {
		ev.Remaining = state.Remaining
		ev.Limit = state.Limit
		ev.ResetAt = state.ResetAt
	}
	return ev
}
