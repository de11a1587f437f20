package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filings_rate_limit_remaining",
		Help: "Requests remaining in the current rate limit window",
	})

	rateLimitQueuedRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filings_rate_limit_queued_requests",
		Help: "Requests currently queued waiting for rate limit reset",
	})
)

const storeOpTimeout = 2 * time.Second

// Tracker holds the most recent rate limit snapshot shared by every caller of
// a client, plus the count of requests queued waiting for capacity. All access
// is funneled through a single mutex; queued callers park on the associated
// condition variable and are signaled after every completed response.
//
// When a Store is configured the tracker publishes each new snapshot to it and
// hydrates from it on first use, so multiple processes observe one shared
// budget (the same role Redis plays for multi-instance deployments).
type Tracker struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state *State

	// queued counts callers parked in Governor.Acquire. It is incremented
	// before waiting and decremented via defer, so it returns to its prior
	// value even when a wait is abandoned.
	queued int

	store  Store
	logger zerolog.Logger
}

// NewTracker creates a tracker. store may be nil for purely in-process use.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		store:  store,
		logger: logger,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// State returns the current snapshot, or nil when no response carrying rate
// limit headers has been observed yet.
func (t *Tracker) State() *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// QueuedCount returns the number of callers currently parked waiting for
// rate limit reset.
func (t *Tracker) QueuedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queued
}

// UpdateFromHeaders inspects a completed response's headers and, when at least
// one rate limit header is present, replaces the tracked state with the new
// snapshot. It always wakes one queued waiter afterwards: even a response
// without headers is new information for a parked caller to re-check against.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) {
	state, ok := ParseHeaders(headers)

	t.mu.Lock()
	if ok {
		t.state = state
		if state.Remaining != nil {
			rateLimitRemaining.Set(float64(*state.Remaining))
		}
	}
	t.cond.Signal()
	t.mu.Unlock()

	if !ok {
		return
	}

	t.logState(state)
	t.publish(ctx, state)
}

// Hydrate loads a snapshot from the configured store when the tracker has no
// local state yet. It is a no-op without a store and never fails the caller;
// store errors are logged and swallowed.
func (t *Tracker) Hydrate(ctx context.Context) {
	if t.store == nil {
		return
	}

	t.mu.Lock()
	if t.state != nil {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	state, err := t.store.Load(loadCtx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to load rate limit state from store")
		return
	}
	if state == nil {
		return
	}

	t.mu.Lock()
	if t.state == nil {
		t.state = state
	}
	t.mu.Unlock()

	t.logger.Debug().Msg("Hydrated rate limit state from store")
}

// publish writes the snapshot to the store, best effort.
func (t *Tracker) publish(ctx context.Context, state *State) {
	if t.store == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeOpTimeout)
	defer cancel()

	if err := t.store.Save(saveCtx, state); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to publish rate limit state to store")
	}
}

func (t *Tracker) logState(state *State) {
	var ev *zerolog.Event
	if state.Exhausted() {
		ev = t.logger.Warn()
	} else {
		ev = t.logger.Debug()
	}
	if state.Remaining != nil {
		ev = ev.Int("remaining", *state.Remaining)
	}
	if state.Limit != nil {
		ev = ev.Int("limit", *state.Limit)
	}
	if state.ResetAt != nil {
		ev = ev.Time("reset_at", *state.ResetAt)
	}
	ev.Msg("Rate limit state updated")
}
