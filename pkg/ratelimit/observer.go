package ratelimit

import "time"

// Event carries the context of a governance decision for external logging and
// metrics. Numeric fields mirror the tracked state and are nil when unknown.
type Event struct {
	// RequestID is the per-call correlation id threaded through governance,
	// classification and logging.
	RequestID string

	// Remaining and Limit describe the budget at decision time.
	Remaining *int
	Limit     *int

	// ResetAt is the window reset time, when known.
	ResetAt *time.Time

	// Wait is the delay applied (throttle) or the computed queue wait.
	Wait time.Duration
}

// Observer receives governance lifecycle callbacks. All fields are optional.
// Callbacks run synchronously on the governed call path and must be fast;
// panics are recovered and swallowed so a misbehaving observer can never
// break governance.
type Observer struct {
	// OnThrottle fires before a proactive throttle delay.
	OnThrottle func(Event)

	// OnQueueEnter fires when a caller parks waiting for rate limit reset.
	OnQueueEnter func(Event)

	// OnQueueExit fires when a parked caller resumes, including on
	// cancellation.
	OnQueueExit func(Event)

	// OnExcessiveWait fires when a computed queue wait exceeds the configured
	// warning threshold. Behavior is unchanged; this is notification only.
	OnExcessiveWait func(Event)
}

// fire invokes a callback, swallowing panics.
func fire(fn func(Event), ev Event) {
	if fn == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	fn(ev)
}
