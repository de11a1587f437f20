// Package ratelimit implements rate limit tracking and request gating for the
// filings-search API. It monitors the X-RateLimit-Limit, X-RateLimit-Remaining
// and X-RateLimit-Reset response headers, throttles requests proactively when
// the remaining budget runs low, and queues callers when the budget is exhausted.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Rate limit response headers emitted by the filings-search API.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// State is an immutable snapshot of the rate limit budget as reported by the
// most recent response. Any field may be nil when the server omitted the
// corresponding header. A new snapshot replaces the old one wholesale; absent
// fields stay absent rather than becoming zero.
type State struct {
	// Limit is the total request budget for the current window.
	Limit *int `json:"limit,omitempty"`

	// Remaining is the number of requests left in the current window.
	Remaining *int `json:"remaining,omitempty"`

	// ResetAt is the absolute time the window resets.
	ResetAt *time.Time `json:"reset_at,omitempty"`
}

// Exhausted reports whether the server has declared the budget spent.
func (s *State) Exhausted() bool {
	return s.Remaining != nil && *s.Remaining == 0
}

// Stale reports whether the snapshot's reset time has already passed, meaning
// the window it describes is over and its numbers no longer apply.
func (s *State) Stale(now time.Time) bool {
	return s.ResetAt != nil && s.ResetAt.Before(now)
}

// FractionRemaining returns the remaining budget as a fraction in [0,1].
// When Limit is known the fraction is Remaining/Limit; when only Remaining is
// known it is interpreted as a direct percentage. The second return value is
// false when Remaining is absent.
func (s *State) FractionRemaining() (float64, bool) {
	if s.Remaining == nil {
		return 0, false
	}
	if s.Limit != nil && *s.Limit > 0 {
		return float64(*s.Remaining) / float64(*s.Limit), true
	}
	return float64(*s.Remaining) / 100, true
}

// TimeUntilReset returns the duration until the window resets, clamped to >= 0.
// The second return value is false when ResetAt is absent.
func (s *State) TimeUntilReset(now time.Time) (time.Duration, bool) {
	if s.ResetAt == nil {
		return 0, false
	}
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0, true
	}
	return d, true
}

// ParseHeaders extracts a State from rate limit response headers. The second
// return value reports whether at least one of the three headers was present;
// callers must not replace tracked state when it is false. Malformed or
// negative values are treated as absent.
func ParseHeaders(h http.Header) (*State, bool) {
	state := &State{}
	found := false

	if v := h.Get(HeaderLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			state.Limit = &n
			found = true
		}
	}

	if v := h.Get(HeaderRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			state.Remaining = &n
			found = true
		}
	}

	if v := h.Get(HeaderReset); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil && epoch > 0 {
			resetAt := time.Unix(epoch, 0)
			state.ResetAt = &resetAt
			found = true
		}
	}

	if !found {
		return nil, false
	}
	return state, true
}
