package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/filingsapi/go-filings-client/internal/testutil"
	"github.com/filingsapi/go-filings-client/pkg/ratelimit"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig("test-api-key")
	cfg.BaseURL = baseURL
	cfg.Retry = fastRetryConfig(3)

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultConfig("key"),
			wantErr: false,
		},
		{
			name:    "missing api key",
			cfg:     Config{BaseURL: DefaultBaseURL},
			wantErr: true,
		},
		{
			name: "invalid throttle threshold",
			cfg: Config{
				APIKey:   "key",
				Governor: ratelimit.GovernorConfig{ThrottleThreshold: 2.0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var apiErr *Error
				if !errors.As(err, &apiErr) || apiErr.Kind != KindConfiguration {
					t.Errorf("err = %v, want a configuration error", err)
				}
			}
		})
	}
}

func TestDo_SuccessUpdatesRateLimitState(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	resetAt := time.Now().Add(time.Minute)
	mock.Script("/search", testutil.ScriptedResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.PageBody(1, []string{"0000320193-24-000001"}),
		Headers:    testutil.RateLimitHeaders(100, 99, resetAt),
	})

	c := newTestClient(t, mock.URL())

	resp, err := c.Post(context.Background(), "/search", map[string]string{"query": "ticker:AAPL"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.RequestID == "" {
		t.Error("response should carry a correlation id")
	}

	state := c.RateLimitState()
	if state == nil {
		t.Fatal("rate limit state should be tracked after a response with headers")
	}
	if *state.Remaining != 99 || *state.Limit != 100 {
		t.Errorf("state = {limit:%v remaining:%v}, want {100 99}", state.Limit, state.Remaining)
	}
	if c.QueuedRequests() != 0 {
		t.Errorf("QueuedRequests() = %d, want 0", c.QueuedRequests())
	}
}

func TestDo_NoHeadersLeavesStateUntracked(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.Script("/search", testutil.ScriptedResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.PageBody(0, nil),
	})

	c := newTestClient(t, mock.URL())
	if _, err := c.Post(context.Background(), "/search", nil); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if c.RateLimitState() != nil {
		t.Error("state should stay nil when the server sends no rate limit headers")
	}
}

func TestDo_SendsAuthAndContentHeaders(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	c := newTestClient(t, mock.URL())
	if _, err := c.Post(context.Background(), "/search", map[string]string{"query": "x"}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	h := mock.LastHeader()
	if got := h.Get("Authorization"); got != "test-api-key" {
		t.Errorf("Authorization = %q, want the API key", got)
	}
	if got := h.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if h.Get("User-Agent") == "" {
		t.Error("User-Agent should be set")
	}
}

func TestDo_TransientRetriedThenSucceeds(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.Script("/search",
		testutil.ScriptedResponse{
			StatusCode: http.StatusTooManyRequests,
			Body:       `{"message":"quota exceeded"}`,
			Headers:    map[string]string{"Retry-After": "0"},
		},
		testutil.ScriptedResponse{
			StatusCode: http.StatusOK,
			Body:       testutil.PageBody(0, nil),
		},
	)

	c := newTestClient(t, mock.URL())
	resp, err := c.Post(context.Background(), "/search", nil)
	if err != nil {
		t.Fatalf("Post() error = %v, want success after retry", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := mock.RequestCount(); got != 2 {
		t.Errorf("RequestCount = %d, want 2 (one retry)", got)
	}
}

func TestDo_PermanentNotRetried(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.Script("/search", testutil.ScriptedResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"message":"no such endpoint"}`,
	})

	c := newTestClient(t, mock.URL())
	_, err := c.Post(context.Background(), "/search", nil)

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want a typed error", err)
	}
	if apiErr.Kind != KindNotFound {
		t.Errorf("Kind = %s, want not_found", apiErr.Kind)
	}
	if apiErr.RequestID == "" {
		t.Error("classified error should carry the correlation id")
	}
	if got := mock.RequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1 (no retries for permanent errors)", got)
	}
}

func TestDo_NetworkFailureExhaustsRetries(t *testing.T) {
	mock := testutil.NewMockAPI()
	url := mock.URL()
	mock.Close() // nothing listening

	c := newTestClient(t, url)
	_, err := c.Post(context.Background(), "/search", nil)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("err = %v, want ErrRetryExhausted", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindNetwork {
		t.Errorf("err = %v, want a wrapped network error", err)
	}
	if !IsTransient(err) {
		t.Error("exhausted network failure should still classify as transient")
	}
}

func TestDo_ExhaustedBudgetQueuesNextCall(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	// Reset timestamps travel as whole epoch seconds, so anchor the
	// reset two seconds out to guarantee a measurable wait.
	resetAt := time.Unix(time.Now().Unix()+2, 0)
	mock.Script("/search",
		testutil.ScriptedResponse{
			StatusCode: http.StatusOK,
			Body:       testutil.PageBody(0, nil),
			Headers:    testutil.RateLimitHeaders(100, 0, resetAt),
		},
		testutil.ScriptedResponse{
			StatusCode: http.StatusOK,
			Body:       testutil.PageBody(0, nil),
			Headers:    testutil.RateLimitHeaders(100, 100, time.Now().Add(time.Minute)),
		},
	)

	c := newTestClient(t, mock.URL())
	ctx := context.Background()

	// First call reports an exhausted budget.
	if _, err := c.Post(ctx, "/search", nil); err != nil {
		t.Fatalf("first Post() error = %v", err)
	}

	// Second call must park until the reported reset passes.
	start := time.Now()
	if _, err := c.Post(ctx, "/search", nil); err != nil {
		t.Fatalf("second Post() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("second call returned after %v, want it queued until reset", elapsed)
	}
	if c.QueuedRequests() != 0 {
		t.Errorf("QueuedRequests() = %d, want 0 after completion", c.QueuedRequests())
	}
}
