package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/filingsapi/go-filings-client/internal/testutil"
	"github.com/filingsapi/go-filings-client/pkg/client"
	"github.com/filingsapi/go-filings-client/pkg/search"
)

func newProxyService(t *testing.T, mock *testutil.MockAPI) (*search.Service, *client.Client) {
	t.Helper()

	cfg := client.DefaultConfig("test-api-key")
	cfg.BaseURL = mock.URL()
	apiClient, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return search.NewService(apiClient), apiClient
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", w.Body.String())
	}
}

func TestSearchHandler_MethodNotAllowed(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	svc, apiClient := newProxyService(t, mock)

	req := httptest.NewRequest("GET", "/search", nil)
	w := httptest.NewRecorder()
	searchHandler(svc, apiClient)(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestSearchHandler_InvalidBody(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	svc, apiClient := newProxyService(t, mock)

	req := httptest.NewRequest("POST", "/search", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	searchHandler(svc, apiClient)(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchHandler_EmptyQuery(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	svc, apiClient := newProxyService(t, mock)

	req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"query":""}`))
	w := httptest.NewRecorder()
	searchHandler(svc, apiClient)(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an empty query", w.Code)
	}
	if mock.RequestCount() != 0 {
		t.Error("a rejected query must not reach the upstream API")
	}
}

func TestSearchHandler_ProxiesResults(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.Script("/search", testutil.ScriptedResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.PageBody(100, []string{"0000320193-24-000001"}),
		Headers:    testutil.RateLimitHeaders(100, 42, time.Now().Add(time.Minute)),
	})
	svc, apiClient := newProxyService(t, mock)

	req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"query":"ticker:AAPL"}`))
	w := httptest.NewRecorder()
	searchHandler(svc, apiClient)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["total"] != float64(100) {
		t.Errorf("total = %v, want 100", out["total"])
	}
	if out["hasMore"] != true {
		t.Errorf("hasMore = %v, want true", out["hasMore"])
	}
	if out["rateLimitRemaining"] != float64(42) {
		t.Errorf("rateLimitRemaining = %v, want 42", out["rateLimitRemaining"])
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &client.Error{Kind: client.KindValidation}, http.StatusBadRequest},
		{"pagination", &client.Error{Kind: client.KindPagination}, http.StatusBadRequest},
		{"authentication", &client.Error{Kind: client.KindAuthentication}, http.StatusUnauthorized},
		{"not found", &client.Error{Kind: client.KindNotFound}, http.StatusNotFound},
		{"rate limit", &client.Error{Kind: client.KindRateLimit}, http.StatusTooManyRequests},
		{"server", &client.Error{Kind: client.KindServer}, http.StatusBadGateway},
		{"untyped", errors.New("boom"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Errorf("errorStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
