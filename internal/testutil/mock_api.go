// Package testutil provides testing utilities for the filings client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// ScriptedResponse is one canned response in a scripted sequence.
type ScriptedResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock filings-search server.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	scripts  map[string][]ScriptedResponse

	requestCount    int
	lastRequestBody []byte
	lastHeader      http.Header
}

// NewMockAPI creates a mock server. Unconfigured paths return an empty page.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
		scripts:  make(map[string][]ScriptedResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequestBody = body
		mock.lastHeader = r.Header.Clone()
		handler := mock.handlers[r.URL.Path]
		var scripted *ScriptedResponse
		if queue := mock.scripts[r.URL.Path]; len(queue) > 0 {
			scripted = &queue[0]
			mock.scripts[r.URL.Path] = queue[1:]
		}
		mock.mu.Unlock()

		if scripted != nil {
			if scripted.Delay > 0 {
				time.Sleep(scripted.Delay)
			}
			for k, v := range scripted.Headers {
				w.Header().Set(k, v)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(scripted.StatusCode)
			_, _ = fmt.Fprint(w, scripted.Body)
			return
		}

		if handler != nil {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, PageBody(0, nil))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Handle registers a handler for a path.
func (m *MockAPI) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// Script appends canned responses for a path, served in order before any
// registered handler.
func (m *MockAPI) Script(path string, responses ...ScriptedResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = append(m.scripts[path], responses...)
}

// RequestCount returns the number of requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// LastRequestBody returns the body of the most recent request.
func (m *MockAPI) LastRequestBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestBody
}

// LastHeader returns the headers of the most recent request.
func (m *MockAPI) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

// Reset clears tracking counters and scripted responses.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastRequestBody = nil
	m.lastHeader = nil
	m.scripts = make(map[string][]ScriptedResponse)
}

// RateLimitHeaders builds the standard rate limit header set.
func RateLimitHeaders(limit, remaining int, resetAt time.Time) map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(limit),
		"X-RateLimit-Remaining": strconv.Itoa(remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(resetAt.Unix(), 10),
	}
}

// PageBody builds a search response with the given total and filings. Each
// accession number produces one filing record.
func PageBody(total int, accessions []string) string {
	filings := make([]map[string]any, 0, len(accessions))
	for i, acc := range accessions {
		filings = append(filings, map[string]any{
			"id":          fmt.Sprintf("f-%d", i),
			"accessionNo": acc,
			"formType":    "10-K",
			"companyName": "Test Corp",
		})
	}
	body, _ := json.Marshal(map[string]any{
		"total":   map[string]any{"value": total, "relation": "eq"},
		"filings": filings,
	})
	return string(body)
}

// PageBodyBareTotal is PageBody with the total encoded as a bare integer
// instead of an object.
func PageBodyBareTotal(total int, accessions []string) string {
	filings := make([]map[string]any, 0, len(accessions))
	for i, acc := range accessions {
		filings = append(filings, map[string]any{
			"id":          fmt.Sprintf("f-%d", i),
			"accessionNo": acc,
		})
	}
	body, _ := json.Marshal(map[string]any{
		"total":   total,
		"filings": filings,
	})
	return string(body)
}
