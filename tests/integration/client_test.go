//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/filingsapi/go-filings-client/internal/testutil"
	"github.com/filingsapi/go-filings-client/pkg/client"
	"github.com/filingsapi/go-filings-client/pkg/search"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})
	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})
	return redisClient
}

func newClient(t *testing.T, baseURL string, redisClient *redis.Client, cacheTTL time.Duration) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig("integration-test-key")
	cfg.BaseURL = baseURL
	cfg.Redis = redisClient
	cfg.CacheTTL = cacheTTL

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

func TestSearchEndToEnd(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.Script("/search",
		testutil.ScriptedResponse{
			StatusCode: http.StatusOK,
			Body:       testutil.PageBody(5, []string{"acc-1", "acc-2", "acc-3"}),
			Headers:    testutil.RateLimitHeaders(100, 97, time.Now().Add(time.Minute)),
		},
		testutil.ScriptedResponse{
			StatusCode: http.StatusOK,
			Body:       testutil.PageBody(5, []string{"acc-4", "acc-5"}),
			Headers:    testutil.RateLimitHeaders(100, 96, time.Now().Add(time.Minute)),
		},
	)

	c := newClient(t, mock.URL(), nil, 0)
	svc := search.NewService(c)

	page, err := svc.Search(context.Background(), &search.Query{Query: `formType:"10-K"`, Size: 3})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	filings, err := search.Collect(page.Iterate(context.Background()))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(filings) != 5 {
		t.Errorf("collected %d filings, want 5", len(filings))
	}

	state := c.RateLimitState()
	if state == nil || *state.Remaining != 96 {
		t.Errorf("rate limit state = %+v, want remaining 96 from the last response", state)
	}
}

func TestSharedRateLimitState(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.Script("/search", testutil.ScriptedResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.PageBody(0, nil),
		Headers:    testutil.RateLimitHeaders(100, 17, time.Now().Add(time.Minute)),
	})

	// First client observes the budget and publishes it.
	first := newClient(t, mock.URL(), redisClient, 0)
	if _, err := first.Post(context.Background(), "/search", nil); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	// The script is drained, so the second client's next response carries
	// no rate limit headers: any state it reports was hydrated from Redis.
	second := newClient(t, mock.URL(), redisClient, 0)
	if _, err := second.Post(context.Background(), "/search", nil); err != nil {
		t.Fatalf("second Post() error = %v", err)
	}

	state := second.RateLimitState()
	if state == nil || state.Remaining == nil {
		t.Fatal("second client should hydrate shared rate limit state")
	}
	if *state.Remaining != 17 {
		t.Errorf("Remaining = %d, want 17 published by the first client", *state.Remaining)
	}
}

func TestResponseCacheAvoidsSecondRequest(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.Script("/search", testutil.ScriptedResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.PageBody(1, []string{"acc-1"}),
		Headers:    testutil.RateLimitHeaders(100, 99, time.Now().Add(time.Minute)),
	})

	c := newClient(t, mock.URL(), redisClient, time.Minute)
	svc := search.NewService(c)
	query := &search.Query{Query: "ticker:AAPL"}

	if _, err := svc.Search(context.Background(), query); err != nil {
		t.Fatalf("first Search() error = %v", err)
	}
	page, err := svc.Search(context.Background(), query)
	if err != nil {
		t.Fatalf("cached Search() error = %v", err)
	}
	if page.Len() != 1 {
		t.Errorf("cached page has %d filings, want 1", page.Len())
	}
	if got := mock.RequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1 (second search served from cache)", got)
	}
}

func TestPermanentErrorSurfacesImmediately(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.Script("/search", testutil.ScriptedResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message":"invalid api key"}`,
	})

	c := newClient(t, mock.URL(), nil, 0)
	svc := search.NewService(c)

	_, err := svc.Search(context.Background(), &search.Query{Query: "q"})
	apiErr := client.AsError(err)
	if apiErr == nil {
		t.Fatalf("err = %v, want a typed error", err)
	}
	if apiErr.Kind != client.KindAuthentication {
		t.Errorf("Kind = %s, want authentication", apiErr.Kind)
	}
	if got := mock.RequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1", got)
	}
}
