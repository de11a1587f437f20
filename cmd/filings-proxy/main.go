// Command filings-proxy exposes a governed filings-search endpoint over HTTP.
// It fronts the upstream API with the client's rate limit governance so every
// local consumer shares one budget, and exports Prometheus metrics.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/filingsapi/go-filings-client/pkg/client"
	"github.com/filingsapi/go-filings-client/pkg/logging"
	"github.com/filingsapi/go-filings-client/pkg/search"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("FILINGS")
	v.AutomaticEnv()
	v.SetDefault("port", "8080")
	v.SetDefault("base_url", client.DefaultBaseURL)
	v.SetDefault("log_level", "info")
	v.SetDefault("cache_ttl", "0s")

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(v.GetString("log_level")),
		Pretty: v.GetBool("log_pretty"),
	})

	apiKey := v.GetString("api_key")
	if apiKey == "" {
		logger.Fatal().Msg("FILINGS_API_KEY is required")
	}

	cfg := client.DefaultConfig(apiKey)
	cfg.BaseURL = v.GetString("base_url")
	cfg.CacheTTL = v.GetDuration("cache_ttl")

	if redisURL := v.GetString("redis_url"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		cfg.Redis = redisClient
		logger.Info().Str("redis", redisURL).Msg("Sharing rate limit state via Redis")
	}

	apiClient, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create filings client")
	}
	svc := search.NewService(apiClient)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", searchHandler(svc, apiClient))

	addr := ":" + v.GetString("port")
	logger.Info().Str("addr", addr).Msg("Starting filings proxy")

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// searchHandler proxies a search query through the governed client and
// reports the current budget alongside the results.
func searchHandler(svc *search.Service, apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var query search.Query
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			http.Error(w, "invalid query body", http.StatusBadRequest)
			return
		}

		page, err := svc.Search(r.Context(), &query)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}

		out := map[string]any{
			"total":   page.Count(),
			"from":    page.From(),
			"filings": page.Filings(),
			"hasMore": page.HasMore(),
		}
		if state := apiClient.RateLimitState(); state != nil && state.Remaining != nil {
			out["rateLimitRemaining"] = *state.Remaining
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, "encode response", http.StatusInternalServerError)
		}
	}
}

// errorStatus maps a typed client error to the proxy's response status.
func errorStatus(err error) int {
	var apiErr *client.Error
	if !errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	switch apiErr.Kind {
	case client.KindValidation, client.KindPagination:
		return http.StatusBadRequest
	case client.KindAuthentication:
		return http.StatusUnauthorized
	case client.KindNotFound:
		return http.StatusNotFound
	case client.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
