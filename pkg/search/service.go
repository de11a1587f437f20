package search

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/filingsapi/go-filings-client/pkg/client"
)

var pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "filings_search_pages_fetched_total",
	Help: "Search result pages fetched from the API",
})

const searchPath = "/search"

// Service executes filings-search queries through a governed client.
type Service struct {
	client *client.Client
	logger zerolog.Logger
}

// NewService creates a search service over a governed client.
func NewService(c *client.Client) *Service {
	return &Service{
		client: c,
		logger: log.With().Str("component", "filings-search").Logger(),
	}
}

// Search issues one governed, classified call and returns a single page of
// results. Use Page.Iterate for automatic pagination across the full result
// set, or Page.FetchNextPage for manual control.
func (s *Service) Search(ctx context.Context, q *Query) (*Page, error) {
	if q == nil || q.Query == "" {
		return nil, &client.Error{
			Kind:    client.KindValidation,
			Message: "search query is required",
		}
	}
	q = q.normalized()

	resp, err := s.client.Post(ctx, searchPath, q)
	if err != nil {
		return nil, err
	}

	var body pageResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &client.Error{
			Kind:      client.KindServer,
			Message:   "malformed search response",
			RequestID: resp.RequestID,
			Err:       err,
		}
	}

	pagesFetchedTotal.Inc()
	s.logger.Debug().
		Str("request_id", resp.RequestID).
		Int("from", q.From).
		Int("returned", len(body.Filings)).
		Int("total", body.Total.Value).
		Msg("Search page fetched")

	return newPage(s, q, &body), nil
}
