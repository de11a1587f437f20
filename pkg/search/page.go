package search

import (
	"context"

	"github.com/filingsapi/go-filings-client/pkg/client"
)

// Page is one window of search results. A page is immutable after
// construction and holds at most one window of filings; fetching the next
// page returns a new Page and releases this one for collection.
type Page struct {
	filings []*Filing
	from    int
	total   Total

	// svc issues further fetches. A nil svc means the page is detached
	// (decoded without a client) and cannot page forward.
	svc   *Service
	query *Query
}

// newPage builds a page from a wire response, deduplicating filings by
// accession number while preserving first-seen order. Dedup applies within a
// single server response only, never across pages.
func newPage(svc *Service, query *Query, resp *pageResponse) *Page {
	filings := make([]*Filing, 0, len(resp.Filings))
	seen := make(map[string]struct{}, len(resp.Filings))
	for _, f := range resp.Filings {
		if f == nil {
			continue
		}
		if f.AccessionNumber != "" {
			if _, dup := seen[f.AccessionNumber]; dup {
				continue
			}
			seen[f.AccessionNumber] = struct{}{}
		}
		filings = append(filings, f)
	}

	return &Page{
		filings: filings,
		from:    query.From,
		total:   resp.Total,
		svc:     svc,
		query:   query,
	}
}

// Filings returns the page's records. The slice is owned by the page and
// must not be modified.
func (p *Page) Filings() []*Filing {
	return p.filings
}

// Len returns the number of records on this page.
func (p *Page) Len() int {
	return len(p.filings)
}

// From returns the zero-based offset of the first record on this page.
func (p *Page) From() int {
	return p.from
}

// Count returns the server-reported total across all pages, not the size of
// this page. For the number of records in hand use Len; for a filtered count
// of this page use CountFunc.
func (p *Page) Count() int {
	return p.total.Value
}

// CountFunc counts records on the current page only that match pred. It is
// bounded by the page size and unrelated to the server-reported total.
func (p *Page) CountFunc(pred func(*Filing) bool) int {
	n := 0
	for _, f := range p.filings {
		if pred(f) {
			n++
		}
	}
	return n
}

// NextOffset returns the fetch position of the page after this one.
func (p *Page) NextOffset() int {
	return p.from + len(p.filings)
}

// HasMore reports whether further pages can be fetched: the page must be
// attached to a service and the next offset must lie before the
// server-reported total.
func (p *Page) HasMore() bool {
	return p.svc != nil && p.NextOffset() < p.total.Value
}

// FetchNextPage issues one governed call for the next window of results,
// with the original query parameters overridden only in the offset. It fails
// with a pagination error when HasMore is false.
func (p *Page) FetchNextPage(ctx context.Context) (*Page, error) {
	if p.svc == nil {
		return nil, &client.Error{
			Kind:    client.KindPagination,
			Message: "page is not attached to a client",
		}
	}
	if !p.HasMore() {
		return nil, &client.Error{
			Kind:    client.KindPagination,
			Message: "no more pages available",
		}
	}

	return p.svc.Search(ctx, p.query.withFrom(p.NextOffset()))
}
