package search

import (
	"context"
	"iter"
)

// Iterate returns a lazy, single-pass sequence of filings spanning this page
// and every page after it. Pages are fetched on demand: all records of the
// current page are yielded before the next fetch, and breaking out of the
// loop early never triggers a fetch for pages that were not consumed. The
// sequence is not restartable.
//
// Iteration stops when HasMore turns false, and defensively when a fetched
// page is empty with an unchanged next offset, so an upstream that keeps
// promising more results while returning none cannot loop the consumer
// forever. Fetch failures are yielded as the error of the final element.
func (p *Page) Iterate(ctx context.Context) iter.Seq2[*Filing, error] {
	return func(yield func(*Filing, error) bool) {
		page := p
		for {
			for _, f := range page.filings {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				if !yield(f, nil) {
					return
				}
			}

			if !page.HasMore() {
				return
			}

			prevOffset := page.NextOffset()
			next, err := page.FetchNextPage(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if next.Len() == 0 && next.NextOffset() == prevOffset {
				// Upstream claims more results but returned nothing new.
				return
			}
			page = next
		}
	}
}

// Collect gathers all filings from an iterator into a slice. It stops on the
// first error and returns everything collected so far along with the error.
func Collect(seq iter.Seq2[*Filing, error]) ([]*Filing, error) {
	result := make([]*Filing, 0)
	for f, err := range seq {
		if err != nil {
			return result, err
		}
		result = append(result, f)
	}
	return result, nil
}

// CollectN gathers up to n filings from an iterator. It stops on the first
// error and returns everything collected so far along with the error.
func CollectN(seq iter.Seq2[*Filing, error], n int) ([]*Filing, error) {
	result := make([]*Filing, 0, n)
	for f, err := range seq {
		if err != nil {
			return result, err
		}
		result = append(result, f)
		if len(result) >= n {
			break
		}
	}
	return result, nil
}
