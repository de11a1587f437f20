package search

// Pagination bounds for a single search request.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Query describes a filings search. The query string grammar is defined by
// the API and passed through verbatim.
type Query struct {
	// Query is the search expression, e.g. `formType:"10-K" AND ticker:AAPL`.
	Query string `json:"query"`

	// From is the zero-based offset of the first result to return.
	From int `json:"from"`

	// Size is the page size; clamped to [1, MaxPageSize], defaulting to
	// DefaultPageSize.
	Size int `json:"size"`

	// Sort orders results, e.g. []map[string]string{{"filedAt": "desc"}}.
	Sort []map[string]string `json:"sort,omitempty"`
}

// normalized returns a copy with pagination bounds applied.
func (q *Query) normalized() *Query {
	out := *q
	if out.Size <= 0 {
		out.Size = DefaultPageSize
	}
	if out.Size > MaxPageSize {
		out.Size = MaxPageSize
	}
	if out.From < 0 {
		out.From = 0
	}
	return &out
}

// withFrom returns a copy identical to q except for the offset.
func (q *Query) withFrom(from int) *Query {
	out := *q
	out.From = from
	return &out
}
