// Package search exposes the filings-search query API: single-page searches,
// manual paging and lazy iteration over unbounded result sets.
package search

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Filing is one filing record returned by the search API. The accession
// number is the filing's natural unique key.
type Filing struct {
	ID                  string `json:"id"`
	AccessionNumber     string `json:"accessionNo"`
	CIK                 string `json:"cik"`
	Ticker              string `json:"ticker"`
	CompanyName         string `json:"companyName"`
	FormType            string `json:"formType"`
	Description         string `json:"description"`
	FiledAt             string `json:"filedAt"`
	PeriodOfReport      string `json:"periodOfReport"`
	LinkToFilingDetails string `json:"linkToFilingDetails"`
	LinkToHTML          string `json:"linkToHtml"`
}

// Total is the server-reported count of results matching a query. The API
// emits it either as a bare integer or as an object of the form
// {"value": n, "relation": "eq"}; both decode identically.
type Total struct {
	Value    int    `json:"value"`
	Relation string `json:"relation,omitempty"`
}

// UnmarshalJSON accepts both wire forms of the total count.
func (t *Total) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty total value")
	}

	if data[0] == '{' {
		type plain Total
		return json.Unmarshal(data, (*plain)(t))
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("total must be an integer or an object with a value field: %w", err)
	}
	t.Value = n
	t.Relation = ""
	return nil
}

// pageResponse is the wire shape of a search response.
type pageResponse struct {
	Total   Total     `json:"total"`
	Filings []*Filing `json:"filings"`
}
