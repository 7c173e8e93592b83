package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a query has no text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// QueryRequest is the body of a retrieval or generation request.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate trims the query and clamps TopK into [1, maxK], using defaultK when unset.
func (q *QueryRequest) Validate(defaultK, maxK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = defaultK
	}
	if maxK > 0 && q.TopK > maxK {
		q.TopK = maxK
	}
	return nil
}

// GenerateRequest is a generation request. Provider and Credential come from
// the query string and headers, not the body.
type GenerateRequest struct {
	QueryRequest
	Provider   string `json:"-"`
	Credential string `json:"-"`
}
