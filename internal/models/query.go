package models

import "fmt"

// SearchRequest is a semantic search request against one of the domain indexes.
// Role is only honored by the chat history index.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Validate ensures the request has a query and normalizes the limit into
// [1, maxLimit], applying defaultLimit when unset.
func (q *SearchRequest) Validate(defaultLimit, maxLimit int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
