// Package models defines core data structures for vector items, search results,
// and the domain records built on top of them.
package models

// Metadata is the string-keyed metadata attached to a vector item. Values are
// stored as strings so they round-trip losslessly through persistence.
type Metadata map[string]string

// VectorItem is the persisted unit of the vector store: an id unique within its
// collection, a fixed-dimension embedding, and metadata.
type VectorItem struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// SearchResult is a single similarity hit, derived at query time and never persisted.
// Score is cosine similarity in [-1, 1].
type SearchResult struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Filter is an optional predicate over item metadata, applied before ranking.
type Filter func(Metadata) bool
