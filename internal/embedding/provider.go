// Package embedding provides text embedding via a remote backend, with caching.
package embedding

import "context"

// Provider produces fixed-dimension vector embeddings for text.
// The dimension is fixed per provider instance; every vector returned by
// Embed has exactly Dimensions() elements.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
