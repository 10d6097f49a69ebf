package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/quillmind/recall/pkg/utils"
)

// MockProvider is a deterministic embedder for tests. The same text always
// produces the same unit-length vector.
type MockProvider struct {
	dimensions int
}

// NewMockProvider returns a deterministic provider of the given dimension.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &MockProvider{dimensions: dimensions}
}

// Embed returns a deterministic embedding derived from the text hash.
func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	emb := make([]float32, m.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(seed%1000003)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// Close is a no-op for MockProvider.
func (m *MockProvider) Close() error {
	return nil
}
