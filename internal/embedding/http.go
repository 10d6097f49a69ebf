package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultModel      = "all-MiniLM-L6-v2"
	defaultDimensions = 384
	defaultTimeout    = 30 * time.Second
	maxRetries        = 3
)

// HTTPProvider generates embeddings by calling an OpenAI-compatible
// /embeddings endpoint. The backend (local inference server or hosted API)
// is an external collaborator; failures are returned to the caller, never
// masked with synthetic vectors.
type HTTPProvider struct {
	endpoint   string
	model      string
	apiKey     string
	dimensions int
	client     *http.Client
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithModel sets the model identifier sent to the backend.
func WithModel(model string) HTTPOption {
	return func(p *HTTPProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDimensions sets the expected embedding dimension.
func WithDimensions(dimensions int) HTTPOption {
	return func(p *HTTPProvider) {
		if dimensions > 0 {
			p.dimensions = dimensions
		}
	}
}

// WithAPIKey sets a bearer token for the backend. Empty means no auth header.
func WithAPIKey(key string) HTTPOption {
	return func(p *HTTPProvider) { p.apiKey = key }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(p *HTTPProvider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// NewHTTPProvider creates a provider that calls endpoint+"/embeddings".
func NewHTTPProvider(endpoint string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		endpoint:   endpoint,
		model:      defaultModel,
		dimensions: defaultDimensions,
		client:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape.
	Embedding []float32 `json:"embedding"`
}

// Embed requests an embedding for text. Transient backend failures (429, 5xx,
// connection errors) are retried with backoff; persistent failures are returned.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Input: text, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	url := p.endpoint + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}
		emb, retryable, err := p.doRequest(ctx, url, body)
		if err == nil {
			return emb, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("embedding backend: %w", lastErr)
}

func (p *HTTPProvider) doRequest(ctx context.Context, url string, body []byte) (emb []float32, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("backend returned %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("backend returned %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	switch {
	case len(out.Data) > 0 && len(out.Data[0].Embedding) > 0:
		emb = out.Data[0].Embedding
	case len(out.Embedding) > 0:
		emb = out.Embedding
	default:
		return nil, false, fmt.Errorf("backend returned no embedding")
	}
	if len(emb) != p.dimensions {
		return nil, false, fmt.Errorf("backend returned dimension %d, expected %d", len(emb), p.dimensions)
	}
	return emb, false, nil
}

// EmbedBatch embeds each text sequentially. Callers that want concurrency
// across chunks manage it themselves (see the pipeline package).
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (p *HTTPProvider) Dimensions() int {
	return p.dimensions
}

// Close is a no-op for HTTPProvider.
func (p *HTTPProvider) Close() error {
	return nil
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 250 * time.Millisecond
}
