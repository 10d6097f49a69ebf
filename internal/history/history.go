// Package history indexes conversational messages for semantic recall.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillmind/recall/internal/embedding"
	"github.com/quillmind/recall/internal/models"
	"github.com/quillmind/recall/internal/vectorstore"
)

// Collection is the vector store collection owned by this index.
const Collection = "chat_history"

const (
	metaRole      = "role"
	metaContent   = "content"
	metaTimestamp = "timestamp"
	metaModel     = "model"
)

// Index stores one vector item per chat message and answers "find prior
// messages similar to X" queries, optionally filtered by role.
type Index struct {
	store    vectorstore.Store
	provider embedding.Provider
	enabled  bool
	logger   *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a logger for degrade and skip events.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) { i.logger = l }
}

// New creates a chat history index. When enabled is false, writes are skipped
// and searches return no results.
func New(store vectorstore.Store, provider embedding.Provider, enabled bool, opts ...Option) *Index {
	idx := &Index{store: store, provider: provider, enabled: enabled}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// StoreMessage embeds the message content and upserts it under a fresh id.
// Returns the stored item id, or empty when the feature is disabled.
func (i *Index) StoreMessage(ctx context.Context, msg *models.ChatMessage) (string, error) {
	if !i.enabled {
		i.debug("semantic history disabled, skipping message")
		return "", nil
	}
	emb, err := i.provider.Embed(ctx, msg.Content)
	if err != nil {
		return "", fmt.Errorf("embed message: %w", err)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	metadata := models.Metadata{
		metaRole:      msg.Role,
		metaContent:   msg.Content,
		metaTimestamp: ts.Format(time.RFC3339Nano),
	}
	if msg.Model != "" {
		metadata[metaModel] = msg.Model
	}

	item := &models.VectorItem{
		ID:        uuid.New().String(),
		Embedding: emb,
		Metadata:  metadata,
	}
	if err := i.store.AddItem(ctx, Collection, item); err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}
	return item.ID, nil
}

// FindSimilar returns up to limit prior messages ranked by similarity to
// query. role, when non-empty, restricts results to that sender role.
// Failures degrade to an empty result, logged, never a hard failure.
func (i *Index) FindSimilar(ctx context.Context, query string, limit int, role string) ([]*models.ChatMessage, error) {
	if !i.enabled {
		return nil, nil
	}
	emb, err := i.provider.Embed(ctx, query)
	if err != nil {
		i.warn("chat history search degraded", err)
		return nil, nil
	}

	var filter models.Filter
	if role != "" {
		filter = func(m models.Metadata) bool { return m[metaRole] == role }
	}
	results, err := i.store.Search(ctx, Collection, emb, limit, filter)
	if err != nil {
		i.warn("chat history search degraded", err)
		return nil, nil
	}

	messages := make([]*models.ChatMessage, 0, len(results))
	for _, r := range results {
		msg := &models.ChatMessage{
			Role:    r.Metadata[metaRole],
			Content: r.Metadata[metaContent],
			Model:   r.Metadata[metaModel],
			Score:   r.Score,
		}
		if ts, err := time.Parse(time.RFC3339Nano, r.Metadata[metaTimestamp]); err == nil {
			msg.Timestamp = ts
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Count returns the number of stored messages; 0 when unavailable.
func (i *Index) Count(ctx context.Context) int {
	size, err := i.store.CollectionSize(ctx, Collection)
	if err != nil {
		i.warn("chat history count unavailable", err)
		return 0
	}
	return size
}

// Clear drops the entire chat history collection.
func (i *Index) Clear(ctx context.Context) error {
	return i.store.DeleteCollection(ctx, Collection)
}

func (i *Index) debug(msg string) {
	if i.logger != nil {
		i.logger.Debug(msg)
	}
}

func (i *Index) warn(msg string, err error) {
	if i.logger != nil {
		i.logger.Warn(msg, zap.Error(err))
	}
}
