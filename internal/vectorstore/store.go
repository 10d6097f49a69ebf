// Package vectorstore provides durable, collection-partitioned storage of
// embeddings with brute-force cosine similarity search.
package vectorstore

import (
	"context"
	"errors"

	"github.com/quillmind/recall/internal/models"
)

var (
	// ErrNotFound is returned when an item or collection does not exist.
	ErrNotFound = errors.New("vectorstore: not found")
	// ErrNotReady is returned when the store is used before background
	// initialization has completed, or after initialization timed out.
	ErrNotReady = errors.New("vectorstore: store not ready")
	// ErrDimensionMismatch is returned when an embedding's length disagrees
	// with the collection's established dimension.
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")
)

// Store is durable storage of vector items partitioned into named collections.
// All items in one collection share a single embedding dimension, fixed by the
// first write. Writes upsert by id.
type Store interface {
	// Ready blocks until background initialization completes (or ctx is done)
	// and returns the initialization result.
	Ready(ctx context.Context) error

	// EnsureCollection creates the collection if absent. Idempotent.
	EnsureCollection(ctx context.Context, name string) error

	// AddItem upserts a single item into the collection.
	AddItem(ctx context.Context, collection string, item *models.VectorItem) error

	// AddItems upserts items in a single transaction; a failure leaves the
	// collection without any of the batch applied.
	AddItems(ctx context.Context, collection string, items []*models.VectorItem) error

	// Search ranks every item in the collection by cosine similarity to query,
	// descending, and returns at most limit results. filter, when non-nil, is
	// applied to item metadata before ranking. Ties keep insertion order.
	Search(ctx context.Context, collection string, query []float32, limit int, filter models.Filter) ([]*models.SearchResult, error)

	// GetItem returns the item by id, or ErrNotFound.
	GetItem(ctx context.Context, collection, id string) (*models.VectorItem, error)

	// DeleteItems removes items by id in one transaction. Absent ids are ignored.
	DeleteItems(ctx context.Context, collection string, ids []string) error

	// DeleteItemsByPrefix removes every item whose id starts with prefix.
	// Used to drop all chunks of one source document before re-indexing it.
	DeleteItemsByPrefix(ctx context.Context, collection, prefix string) error

	// CollectionSize returns the number of items in the collection (0 if absent).
	CollectionSize(ctx context.Context, collection string) (int, error)

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection drops the collection and all member items. No-op if absent.
	DeleteCollection(ctx context.Context, name string) error

	// SelfCheck verifies read/write integrity by round-tripping a throwaway
	// item through a scratch collection. It reports failure, never panics.
	SelfCheck(ctx context.Context) error

	Close() error
}
