package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/quillmind/recall/internal/models"
	"github.com/quillmind/recall/pkg/utils"
)

const defaultInitTimeout = 10 * time.Second

// SQLiteStore implements Store using a single SQLite database file.
// Schema creation runs once in the background, bounded by a timeout; every
// operation awaits that readiness gate and fails with ErrNotReady instead of
// blocking indefinitely when initialization is slow or broken.
type SQLiteStore struct {
	db          *sql.DB
	ready       chan struct{}
	initErr     error
	initTimeout time.Duration
	logger      *zap.Logger // optional; when set, logs init and self-check events
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets a logger for initialization and self-check reporting.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLiteStore) { s.logger = l }
}

// WithInitTimeout bounds background schema initialization.
func WithInitTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.initTimeout = d
		}
	}
}

// NewSQLiteStore opens or creates the database at dbPath and starts schema
// initialization in the background. Parent directories are created if absent.
// The returned store is usable immediately; operations block until the
// readiness gate resolves (at most the init timeout).
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{
		db:          db,
		ready:       make(chan struct{}),
		initTimeout: defaultInitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.initialize()
	return s, nil
}

// initialize runs schema creation bounded by the init timeout and resolves the
// readiness gate. A timeout leaves the store in a degraded state where every
// operation returns ErrNotReady.
func (s *SQLiteStore) initialize() {
	defer close(s.ready)

	done := make(chan error, 1)
	go func() { done <- s.initSchema() }()

	select {
	case err := <-done:
		if err != nil {
			s.initErr = fmt.Errorf("%w: %v", ErrNotReady, err)
			if s.logger != nil {
				s.logger.Error("vector store initialization failed", zap.Error(err))
			}
			return
		}
		if s.logger != nil {
			s.logger.Debug("vector store initialized")
		}
	case <-time.After(s.initTimeout):
		s.initErr = fmt.Errorf("%w: initialization timed out after %s", ErrNotReady, s.initTimeout)
		if s.logger != nil {
			s.logger.Warn("vector store initialization timed out", zap.Duration("timeout", s.initTimeout))
		}
	}
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS items (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		embedding BLOB NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_items_collection ON items(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ready blocks until initialization resolves and returns its result.
func (s *SQLiteStore) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureCollection creates the collection row if absent.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, dimension) VALUES (?, 0)`, name)
	return err
}

// AddItem upserts a single item.
func (s *SQLiteStore) AddItem(ctx context.Context, collection string, item *models.VectorItem) error {
	return s.AddItems(ctx, collection, []*models.VectorItem{item})
}

// AddItems upserts items in one transaction. Every embedding must match the
// collection's dimension; the first write to an empty collection fixes it.
func (s *SQLiteStore) AddItems(ctx context.Context, collection string, items []*models.VectorItem) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, dimension) VALUES (?, 0)`, collection); err != nil {
		return err
	}

	var dimension int
	if err := tx.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE name = ?`, collection).Scan(&dimension); err != nil {
		return err
	}
	if dimension == 0 {
		dimension = len(items[0].Embedding)
		if dimension == 0 {
			return fmt.Errorf("%w: empty embedding for item %q", ErrDimensionMismatch, items[0].ID)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE collections SET dimension = ? WHERE name = ?`, dimension, collection); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (collection, id, embedding, metadata) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET embedding = excluded.embedding, metadata = excluded.metadata`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		if len(item.Embedding) != dimension {
			return fmt.Errorf("%w: item %q has dimension %d, collection %q expects %d",
				ErrDimensionMismatch, item.ID, len(item.Embedding), collection, dimension)
		}
		metadataJSON, err := marshalMetadata(item.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for item %q: %w", item.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, item.ID, encodeEmbedding(item.Embedding), metadataJSON); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search scans every item in the collection, scores it by cosine similarity to
// query, and returns the top results sorted descending. Ties keep original
// insertion order (stable sort over a rowid-ordered scan). filter, when
// non-nil, excludes items before ranking.
func (s *SQLiteStore) Search(ctx context.Context, collection string, query []float32, limit int, filter models.Filter) ([]*models.SearchResult, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding, metadata FROM items WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		var id string
		var blob []byte
		var metadataJSON string
		if err := rows.Scan(&id, &blob, &metadataJSON); err != nil {
			return nil, err
		}
		metadata, err := unmarshalMetadata(metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for item %q: %w", id, err)
		}
		if filter != nil && !filter(metadata) {
			continue
		}
		results = append(results, &models.SearchResult{
			ID:       id,
			Score:    utils.CosineSimilarity(query, decodeEmbedding(blob)),
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// GetItem returns the item by id, or ErrNotFound.
func (s *SQLiteStore) GetItem(ctx context.Context, collection, id string) (*models.VectorItem, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	var blob []byte
	var metadataJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding, metadata FROM items WHERE collection = ? AND id = ?`,
		collection, id).Scan(&blob, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: item %q in collection %q", ErrNotFound, id, collection)
	}
	if err != nil {
		return nil, err
	}
	metadata, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for item %q: %w", id, err)
	}
	return &models.VectorItem{ID: id, Embedding: decodeEmbedding(blob), Metadata: metadata}, nil
}

// DeleteItems removes items by id in one transaction.
func (s *SQLiteStore) DeleteItems(ctx context.Context, collection string, ids []string) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM items WHERE collection = ? AND id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, collection, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteItemsByPrefix removes every item whose id starts with prefix.
func (s *SQLiteStore) DeleteItemsByPrefix(ctx context.Context, collection, prefix string) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE collection = ? AND id LIKE ? ESCAPE '\'`,
		collection, escapeLike(prefix)+"%")
	return err
}

// CollectionSize returns the number of items in the collection.
func (s *SQLiteStore) CollectionSize(ctx context.Context, collection string) (int, error) {
	if err := s.Ready(ctx); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE collection = ?`, collection).Scan(&count)
	return count, err
}

// ListCollections returns all collection names in lexical order.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]string, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteCollection drops the collection and all member items. No-op if absent.
func (s *SQLiteStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE collection = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

const selfCheckCollection = "_selfcheck"

// SelfCheck writes a throwaway item into a scratch collection, reads it back,
// verifies the embedding round-trips bit-identically, and drops the scratch
// collection. It only reports; callers decide whether a failure matters.
func (s *SQLiteStore) SelfCheck(ctx context.Context) error {
	probe := &models.VectorItem{
		ID:        "probe",
		Embedding: []float32{0.25, -1.5, 3.0},
		Metadata:  models.Metadata{"check": "true"},
	}
	if err := s.AddItem(ctx, selfCheckCollection, probe); err != nil {
		return fmt.Errorf("self-check write: %w", err)
	}
	got, err := s.GetItem(ctx, selfCheckCollection, probe.ID)
	if err != nil {
		return fmt.Errorf("self-check read: %w", err)
	}
	if len(got.Embedding) != len(probe.Embedding) {
		return fmt.Errorf("self-check: embedding length changed: wrote %d, read %d",
			len(probe.Embedding), len(got.Embedding))
	}
	for i := range probe.Embedding {
		if got.Embedding[i] != probe.Embedding[i] {
			return fmt.Errorf("self-check: embedding[%d] changed: wrote %v, read %v",
				i, probe.Embedding[i], got.Embedding[i])
		}
	}
	if err := s.DeleteCollection(ctx, selfCheckCollection); err != nil {
		return fmt.Errorf("self-check cleanup: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("vector store self-check passed")
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalMetadata(m models.Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalMetadata(s string) (models.Metadata, error) {
	m := models.Metadata{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// escapeLike escapes LIKE wildcards so a prefix matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

var _ Store = (*SQLiteStore)(nil)
