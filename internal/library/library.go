// Package library indexes a directory of plain-text documents for semantic search.
package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/quillmind/recall/internal/embedding"
	"github.com/quillmind/recall/internal/models"
	"github.com/quillmind/recall/internal/pipeline"
	"github.com/quillmind/recall/internal/vectorstore"
)

// Collection is the vector store collection owned by this index.
const Collection = "library_content"

const (
	metaFilePath = "file_path"
	metaFileName = "file_name"
)

// FileReader reads document contents. Injected so tests and alternative
// sources do not need a real filesystem.
type FileReader interface {
	ReadFile(path string) (string, error)
}

// OSReader reads files from the local filesystem.
type OSReader struct{}

// ReadFile returns the contents of the file at path.
func (OSReader) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stats summarizes a full vectorization pass.
type Stats struct {
	Files   int `json:"files"`
	Chunks  int `json:"chunks"`
	Skipped int `json:"skipped"`
}

// Index chunks and embeds library documents, one source per file, keyed by
// the file's path relative to the library root.
type Index struct {
	store      vectorstore.Store
	provider   embedding.Provider
	pipe       *pipeline.Pipeline
	reader     FileReader
	extensions map[string]bool
	enabled    bool
	logger     *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a logger for per-file progress and skip events.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) { i.logger = l }
}

// WithReader replaces the filesystem reader.
func WithReader(r FileReader) Option {
	return func(i *Index) { i.reader = r }
}

// WithExtensions replaces the set of indexable file extensions.
func WithExtensions(exts []string) Option {
	return func(i *Index) {
		i.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			i.extensions[strings.ToLower(ext)] = true
		}
	}
}

// New creates a library index. When enabled is false, writes are skipped and
// searches return no results.
func New(store vectorstore.Store, provider embedding.Provider, pipe *pipeline.Pipeline, enabled bool, opts ...Option) *Index {
	idx := &Index{
		store:      store,
		provider:   provider,
		pipe:       pipe,
		reader:     OSReader{},
		extensions: map[string]bool{".md": true, ".txt": true},
		enabled:    enabled,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// VectorizeAll rebuilds the collection from every indexable file under root.
// The collection is cleared first so deleted files do not linger. Per-file
// failures are logged and skipped; cancellation is honored between files.
func (i *Index) VectorizeAll(ctx context.Context, root string) (Stats, error) {
	var stats Stats
	if !i.enabled {
		i.debug("semantic library disabled, skipping vectorization")
		return stats, nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return stats, fmt.Errorf("library root: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("library root %s is not a directory", root)
	}

	files, err := i.collectFiles(root)
	if err != nil {
		return stats, fmt.Errorf("walk library: %w", err)
	}

	if err := i.store.DeleteCollection(ctx, Collection); err != nil {
		return stats, fmt.Errorf("clear collection: %w", err)
	}
	if err := i.store.EnsureCollection(ctx, Collection); err != nil {
		return stats, fmt.Errorf("ensure collection: %w", err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		chunks, err := i.indexOne(ctx, root, path)
		if err != nil {
			i.warn("skipping file", path, err)
			stats.Skipped++
			continue
		}
		stats.Files++
		stats.Chunks += chunks
	}

	if i.logger != nil {
		i.logger.Info("library vectorized",
			zap.Int("files", stats.Files),
			zap.Int("chunks", stats.Chunks),
			zap.Int("skipped", stats.Skipped))
	}
	return stats, nil
}

// IndexFile indexes or re-indexes a single file under root, replacing any
// chunks previously stored for it.
func (i *Index) IndexFile(ctx context.Context, root, path string) error {
	if !i.enabled {
		return nil
	}
	if !i.indexable(path) {
		return nil
	}
	_, err := i.indexOne(ctx, root, path)
	return err
}

// RemoveFile drops all chunks stored for the file at path under root.
func (i *Index) RemoveFile(ctx context.Context, root, path string) error {
	if !i.enabled {
		return nil
	}
	id, err := sourceID(root, path)
	if err != nil {
		return err
	}
	return i.pipe.RemoveSource(ctx, Collection, id)
}

// Search returns up to limit document chunks ranked by similarity to query.
// Failures degrade to an empty result, logged, never a hard failure.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]*models.ContentMatch, error) {
	if !i.enabled {
		return nil, nil
	}
	emb, err := i.provider.Embed(ctx, query)
	if err != nil {
		i.warn("library search degraded", "", err)
		return nil, nil
	}
	results, err := i.store.Search(ctx, Collection, emb, limit, nil)
	if err != nil {
		i.warn("library search degraded", "", err)
		return nil, nil
	}

	matches := make([]*models.ContentMatch, 0, len(results))
	for _, r := range results {
		m := &models.ContentMatch{
			FilePath: r.Metadata[metaFilePath],
			FileName: r.Metadata[metaFileName],
			Content:  r.Metadata[pipeline.MetaContent],
			Score:    r.Score,
		}
		m.ChunkIndex, _ = strconv.Atoi(r.Metadata[pipeline.MetaChunkIndex])
		m.ChunkCount, _ = strconv.Atoi(r.Metadata[pipeline.MetaChunkCount])
		matches = append(matches, m)
	}
	return matches, nil
}

// Count returns the number of stored chunks; 0 when unavailable.
func (i *Index) Count(ctx context.Context) int {
	size, err := i.store.CollectionSize(ctx, Collection)
	if err != nil {
		i.warn("library count unavailable", "", err)
		return 0
	}
	return size
}

// Clear drops the entire library collection.
func (i *Index) Clear(ctx context.Context) error {
	return i.store.DeleteCollection(ctx, Collection)
}

func (i *Index) indexOne(ctx context.Context, root, path string) (int, error) {
	id, err := sourceID(root, path)
	if err != nil {
		return 0, err
	}
	content, err := i.reader.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	extra := models.Metadata{
		metaFilePath: id,
		metaFileName: filepath.Base(path),
	}
	res := i.pipe.IndexSource(ctx, Collection, id, content, extra)
	if res.Err != nil {
		return 0, res.Err
	}
	return res.Chunks, nil
}

func (i *Index) collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if i.indexable(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (i *Index) indexable(path string) bool {
	return i.extensions[strings.ToLower(filepath.Ext(path))]
}

// sourceID keys a file by its slash-separated path relative to root, so the
// index is stable across machines and root relocations.
func sourceID(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

func (i *Index) debug(msg string) {
	if i.logger != nil {
		i.logger.Debug(msg)
	}
}

func (i *Index) warn(msg, path string, err error) {
	if i.logger == nil {
		return
	}
	if path != "" {
		i.logger.Warn(msg, zap.String("path", path), zap.Error(err))
		return
	}
	i.logger.Warn(msg, zap.Error(err))
}
