// Package pipeline turns raw text into searchable vector items: it chunks the
// text, embeds each chunk, and persists the chunk set as one batch.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quillmind/recall/internal/chunker"
	"github.com/quillmind/recall/internal/embedding"
	"github.com/quillmind/recall/internal/models"
	"github.com/quillmind/recall/internal/vectorstore"
)

// Metadata keys written for every chunk item.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
	MetaChunkCount = "chunk_count"
	MetaContent    = "content"
)

const defaultConcurrency = 4

// Stage is the indexing state of a single source document.
type Stage int

const (
	StageIdle Stage = iota
	StageChunking
	StageEmbedding
	StagePersisting
	StageDone
	StageFailed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageChunking:
		return "chunking"
	case StageEmbedding:
		return "embedding"
	case StagePersisting:
		return "persisting"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports the outcome of indexing one source. Failed is terminal for
// that source only; batch callers continue with the next source.
type Result struct {
	SourceID string
	Stage    Stage
	Chunks   int
	Err      error
}

// Pipeline composes a chunker, an embedding provider, and the vector store.
type Pipeline struct {
	store       vectorstore.Store
	provider    embedding.Provider
	chunker     *chunker.Chunker
	concurrency int
	logger      *zap.Logger // optional; when set, logs stage transitions
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets a logger for per-source stage logging.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithConcurrency bounds the number of chunks embedded in parallel.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New creates a pipeline. The provider is injected explicitly; the pipeline
// never reaches for it through globals.
func New(store vectorstore.Store, provider embedding.Provider, ch *chunker.Chunker, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:       store,
		provider:    provider,
		chunker:     ch,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// sourceEscaper keeps "#" out of the escaped source id, so the separator in
// chunk item ids is unambiguous and one source's prefix can never cover
// another's (e.g. "a.md" vs "a.md#old.md").
var sourceEscaper = strings.NewReplacer("%", "%25", "#", "%23")

// ItemIDPrefix returns the id prefix shared by all chunk items of sourceID.
func ItemIDPrefix(sourceID string) string {
	return sourceEscaper.Replace(sourceID) + "#"
}

func chunkItemID(sourceID string, index int) string {
	return fmt.Sprintf("%s%04d", ItemIDPrefix(sourceID), index)
}

// IndexSource chunks text, embeds each chunk concurrently, and upserts the
// full chunk set in one batch. Prior items of the same source are deleted
// first so stale chunks never accumulate. extra metadata, when non-nil, is
// copied onto every chunk item alongside the standard chunk keys.
//
// The per-source state advances Idle -> Chunking -> Embedding -> Persisting
// -> Done, or Failed at whichever stage broke.
func (p *Pipeline) IndexSource(ctx context.Context, collection, sourceID, text string, extra models.Metadata) *Result {
	res := &Result{SourceID: sourceID, Stage: StageIdle}

	if err := p.store.DeleteItemsByPrefix(ctx, collection, ItemIDPrefix(sourceID)); err != nil {
		return p.fail(res, fmt.Errorf("delete prior items: %w", err))
	}

	p.advance(res, StageChunking)
	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		res.Stage = StageDone
		return res
	}

	p.advance(res, StageEmbedding)
	embeddings := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			emb, err := p.provider.Embed(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			embeddings[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return p.fail(res, err)
	}

	p.advance(res, StagePersisting)
	items := make([]*models.VectorItem, len(chunks))
	for i, chunk := range chunks {
		metadata := models.Metadata{
			MetaSource:     sourceID,
			MetaChunkIndex: strconv.Itoa(i),
			MetaChunkCount: strconv.Itoa(len(chunks)),
			MetaContent:    chunk,
		}
		for k, v := range extra {
			metadata[k] = v
		}
		items[i] = &models.VectorItem{
			ID:        chunkItemID(sourceID, i),
			Embedding: embeddings[i],
			Metadata:  metadata,
		}
	}
	if err := p.store.AddItems(ctx, collection, items); err != nil {
		return p.fail(res, fmt.Errorf("persist chunks: %w", err))
	}

	res.Stage = StageDone
	res.Chunks = len(chunks)
	if p.logger != nil {
		p.logger.Debug("source indexed",
			zap.String("source", sourceID),
			zap.String("collection", collection),
			zap.Int("chunks", len(chunks)),
		)
	}
	return res
}

// RemoveSource deletes every chunk item belonging to sourceID.
func (p *Pipeline) RemoveSource(ctx context.Context, collection, sourceID string) error {
	return p.store.DeleteItemsByPrefix(ctx, collection, ItemIDPrefix(sourceID))
}

func (p *Pipeline) advance(res *Result, stage Stage) {
	res.Stage = stage
	if p.logger != nil {
		p.logger.Debug("pipeline stage", zap.String("source", res.SourceID), zap.Stringer("stage", stage))
	}
}

func (p *Pipeline) fail(res *Result, err error) *Result {
	res.Err = err
	if p.logger != nil {
		p.logger.Warn("pipeline source failed",
			zap.String("source", res.SourceID),
			zap.Stringer("stage", res.Stage),
			zap.Error(err),
		)
	}
	res.Stage = StageFailed
	return res
}
