// Package catalog indexes a media library for similarity search over tracks.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quillmind/recall/internal/embedding"
	"github.com/quillmind/recall/internal/models"
	"github.com/quillmind/recall/internal/vectorstore"
)

// Collection is the vector store collection owned by this index.
const Collection = "music_library"

const (
	metaArtist          = "artist"
	metaTitle           = "title"
	metaAlbum           = "album"
	metaDuration        = "duration"
	metaCharacteristics = "characteristics"
)

// Index stores one vector item per track, embedded from a short textual
// description, so "more like this" queries work over the whole catalog.
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

// New creates a catalog index. When enabled is false, writes are skipped and
// searches return no results.
func New(store vectorstore.Store, provider embedding.Provider, enabled bool, opts ...Option) *Index {
	idx := &Index{store: store, provider: provider, enabled: enabled}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// TrackText builds the text a track is embedded from: "Artist - Title",
// with descriptive characteristics on a second line when present.
func TrackText(t *models.Track) string {
	text := fmt.Sprintf("%s - %s", t.Artist, t.Title)
	if c := strings.TrimSpace(t.Characteristics); c != "" {
		text += "\n" + c
	}
	return text
}

// IndexTrack embeds and upserts a single track keyed by its id.
func (i *Index) IndexTrack(ctx context.Context, track *models.Track) error {
	if !i.enabled {
		return nil
	}
	if track.ID == "" {
		return fmt.Errorf("track has no id")
	}
	emb, err := i.provider.Embed(ctx, TrackText(track))
	if err != nil {
		return fmt.Errorf("embed track %s: %w", track.ID, err)
	}

	metadata := models.Metadata{
		metaArtist: track.Artist,
		metaTitle:  track.Title,
	}
	if track.Album != "" {
		metadata[metaAlbum] = track.Album
	}
	if track.Duration != "" {
		metadata[metaDuration] = track.Duration
	}
	if track.Characteristics != "" {
		metadata[metaCharacteristics] = track.Characteristics
	}

	item := &models.VectorItem{ID: track.ID, Embedding: emb, Metadata: metadata}
	if err := i.store.AddItem(ctx, Collection, item); err != nil {
		return fmt.Errorf("store track %s: %w", track.ID, err)
	}
	return nil
}

// IndexAll indexes every track, skipping and logging per-track failures.
// Returns the number indexed; cancellation is honored between tracks.
func (i *Index) IndexAll(ctx context.Context, tracks []*models.Track) (int, error) {
	if !i.enabled {
		return 0, nil
	}
	indexed := 0
	for _, track := range tracks {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		if err := i.IndexTrack(ctx, track); err != nil {
			i.warn("skipping track", err)
			continue
		}
		indexed++
	}
	return indexed, nil
}

// FindSimilarTracks returns up to limit tracks ranked by similarity to query.
// Failures degrade to an empty result, logged, never a hard failure.
func (i *Index) FindSimilarTracks(ctx context.Context, query string, limit int) ([]*models.Track, error) {
	if !i.enabled {
		return nil, nil
	}
	emb, err := i.provider.Embed(ctx, query)
	if err != nil {
		i.warn("catalog search degraded", err)
		return nil, nil
	}
	results, err := i.store.Search(ctx, Collection, emb, limit, nil)
	if err != nil {
		i.warn("catalog search degraded", err)
		return nil, nil
	}

	tracks := make([]*models.Track, 0, len(results))
	for _, r := range results {
		tracks = append(tracks, &models.Track{
			ID:              r.ID,
			Artist:          r.Metadata[metaArtist],
			Title:           r.Metadata[metaTitle],
			Album:           r.Metadata[metaAlbum],
			Duration:        r.Metadata[metaDuration],
			Characteristics: r.Metadata[metaCharacteristics],
			Score:           r.Score,
		})
	}
	return tracks, nil
}

// DeleteTrack removes a single track from the index.
func (i *Index) DeleteTrack(ctx context.Context, id string) error {
	return i.store.DeleteItems(ctx, Collection, []string{id})
}

// Count returns the number of indexed tracks; 0 when unavailable.
func (i *Index) Count(ctx context.Context) int {
	size, err := i.store.CollectionSize(ctx, Collection)
	if err != nil {
		i.warn("catalog count unavailable", err)
		return 0
	}
	return size
}

// Clear drops the entire catalog collection.
func (i *Index) Clear(ctx context.Context) error {
	return i.store.DeleteCollection(ctx, Collection)
}

func (i *Index) warn(msg string, err error) {
	if i.logger != nil {
		i.logger.Warn(msg, zap.Error(err))
	}
}
