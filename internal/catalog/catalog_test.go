package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/quillmind/recall/internal/embedding"
	"github.com/quillmind/recall/internal/models"
	"github.com/quillmind/recall/internal/vectorstore"
)

func newTestIndex(t *testing.T, enabled bool) (*Index, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, embedding.NewMockProvider(32), enabled), store
}

func someTracks() []*models.Track {
	return []*models.Track{
		{ID: "t1", Artist: "Miles Davis", Title: "So What", Album: "Kind of Blue", Characteristics: "modal jazz, relaxed"},
		{ID: "t2", Artist: "John Coltrane", Title: "Giant Steps", Characteristics: "fast bebop"},
		{ID: "t3", Artist: "Aphex Twin", Title: "Xtal", Characteristics: "ambient electronic"},
	}
}

func TestTrackText(t *testing.T) {
	track := &models.Track{Artist: "Miles Davis", Title: "So What", Characteristics: "modal jazz"}
	if got := TrackText(track); got != "Miles Davis - So What\nmodal jazz" {
		t.Errorf("TrackText = %q", got)
	}
	plain := &models.Track{Artist: "A", Title: "B"}
	if got := TrackText(plain); got != "A - B" {
		t.Errorf("TrackText = %q", got)
	}
}

func TestIndex_IndexAndFind(t *testing.T) {
	idx, _ := newTestIndex(t, true)
	ctx := context.Background()

	n, err := idx.IndexAll(ctx, someTracks())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("indexed = %d", n)
	}

	// The mock provider is deterministic, so querying with a track's own
	// embedding text must rank that track first.
	tracks, err := idx.FindSimilarTracks(ctx, "Miles Davis - So What\nmodal jazz, relaxed", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks", len(tracks))
	}
	if tracks[0].ID != "t1" {
		t.Errorf("top track = %s", tracks[0].ID)
	}
	if tracks[0].Album != "Kind of Blue" {
		t.Errorf("album = %q", tracks[0].Album)
	}
	if tracks[0].Score <= tracks[1].Score {
		t.Errorf("scores not descending: %f, %f", tracks[0].Score, tracks[1].Score)
	}
}

func TestIndex_IndexTrackUpserts(t *testing.T) {
	idx, store := newTestIndex(t, true)
	ctx := context.Background()

	track := &models.Track{ID: "t1", Artist: "A", Title: "B"}
	if err := idx.IndexTrack(ctx, track); err != nil {
		t.Fatal(err)
	}
	track.Characteristics = "updated"
	if err := idx.IndexTrack(ctx, track); err != nil {
		t.Fatal(err)
	}

	size, _ := store.CollectionSize(ctx, Collection)
	if size != 1 {
		t.Errorf("size = %d after re-index", size)
	}
	item, err := store.GetItem(ctx, Collection, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if item.Metadata["characteristics"] != "updated" {
		t.Errorf("characteristics = %q", item.Metadata["characteristics"])
	}
}

func TestIndex_IndexTrackRequiresID(t *testing.T) {
	idx, _ := newTestIndex(t, true)
	if err := idx.IndexTrack(context.Background(), &models.Track{Artist: "A", Title: "B"}); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestIndex_IndexAllSkipsFailures(t *testing.T) {
	store, err := vectorstore.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	idx := New(store, embedding.NewMockProvider(16), true)
	ctx := context.Background()

	tracks := []*models.Track{
		{ID: "ok", Artist: "A", Title: "B"},
		{Artist: "no", Title: "id"}, // fails, skipped
		{ID: "ok2", Artist: "C", Title: "D"},
	}
	n, err := idx.IndexAll(ctx, tracks)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("indexed = %d", n)
	}
}

func TestIndex_IndexAllHonorsCancellation(t *testing.T) {
	idx, _ := newTestIndex(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.IndexAll(ctx, someTracks()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestIndex_DeleteTrack(t *testing.T) {
	idx, _ := newTestIndex(t, true)
	ctx := context.Background()

	if _, err := idx.IndexAll(ctx, someTracks()); err != nil {
		t.Fatal(err)
	}
	if err := idx.DeleteTrack(ctx, "t2"); err != nil {
		t.Fatal(err)
	}
	if n := idx.Count(ctx); n != 2 {
		t.Errorf("count = %d after delete", n)
	}
}

func TestIndex_Disabled(t *testing.T) {
	idx, store := newTestIndex(t, false)
	ctx := context.Background()

	n, err := idx.IndexAll(ctx, someTracks())
	if err != nil || n != 0 {
		t.Errorf("disabled index: n=%d err=%v", n, err)
	}
	size, _ := store.CollectionSize(ctx, Collection)
	if size != 0 {
		t.Errorf("disabled index wrote %d items", size)
	}
	tracks, err := idx.FindSimilarTracks(ctx, "anything", 5)
	if err != nil || len(tracks) != 0 {
		t.Errorf("disabled search: %d tracks, err=%v", len(tracks), err)
	}
}
