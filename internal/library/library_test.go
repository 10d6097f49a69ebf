package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quillmind/recall/internal/chunker"
	"github.com/quillmind/recall/internal/embedding"
	"github.com/quillmind/recall/internal/pipeline"
	"github.com/quillmind/recall/internal/vectorstore"
)

func newTestIndex(t *testing.T, opts ...Option) (*Index, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	provider := embedding.NewMockProvider(32)
	pipe := pipeline.New(store, provider, chunker.New(100, 20))
	return New(store, provider, pipe, true, opts...), store
}

func writeLibrary(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestIndex_VectorizeAll(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	root := writeLibrary(t, map[string]string{
		"guide.md":        strings.Repeat("installation steps. ", 20),
		"notes/todo.txt":  "remember to rotate the certificates",
		"cover.jpg":       "binary junk",
		".hidden/x.md":    "should not be indexed",
		"readme.markdown": "wrong extension",
	})

	stats, err := idx.VectorizeAll(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 2 {
		t.Errorf("files = %d, want 2", stats.Files)
	}
	if stats.Chunks < 3 {
		t.Errorf("chunks = %d, want multi-chunk guide plus todo", stats.Chunks)
	}
	size, _ := store.CollectionSize(ctx, Collection)
	if size != stats.Chunks {
		t.Errorf("collection size = %d, stats.Chunks = %d", size, stats.Chunks)
	}

	item, err := store.GetItem(ctx, Collection, "notes/todo.txt#0000")
	if err != nil {
		t.Fatal(err)
	}
	if item.Metadata["file_name"] != "todo.txt" {
		t.Errorf("file_name = %q", item.Metadata["file_name"])
	}
}

func TestIndex_VectorizeAllClearsStaleContent(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	root := writeLibrary(t, map[string]string{"a.md": "first version", "b.md": "keep me"})
	if _, err := idx.VectorizeAll(ctx, root); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "a.md")); err != nil {
		t.Fatal(err)
	}

	stats, err := idx.VectorizeAll(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 1 {
		t.Errorf("files = %d", stats.Files)
	}
	if _, err := store.GetItem(ctx, Collection, "a.md#0000"); !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("deleted file still indexed: %v", err)
	}
}

type flakyReader struct{ failOn string }

func (r flakyReader) ReadFile(path string) (string, error) {
	if filepath.Base(path) == r.failOn {
		return "", errors.New("disk error")
	}
	return OSReader{}.ReadFile(path)
}

func TestIndex_VectorizeAllSkipsFailedFiles(t *testing.T) {
	idx, store := newTestIndex(t, WithReader(flakyReader{failOn: "bad.md"}))
	ctx := context.Background()

	root := writeLibrary(t, map[string]string{
		"bad.md":  "unreadable",
		"good.md": "readable content",
	})

	stats, err := idx.VectorizeAll(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 1 || stats.Skipped != 1 {
		t.Errorf("files = %d, skipped = %d", stats.Files, stats.Skipped)
	}
	if _, err := store.GetItem(ctx, Collection, "good.md#0000"); err != nil {
		t.Errorf("healthy file missing: %v", err)
	}
}

func TestIndex_VectorizeAllHonorsCancellation(t *testing.T) {
	idx, _ := newTestIndex(t)
	root := writeLibrary(t, map[string]string{"a.md": "aa", "b.md": "bb"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.VectorizeAll(ctx, root); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestIndex_VectorizeAllMissingRoot(t *testing.T) {
	idx, _ := newTestIndex(t)
	if _, err := idx.VectorizeAll(context.Background(), filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestIndex_IndexAndRemoveFile(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	root := writeLibrary(t, map[string]string{"doc.md": "watched content"})
	path := filepath.Join(root, "doc.md")

	if err := idx.IndexFile(ctx, root, path); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetItem(ctx, Collection, "doc.md#0000"); err != nil {
		t.Fatal(err)
	}

	if err := idx.RemoveFile(ctx, root, path); err != nil {
		t.Fatal(err)
	}
	size, _ := store.CollectionSize(ctx, Collection)
	if size != 0 {
		t.Errorf("size = %d after remove", size)
	}
}

func TestIndex_IndexFileIgnoresOtherExtensions(t *testing.T) {
	idx, store := newTestIndex(t)
	ctx := context.Background()

	root := writeLibrary(t, map[string]string{"img.png": "not text"})
	if err := idx.IndexFile(ctx, root, filepath.Join(root, "img.png")); err != nil {
		t.Fatal(err)
	}
	size, _ := store.CollectionSize(ctx, Collection)
	if size != 0 {
		t.Errorf("indexed %d items for an ignored extension", size)
	}
}

func TestIndex_Search(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	root := writeLibrary(t, map[string]string{
		"deploy.md": "how to deploy the service",
		"style.md":  "naming conventions for packages",
	})
	if _, err := idx.VectorizeAll(ctx, root); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Search(ctx, "how to deploy the service", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches", len(matches))
	}
	if matches[0].FilePath != "deploy.md" {
		t.Errorf("top match = %q", matches[0].FilePath)
	}
	if matches[0].Content == "" {
		t.Error("match content missing")
	}
	if matches[0].ChunkCount != 1 {
		t.Errorf("chunk count = %d", matches[0].ChunkCount)
	}
}

func TestIndex_Disabled(t *testing.T) {
	store, err := vectorstore.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	provider := embedding.NewMockProvider(16)
	pipe := pipeline.New(store, provider, chunker.New(100, 20))
	idx := New(store, provider, pipe, false)
	ctx := context.Background()

	root := writeLibrary(t, map[string]string{"a.md": "content"})
	stats, err := idx.VectorizeAll(ctx, root)
	if err != nil || stats.Files != 0 {
		t.Errorf("disabled vectorize: %+v, err=%v", stats, err)
	}
	matches, err := idx.Search(ctx, "content", 5)
	if err != nil || len(matches) != 0 {
		t.Errorf("disabled search: %d matches, err=%v", len(matches), err)
	}
}
