// Package main is the Recall CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/quillmind/recall/internal/catalog"
	"github.com/quillmind/recall/internal/chunker"
	"github.com/quillmind/recall/internal/config"
	"github.com/quillmind/recall/internal/embedding"
	"github.com/quillmind/recall/internal/history"
	"github.com/quillmind/recall/internal/library"
	"github.com/quillmind/recall/internal/models"
	"github.com/quillmind/recall/internal/pipeline"
	"github.com/quillmind/recall/internal/server"
	"github.com/quillmind/recall/internal/vectorstore"
	"github.com/quillmind/recall/internal/watcher"
	"github.com/quillmind/recall/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/recall/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Best effort; the API key for the embedding backend may live in a .env file.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "vectorize":
		runVectorize()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("recall version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: recall <command> [flags]

Commands:
  server      start the HTTP API server
  vectorize   rebuild the library index from the document root
  search      query one of the semantic indexes
  status      show index sizes and configuration
  version     print the version
  help        show this help
`)
}

// components bundles everything built from config, so every subcommand wires
// the same stack.
type components struct {
	Store    vectorstore.Store
	Provider embedding.Provider
	History  *history.Index
	Library  *library.Index
	Catalog  *catalog.Index
}

func (c *components) Close() {
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := vectorstore.NewSQLiteStore(cfg.Storage.DatabasePath,
		vectorstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	opts := []embedding.HTTPOption{
		embedding.WithModel(cfg.Embedding.Model),
		embedding.WithDimensions(cfg.Embedding.Dimensions),
		embedding.WithTimeout(time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second),
	}
	if key := os.Getenv(cfg.Embedding.APIKeyEnv); key != "" {
		opts = append(opts, embedding.WithAPIKey(key))
	}
	var provider embedding.Provider = embedding.NewHTTPProvider(cfg.Embedding.Endpoint, opts...)
	provider = embedding.WithCache(provider, cfg.Embedding.CacheSize)

	enabled := cfg.Embedding.Enabled
	pipe := pipeline.New(store, provider,
		chunker.New(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		pipeline.WithLogger(logger),
		pipeline.WithConcurrency(cfg.Index.Concurrency))

	return &components{
		Store:    store,
		Provider: provider,
		History:  history.New(store, provider, enabled, history.WithLogger(logger)),
		Library: library.New(store, provider, pipe, enabled,
			library.WithLogger(logger),
			library.WithExtensions(cfg.Library.Extensions)),
		Catalog: catalog.New(store, provider, enabled, catalog.WithLogger(logger)),
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.Bool("embedding_enabled", cfg.Embedding.Enabled),
	)

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	// Probe the store before serving; a failure means searches will degrade,
	// but the server still comes up.
	readyCtx, readyCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := comps.Store.SelfCheck(readyCtx); err != nil {
		logger.Warn("Vector store self-check failed", zap.Error(err))
	}
	readyCancel()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Library.Watch && cfg.Embedding.Enabled && cfg.Library.Root != "" {
		startLibraryWatcher(watchCtx, cfg, comps, logger, debugMode)
	}

	srv := server.NewServer(comps.Store, comps.History, comps.Library, comps.Catalog, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// startLibraryWatcher keeps the library index in sync with file changes under
// the configured root for the lifetime of ctx.
func startLibraryWatcher(ctx context.Context, cfg *config.Config, comps *components, logger *zap.Logger, debugMode bool) {
	root := cfg.Library.Root
	var opts []watcher.Option
	if debugMode {
		opts = append(opts, watcher.WithLogger(logger))
	}
	w := watcher.New(root, cfg.Library.Extensions,
		func(path string) {
			if err := comps.Library.IndexFile(context.Background(), root, path); err != nil {
				logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if err := comps.Library.RemoveFile(context.Background(), root, path); err != nil {
				logger.Warn("watch remove file failed", zap.String("path", path), zap.Error(err))
			}
		},
		opts...)
	if err := w.Start(ctx); err != nil {
		logger.Warn("Failed to start library watcher", zap.Error(err))
		return
	}
	logger.Info("library watcher started", zap.String("root", root))
}

func runVectorize() {
	fs := flag.NewFlagSet("vectorize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	root := fs.String("root", "", "document root (default: library.root from config)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	target := cfg.Library.Root
	if *root != "" {
		target = *root
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "No library root configured; set library.root or pass -root")
		os.Exit(1)
	}
	if !cfg.Embedding.Enabled {
		fmt.Fprintln(os.Stderr, "Embeddings are disabled; set embedding.enabled: true")
		os.Exit(1)
	}

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer comps.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	stats, err := comps.Library.VectorizeAll(ctx, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Vectorization failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d files (%d chunks, %d skipped) in %s\n",
		stats.Files, stats.Chunks, stats.Skipped, time.Since(start).Round(time.Millisecond))
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8765", "server URL (empty = direct storage access)")
	index := fs.String("index", "library", "index to search: library, chat, or catalog")
	limit := fs.Int("limit", 10, "number of results")
	role := fs.String("role", "", "restrict chat results to a sender role")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: recall search [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: recall search [flags] <query>")
		os.Exit(1)
	}

	req := &models.SearchRequest{Query: query, Limit: *limit, Role: *role}

	var result interface{}
	var err error
	if *serverURL != "" {
		result, err = searchViaHTTP(*serverURL, *index, req)
	} else {
		result, err = searchDirect(*configPath, *index, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	printResults(result)
}

func searchViaHTTP(serverURL, index string, req *models.SearchRequest) (interface{}, error) {
	path, ok := map[string]string{
		"library": "/api/v1/library/search",
		"chat":    "/api/v1/chat/search",
		"catalog": "/api/v1/catalog/search",
	}[index]
	if !ok {
		return nil, fmt.Errorf("unknown index %q; use library, chat, or catalog", index)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return decodeSearchResponse(index, resp.Body)
}

func decodeSearchResponse(index string, r io.Reader) (interface{}, error) {
	switch index {
	case "library":
		var out struct {
			Matches []*models.ContentMatch `json:"matches"`
		}
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return out.Matches, nil
	case "chat":
		var out struct {
			Messages []*models.ChatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return out.Messages, nil
	default:
		var out struct {
			Tracks []*models.Track `json:"tracks"`
		}
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return out.Tracks, nil
	}
}

// searchDirect opens the store locally, for when the server is not running.
func searchDirect(configPath, index string, req *models.SearchRequest) (interface{}, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := req.Validate(cfg.Index.DefaultLimit, cfg.Index.MaxLimit); err != nil {
		return nil, err
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer comps.Close()

	ctx := context.Background()
	switch index {
	case "library":
		return comps.Library.Search(ctx, req.Query, req.Limit)
	case "chat":
		return comps.History.FindSimilar(ctx, req.Query, req.Limit, req.Role)
	case "catalog":
		return comps.Catalog.FindSimilarTracks(ctx, req.Query, req.Limit)
	default:
		return nil, fmt.Errorf("unknown index %q; use library, chat, or catalog", index)
	}
}

func printResults(result interface{}) {
	switch items := result.(type) {
	case []*models.ContentMatch:
		if len(items) == 0 {
			fmt.Println("No matches.")
			return
		}
		for i, m := range items {
			fmt.Printf("%d. %s (chunk %d/%d, score %.3f)\n   %s\n",
				i+1, m.FilePath, m.ChunkIndex+1, m.ChunkCount, m.Score, utils.Truncate(m.Content, 160))
		}
	case []*models.ChatMessage:
		if len(items) == 0 {
			fmt.Println("No matches.")
			return
		}
		for i, m := range items {
			fmt.Printf("%d. [%s] %s (score %.3f)\n", i+1, m.Role, utils.Truncate(m.Content, 160), m.Score)
		}
	case []*models.Track:
		if len(items) == 0 {
			fmt.Println("No matches.")
			return
		}
		for i, tr := range items {
			fmt.Printf("%d. %s - %s (score %.3f)\n", i+1, tr.Artist, tr.Title, tr.Score)
		}
	default:
		fmt.Printf("%v\n", result)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8765", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}
