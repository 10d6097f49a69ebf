// Package server provides the HTTP API for Recall.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/quillmind/recall/internal/catalog"
	"github.com/quillmind/recall/internal/config"
	"github.com/quillmind/recall/internal/history"
	"github.com/quillmind/recall/internal/library"
	"github.com/quillmind/recall/internal/vectorstore"
)

// Server is the HTTP server for the Recall API.
type Server struct {
	store   vectorstore.Store
	history *history.Index
	library *library.Index
	catalog *catalog.Index
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server

	jobMu      sync.Mutex
	jobRunning bool
	lastJob    *vectorizeJob
}

type vectorizeJob struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Stats      *library.Stats `json:"stats,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store vectorstore.Store,
	hist *history.Index,
	lib *library.Index,
	cat *catalog.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:   store,
		history: hist,
		library: lib,
		catalog: cat,
		config:  cfg,
		logger:  logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/library/vectorize", s.handleLibraryVectorize)
	r.Post("/api/v1/library/search", s.handleLibrarySearch)
	r.Post("/api/v1/chat/messages", s.handleChatStore)
	r.Post("/api/v1/chat/search", s.handleChatSearch)
	r.Delete("/api/v1/chat/messages", s.handleChatClear)
	r.Put("/api/v1/catalog/tracks", s.handleCatalogIndex)
	r.Post("/api/v1/catalog/search", s.handleCatalogSearch)
	r.Delete("/api/v1/catalog/tracks/{id}", s.handleCatalogDelete)
	r.Get("/api/v1/collections", s.handleCollections)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
