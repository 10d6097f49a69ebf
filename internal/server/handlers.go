package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quillmind/recall/internal/models"
	"github.com/quillmind/recall/internal/vectorstore"
)

func (s *Server) handleLibrarySearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Index.DefaultLimit, s.config.Index.MaxLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("library search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	matches, err := s.library.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.logger.Error("library search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"matches": matches, "count": len(matches)})
}

func (s *Server) handleLibraryVectorize(w http.ResponseWriter, r *http.Request) {
	root := s.config.Library.Root
	if root == "" {
		s.respondError(w, http.StatusBadRequest, "no library root configured")
		return
	}

	s.jobMu.Lock()
	if s.jobRunning {
		s.jobMu.Unlock()
		s.respondError(w, http.StatusConflict, "vectorization already running")
		return
	}
	job := &vectorizeJob{StartedAt: time.Now()}
	s.jobRunning = true
	s.lastJob = job
	s.jobMu.Unlock()

	s.logger.Info("library vectorization started", zap.String("root", root))
	go func() {
		stats, err := s.library.VectorizeAll(context.Background(), root)
		now := time.Now()

		s.jobMu.Lock()
		s.jobRunning = false
		job.FinishedAt = &now
		job.Stats = &stats
		if err != nil {
			job.Error = err.Error()
		}
		s.jobMu.Unlock()

		if err != nil {
			s.logger.Error("library vectorization failed", zap.Error(err))
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleChatStore(w http.ResponseWriter, r *http.Request) {
	var msg models.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg.Role == "" || msg.Content == "" {
		s.respondError(w, http.StatusBadRequest, "role and content are required")
		return
	}
	id, err := s.history.StoreMessage(r.Context(), &msg)
	if err != nil {
		s.logger.Error("store message failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if id == "" {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "stored"})
}

func (s *Server) handleChatSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Index.DefaultLimit, s.config.Index.MaxLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("chat search request", zap.String("query", req.Query), zap.String("role", req.Role))
	messages, err := s.history.FindSimilar(r.Context(), req.Query, req.Limit, req.Role)
	if err != nil {
		s.logger.Error("chat search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"messages": messages, "count": len(messages)})
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(r.Context()); err != nil {
		s.logger.Error("chat clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCatalogIndex(w http.ResponseWriter, r *http.Request) {
	var track models.Track
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if track.ID == "" || track.Artist == "" || track.Title == "" {
		s.respondError(w, http.StatusBadRequest, "id, artist and title are required")
		return
	}
	if err := s.catalog.IndexTrack(r.Context(), &track); err != nil {
		s.logger.Error("index track failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": track.ID, "status": "indexed"})
}

func (s *Server) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Index.DefaultLimit, s.config.Index.MaxLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tracks, err := s.catalog.FindSimilarTracks(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.logger.Error("catalog search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks, "count": len(tracks)})
}

func (s *Server) handleCatalogDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete track request", zap.String("id", id))
	if err := s.catalog.DeleteTrack(r.Context(), id); err != nil {
		s.logger.Error("delete track failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := s.store.ListCollections(ctx)
	if err != nil {
		s.logger.Error("list collections failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	collections := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		size, err := s.store.CollectionSize(ctx, name)
		if err != nil {
			s.logger.Error("collection size failed", zap.String("collection", name), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		collections = append(collections, map[string]interface{}{"name": name, "items": size})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collections": collections})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ready(ctx); err != nil {
		status := http.StatusServiceUnavailable
		body := map[string]string{"status": "initializing"}
		if errors.Is(err, vectorstore.ErrNotReady) {
			body["error"] = err.Error()
		}
		s.respondJSON(w, status, body)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := map[string]interface{}{
		"embedding_enabled": s.config.Embedding.Enabled,
		"messages":          s.history.Count(ctx),
		"chunks":            s.library.Count(ctx),
		"tracks":            s.catalog.Count(ctx),
	}
	resp["config"] = map[string]interface{}{
		"embedding_model":      s.config.Embedding.Model,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"chunk_size":           s.config.Index.ChunkSize,
		"chunk_overlap":        s.config.Index.ChunkOverlap,
		"database_path":        s.config.Storage.DatabasePath,
		"library_root":         s.config.Library.Root,
	}

	// Copy the job under the lock; the vectorize goroutine mutates it in place.
	s.jobMu.Lock()
	if s.lastJob != nil {
		job := *s.lastJob
		resp["vectorize"] = &job
		resp["vectorize_running"] = s.jobRunning
	}
	s.jobMu.Unlock()

	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
