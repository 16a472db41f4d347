// Package api serves the workspace command service over HTTP.
package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/corvex/corvex/internal/auth"
	"github.com/corvex/corvex/internal/events"
	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/metrics"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/protocol"
	"github.com/corvex/corvex/internal/store"
	"github.com/corvex/corvex/internal/tree"
)

const maxContentSize = 10 << 20

var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Server is the HTTP server.
type Server struct {
	store       store.Store
	auth        *auth.Auth
	broadcaster *events.Broadcaster
}

// NewServer creates a new server. A nil authHandler serves every route
// without authentication.
func NewServer(st store.Store, authHandler *auth.Auth, broadcaster *events.Broadcaster) *Server {
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster()
	}
	return &Server{
		store:       st,
		auth:        authHandler,
		broadcaster: broadcaster,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("GET /api/v1/tree", s.protect(s.handleTree))
	mux.Handle("GET /api/v1/events", s.protect(s.handleEvents))

	mux.Handle("POST /api/v1/files/{path...}", s.protect(s.handleCreate(models.KindFile)))
	mux.Handle("POST /api/v1/folders/{path...}", s.protect(s.handleCreate(models.KindFolder)))
	mux.Handle("DELETE /api/v1/files/{path...}", s.protect(s.handleDelete(models.KindFile)))
	mux.Handle("DELETE /api/v1/folders/{path...}", s.protect(s.handleDelete(models.KindFolder)))

	mux.Handle("POST /api/v1/rename", s.protect(s.handlePathChange(protocol.EventRename)))
	mux.Handle("POST /api/v1/move", s.protect(s.handlePathChange(protocol.EventMove)))

	mux.Handle("GET /api/v1/content/{path...}", s.protect(s.handleGetContent))
	mux.Handle("PUT /api/v1/content/{path...}", s.protect(s.handlePutContent))

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.Middleware(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "store": s.store.Type()})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported", models.ErrRemoteUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.broadcaster.Subscribe()
	defer sub.Close()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := events.WriteSSE(w, event); err != nil {
				logging.Debug("event stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) publish(event protocol.ChangeEvent) {
	if dropped := s.broadcaster.Publish(event); dropped > 0 {
		logging.Debug("change event dropped for slow subscribers",
			zap.String("type", event.Type),
			zap.String("path", event.Path),
			zap.Int("subscribers", dropped))
	}
}

// ─── Tree ───────────────────────────────────────────────────────────────────

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	root, err := s.store.ListAll(r.Context())
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}

	resp := protocol.TreeResponse{Root: root}

	w.Header().Set("Content-Type", "application/json")
	if acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzipPool.Get().(*gzip.Writer)
		gw.Reset(w)
		json.NewEncoder(gw).Encode(resp)
		gw.Close()
		gzipPool.Put(gw)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

// ─── Mutations ──────────────────────────────────────────────────────────────

func (s *Server) handleCreate(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.PathValue("path")
		if err := checkPath("create", path); err != nil {
			s.sendStoreError(w, r, err)
			return
		}

		var err error
		if kind == models.KindFolder {
			err = s.store.CreateFolder(r.Context(), path)
		} else {
			err = s.store.CreateFile(r.Context(), path)
		}
		if err != nil {
			s.sendStoreError(w, r, err)
			return
		}

		s.publish(events.Created(kind, path))
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) handleDelete(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.PathValue("path")
		if err := checkPath("delete", path); err != nil {
			s.sendStoreError(w, r, err)
			return
		}

		var err error
		if kind == models.KindFolder {
			err = s.store.DeleteFolder(r.Context(), path)
		} else {
			err = s.store.DeleteFile(r.Context(), path)
		}
		if err != nil {
			s.sendStoreError(w, r, err)
			return
		}

		s.publish(events.Deleted(kind, path))
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePathChange serves rename and move. Both carry the full old and new
// paths; a rename keeps the parent, a move keeps the name.
func (s *Server) handlePathChange(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.PathChangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendStoreError(w, r, fmt.Errorf("decode request: %w", models.ErrInvalid))
			return
		}
		if err := checkPath(eventType, req.OldPath); err != nil {
			s.sendStoreError(w, r, err)
			return
		}
		if err := checkPath(eventType, req.NewPath); err != nil {
			s.sendStoreError(w, r, err)
			return
		}

		kind := models.ParseKind(req.Kind)
		ctx := r.Context()
		var err error
		switch {
		case eventType == protocol.EventRename && tree.ParentID(req.OldPath) != tree.ParentID(req.NewPath):
			err = fmt.Errorf("rename %q to %q changes parent: %w", req.OldPath, req.NewPath, models.ErrInvalid)
		case eventType == protocol.EventMove && tree.Name(req.OldPath) != tree.Name(req.NewPath):
			err = fmt.Errorf("move %q to %q changes name: %w", req.OldPath, req.NewPath, models.ErrInvalid)
		case eventType == protocol.EventRename && kind == models.KindFolder:
			err = s.store.RenameFolder(ctx, req.OldPath, req.NewPath)
		case eventType == protocol.EventRename:
			err = s.store.RenameFile(ctx, req.OldPath, req.NewPath)
		case kind == models.KindFolder:
			err = s.store.MoveFolder(ctx, req.OldPath, req.NewPath)
		default:
			err = s.store.MoveFile(ctx, req.OldPath, req.NewPath)
		}
		if err != nil {
			s.sendStoreError(w, r, err)
			return
		}

		s.publish(events.Relocated(eventType, kind, req.OldPath, req.NewPath))
		w.WriteHeader(http.StatusNoContent)
	}
}

// ─── Content ────────────────────────────────────────────────────────────────

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if err := checkPath("read", path); err != nil {
		s.sendStoreError(w, r, err)
		return
	}

	text, err := s.store.GetFileContent(r.Context(), path)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.ContentResponse{Path: path, Content: text})
}

func (s *Server) handlePutContent(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if err := checkPath("write", path); err != nil {
		s.sendStoreError(w, r, err)
		return
	}

	var req protocol.ContentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContentSize)).Decode(&req); err != nil {
		s.sendStoreError(w, r, fmt.Errorf("decode request: %v: %w", err, models.ErrInvalid))
		return
	}

	if err := s.store.SaveFileContent(r.Context(), path, req.Content); err != nil {
		s.sendStoreError(w, r, err)
		return
	}

	s.publish(events.Modified(path))
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// checkPath rejects the root and malformed paths before they reach the store.
func checkPath(op, path string) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("%s root: %w", op, models.ErrPermissionDenied)
	}
	if !tree.ValidPath(path) {
		return fmt.Errorf("%s %q: %w", op, path, models.ErrInvalid)
	}
	return nil
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func statusFor(kind error) int {
	switch kind {
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrConflict:
		return http.StatusConflict
	case models.ErrPermissionDenied:
		return http.StatusForbidden
	case models.ErrInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendStoreError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	code := statusFor(kind)
	if errors.Is(err, models.ErrRemoteUnavailable) {
		code = http.StatusServiceUnavailable
	}

	log := logging.WithContext(r.Context())
	if code >= 500 {
		log.Error("store operation failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}

	s.sendError(w, code, err.Error(), kind)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string, kind error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
		Kind:  models.KindName(kind),
	})
}
