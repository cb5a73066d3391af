// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/linesight/internal/config"
	"github.com/jeranaias/linesight/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxQueryLength is the maximum length for a query.
	MaxQueryLength = 10000

	// MaxRequestBodySize is the maximum size for request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// COLLABORATOR INTERFACES
// ============================================================================

// QueryEngine runs one query turn, emitting stream events.
type QueryEngine interface {
	ProcessQuery(ctx context.Context, query string, reqCtx model.RequestContext, emit func(model.StreamEvent) error) error
}

// ConversationStore is the slice of the store the HTTP surface needs.
type ConversationStore interface {
	ListConversations(ctx context.Context, sessionID string) ([]model.Conversation, error)
	History(ctx context.Context, conversationID, sessionID string, limit int) ([]model.Message, error)
	UpdateTitle(ctx context.Context, conversationID, sessionID, title string) error
	DeleteConversation(ctx context.Context, conversationID, sessionID string) error
	DeleteAllForSession(ctx context.Context, sessionID string) (int64, error)
}

// HealthChecker reports whether a downstream dependency is reachable.
type HealthChecker interface {
	CheckRunning(ctx context.Context) error
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP surface over the agent pipeline.
type Server struct {
	cfg    *config.Config
	engine QueryEngine
	store  ConversationStore
	vector HealthChecker
	router *http.ServeMux
	server *http.Server
}

// NewServer wires the agent engine and conversation store into an HTTP
// server configured by cfg.
func NewServer(cfg *config.Config, engine QueryEngine, store ConversationStore) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		store:  store,
		router: http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// WithVectorHealth attaches a vector-store health check to /health.
func (s *Server) WithVectorHealth(hc HealthChecker) *Server {
	s.vector = hc
	return s
}

// Handler returns the fully wrapped HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	handler := Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		CORSMiddleware(NewCORSConfig(s.cfg.Server.CORSOrigins)),
		LoggingMiddleware(log.Default()),
		RateLimitMiddleware(NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst)),
	)(s.router)
	return handler
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /agent/query", s.handleAgentQuery)

	s.router.HandleFunc("GET /conversations", s.handleListConversations)
	s.router.HandleFunc("GET /conversations/{id}/messages", s.handleConversationMessages)
	s.router.HandleFunc("PUT /conversations/{id}/title", s.handleUpdateTitle)
	s.router.HandleFunc("DELETE /conversations/{id}", s.handleDeleteConversation)
	s.router.HandleFunc("DELETE /conversations", s.handleDeleteAll)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /about", s.handleAbout)
}

// ============================================================================
// AGENT QUERY HANDLER (SSE)
// ============================================================================

// handleAgentQuery handles GET /agent/query. The response is a server-sent
// event stream of JSON events: a conversation_id event first, then status,
// chunk, and error events, terminated by exactly one done event.
func (s *Server) handleAgentQuery(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	if len(query) > MaxQueryLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("query exceeds maximum length of %d", MaxQueryLength))
		return
	}

	sessionID := sessionFrom(r)
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	reqCtx := model.RequestContext{
		SessionID:      sessionID,
		ConversationID: r.URL.Query().Get("conversation_id"),
	}

	err := s.engine.ProcessQuery(r.Context(), query, reqCtx, func(ev model.StreamEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// The caller went away mid-stream; nothing more can be delivered.
		log.Printf("STREAM_ABORT | session=%s err=%v", sessionID, err)
	}
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

// handleListConversations handles GET /conversations.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	conversations, err := s.store.ListConversations(r.Context(), sessionID)
	if err != nil {
		log.Printf("LIST_FAIL | session=%s err=%v", sessionID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// handleConversationMessages handles GET /conversations/{id}/messages.
func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	conversationID := r.PathValue("id")

	messages, err := s.store.History(r.Context(), conversationID, sessionID, 0)
	if err != nil {
		log.Printf("HISTORY_FAIL | conversation=%s err=%v", conversationID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// titleUpdateRequest is the body of PUT /conversations/{id}/title.
type titleUpdateRequest struct {
	Title string `json:"title"`
}

// handleUpdateTitle handles PUT /conversations/{id}/title.
func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	conversationID := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req titleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := s.store.UpdateTitle(r.Context(), conversationID, sessionID, title); err != nil {
		log.Printf("TITLE_FAIL | conversation=%s err=%v", conversationID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to update title")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteConversation handles DELETE /conversations/{id}.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	conversationID := r.PathValue("id")

	if err := s.store.DeleteConversation(r.Context(), conversationID, sessionID); err != nil {
		log.Printf("DELETE_FAIL | conversation=%s err=%v", conversationID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteAll handles DELETE /conversations.
func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	deleted, err := s.store.DeleteAllForSession(r.Context(), sessionID)
	if err != nil {
		log.Printf("DELETE_ALL_FAIL | session=%s err=%v", sessionID, err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete conversations")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": deleted})
}

// ============================================================================
// HEALTH AND ABOUT HANDLERS
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	VectorStatus string `json:"vector_status"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:  "ok",
		Version: Version,
	}

	if s.vector != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.vector.CheckRunning(ctx); err == nil {
			health.VectorStatus = "ok"
		} else {
			health.VectorStatus = "unavailable"
			health.Status = "degraded"
		}
	} else {
		health.VectorStatus = "not_configured"
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleAbout handles GET /about.
func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"name":    "linesight",
		"version": Version,
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.cfg.Addr(),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: /agent/query streams for as long as
		// synthesis runs.
		IdleTimeout: 120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", s.cfg.Addr(), Version)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// sessionFrom extracts the session identifier from the query string or the
// X-Session-Id header.
func sessionFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("session_id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-Session-Id"))
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
