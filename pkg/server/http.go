// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package server exposes the orchestration engine over HTTP: dispatch,
// planning, agent session links, the completion webhook, and an SSE
// event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/tether/pkg/dispatch"
	"github.com/teradata-labs/tether/pkg/gateway"
	"github.com/teradata-labs/tether/pkg/planning"
	"github.com/teradata-labs/tether/pkg/session"
	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/webhook"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns a permissive CORS configuration
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	}
}

// sseEventBatch caps how many event rows one stream poll may drain.
const sseEventBatch = 500

// HTTPServer serves the engine's REST+SSE surface.
type HTTPServer struct {
	store        storage.Store
	orchestrator *dispatch.Orchestrator
	planner      *planning.Planner
	registry     *session.Registry
	completion   *webhook.Handler
	httpServer   *http.Server
	corsConfig   CORSConfig
	logger       *zap.Logger

	// ssePollInterval controls how often the event stream re-reads the
	// store. Shortened in tests.
	ssePollInterval time.Duration
}

// NewHTTPServer creates the HTTP server.
func NewHTTPServer(store storage.Store, orchestrator *dispatch.Orchestrator, planner *planning.Planner, registry *session.Registry, completion *webhook.Handler, addr string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		store:        store,
		orchestrator: orchestrator,
		planner:      planner,
		registry:     registry,
		completion:   completion,
		httpServer: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		corsConfig:      DefaultCORSConfig(),
		logger:          logger,
		ssePollInterval: 2 * time.Second,
	}
}

// Handler builds the route mux. Exposed for tests.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("POST /api/webhooks/complete", h.completion)
	mux.HandleFunc("POST /api/tasks/{id}/dispatch", h.handleDispatch)
	mux.HandleFunc("POST /api/tasks/{id}/planning", h.handlePlanningStart)
	mux.HandleFunc("GET /api/tasks/{id}/planning", h.handlePlanningState)
	mux.HandleFunc("GET /api/agents/{id}/link", h.handleLinkGet)
	mux.HandleFunc("POST /api/agents/{id}/link", h.handleLinkCreate)
	mux.HandleFunc("DELETE /api/agents/{id}/link", h.handleLinkDelete)
	mux.HandleFunc("GET /api/events/stream", h.handleEventsSSE)

	var handler http.Handler = mux
	if h.corsConfig.Enabled {
		handler = h.corsMiddleware(mux)
	}
	return handler
}

// Start runs the server until it fails or Stop is called.
func (h *HTTPServer) Start(ctx context.Context) error {
	h.httpServer.Handler = h.Handler()

	h.logger.Info("Starting HTTP server", zap.String("addr", h.httpServer.Addr))
	if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server")
	return h.httpServer.Shutdown(ctx)
}

func (h *HTTPServer) handleDispatch(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	result, err := h.orchestrator.Dispatch(r.Context(), taskID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if result.Conflict {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success":      false,
			"error":        "multiple orchestrator agents are active in this workspace",
			"conflict":     true,
			"alternatives": result.Alternatives,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"task_id":    result.TaskID,
		"agent_id":   result.AgentID,
		"session_id": result.SessionID,
	})
}

func (h *HTTPServer) handlePlanningStart(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	result, err := h.planner.Start(r.Context(), taskID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPServer) handlePlanningState(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	state, err := h.planner.State(r.Context(), taskID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *HTTPServer) handleLinkGet(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	sess, err := h.registry.ActiveSession(r.Context(), agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "agent has no active session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type linkRequest struct {
	ExternalSessionID string `json:"external_session_id,omitempty"`
	Channel           string `json:"channel,omitempty"`
}

func (h *HTTPServer) handleLinkCreate(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	var req linkRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	agent, err := h.store.GetAgent(r.Context(), agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	sess, err := h.registry.CreateSession(r.Context(), agent.ID, agent.Name, req.ExternalSessionID)
	if errors.Is(err, session.ErrAlreadyLinked) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"error":   "agent already has an active session",
			"session": sess,
		})
		return
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *HTTPServer) handleLinkDelete(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	sess, err := h.registry.ActiveSession(r.Context(), agentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "agent has no active session")
		return
	}

	if err := h.registry.Deactivate(r.Context(), sess); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": sess.ID})
}

// handleEventsSSE streams store events as server-sent events. New rows
// are picked up by re-reading the append-only event log at a fixed
// interval.
func (h *HTTPServer) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Resume point is a time cursor, not an ID set: memory stays
	// bounded on long-lived connections, and a burst larger than one
	// poll window is drained rather than skipped. Timestamps are
	// second-granular in storage, so IDs sharing the cursor instant
	// are tracked to break ties.
	var cursor time.Time
	atCursor := make(map[string]bool)

	// Seed with the current log so only new events stream.
	if events, err := h.store.ListEvents(r.Context(), 1); err == nil && len(events) > 0 {
		cursor = events[0].CreatedAt
		if peers, err := h.store.ListEventsSince(r.Context(), cursor, sseEventBatch); err == nil {
			for _, e := range peers {
				atCursor[e.ID] = true
			}
		}
	}

	ticker := time.NewTicker(h.ssePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		events, err := h.store.ListEventsSince(r.Context(), cursor, sseEventBatch)
		if err != nil {
			h.logger.Warn("Event stream poll failed", zap.Error(err))
			continue
		}

		// Oldest first; advance the cursor as rows stream out.
		for _, e := range events {
			if !e.CreatedAt.After(cursor) && atCursor[e.ID] {
				continue
			}
			if e.CreatedAt.After(cursor) {
				cursor = e.CreatedAt
				atCursor = make(map[string]bool)
			}
			atCursor[e.ID] = true

			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

// writeDomainError maps engine errors onto the HTTP error taxonomy.
func (h *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrNoAssignedAgent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, planning.ErrAlreadyStarted):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// corsMiddleware adds CORS headers to HTTP responses
func (h *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigin := h.getAllowedOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		}

		if h.corsConfig.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if len(h.corsConfig.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(h.corsConfig.AllowedMethods, ", "))
		}
		if len(h.corsConfig.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(h.corsConfig.AllowedHeaders, ", "))
		}
		if len(h.corsConfig.ExposedHeaders) > 0 {
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(h.corsConfig.ExposedHeaders, ", "))
		}
		if h.corsConfig.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", h.corsConfig.MaxAge))
		}

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getAllowedOrigin checks if the origin is allowed and returns it, or empty string if not
func (h *HTTPServer) getAllowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range h.corsConfig.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
