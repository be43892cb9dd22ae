// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package webhook ingests asynchronous task completion callbacks.
//
// The handler accepts two payload shapes: a direct form keyed by
// task_id and a legacy form keyed by session_id plus a marker message.
// Status transitions are idempotent through the forward-only state
// machine, so a replayed webhook is safe; deliverable and audit rows
// are appended without deduplication on every delivery.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/types"
)

// CompletionMarker is the token a legacy completion message must contain.
const CompletionMarker = "TASK COMPLETE"

var (
	// ErrInvalidPayload is returned when the body matches neither
	// accepted shape.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidFormat is returned when a legacy message lacks the
	// completion marker.
	ErrInvalidFormat = errors.New("invalid message format")

	// ErrNoActiveTask is returned when a legacy completion resolves to
	// an agent with no task in assigned or in_progress.
	ErrNoActiveTask = errors.New("no active task for agent")
)

// DeliverablePayload is one deliverable entry in a direct completion.
type DeliverablePayload struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
}

// CompletionPayload is the union of both accepted webhook shapes.
type CompletionPayload struct {
	// Direct shape.
	TaskID       string               `json:"task_id,omitempty"`
	Status       string               `json:"status,omitempty"`
	Summary      string               `json:"summary,omitempty"`
	Deliverables []DeliverablePayload `json:"deliverables,omitempty"`

	// Legacy session shape.
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CompletionResult is the success response body.
type CompletionResult struct {
	Success   bool             `json:"success"`
	TaskID    string           `json:"task_id"`
	NewStatus types.TaskStatus `json:"new_status"`
	Applied   bool             `json:"applied"`
}

// Handler processes completion webhooks. Implements http.Handler.
type Handler struct {
	store  storage.Store
	secret string
	logger *zap.Logger
}

// NewHandler creates a completion webhook handler. An empty secret
// disables signature verification entirely; that is a development-mode
// bypass and the handler logs it prominently.
func NewHandler(store storage.Store, secret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secret == "" {
		logger.Warn("Webhook signature verification DISABLED: no secret configured, accepting unauthenticated completion callbacks")
	}
	return &Handler{store: store, secret: secret, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	// Signature check happens before any parsing.
	if h.secret != "" {
		sig := r.Header.Get(SignatureHeader)
		if !VerifySignature(h.secret, body, sig) {
			h.logger.Warn("Webhook signature mismatch", zap.String("remote", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var payload CompletionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.Process(r.Context(), &payload)
	if err != nil {
		h.logger.Error("Completion webhook failed", zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Process applies a completion payload that has already passed
// signature verification.
func (h *Handler) Process(ctx context.Context, payload *CompletionPayload) (*CompletionResult, error) {
	switch {
	case payload.TaskID != "":
		return h.processDirect(ctx, payload)
	case payload.SessionID != "" && payload.Message != "":
		return h.processLegacy(ctx, payload)
	default:
		return nil, ErrInvalidPayload
	}
}

func (h *Handler) processDirect(ctx context.Context, payload *CompletionPayload) (*CompletionResult, error) {
	task, err := h.store.GetTask(ctx, payload.TaskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", payload.TaskID, err)
	}

	target := types.StatusTesting
	switch types.TaskStatus(payload.Status) {
	case types.StatusTesting, types.StatusReview, types.StatusDone:
		target = types.TaskStatus(payload.Status)
	}

	newStatus, applied := types.AdvanceStatus(task.Status, target)
	if applied {
		if err := h.store.UpdateTaskStatus(ctx, task.ID, newStatus); err != nil {
			return nil, fmt.Errorf("update task status: %w", err)
		}
	}

	now := time.Now().UTC()
	for _, d := range payload.Deliverables {
		deliverable := &types.Deliverable{
			ID:          uuid.NewString(),
			TaskID:      task.ID,
			Type:        types.NormalizeDeliverableType(d.Type),
			Title:       d.Title,
			Path:        d.Path,
			Description: d.Description,
			CreatedAt:   now,
		}
		if err := h.store.CreateDeliverable(ctx, deliverable); err != nil {
			return nil, fmt.Errorf("record deliverable: %w", err)
		}
	}

	summary := payload.Summary
	if summary == "" {
		summary = "Task finished"
	}
	h.appendAudit(ctx, task.ID, task.AssignedAgentID, summary)

	if task.AssignedAgentID != "" {
		if err := h.store.SetAgentStatus(ctx, task.AssignedAgentID, types.AgentStandby); err != nil {
			h.logger.Warn("Failed to reset agent to standby",
				zap.String("agent_id", task.AssignedAgentID), zap.Error(err))
		}
	}

	return &CompletionResult{Success: true, TaskID: task.ID, NewStatus: newStatus, Applied: applied}, nil
}

func (h *Handler) processLegacy(ctx context.Context, payload *CompletionPayload) (*CompletionResult, error) {
	if !strings.Contains(payload.Message, CompletionMarker) {
		return nil, ErrInvalidFormat
	}

	sess, err := h.store.SessionByExternalID(ctx, payload.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", payload.SessionID, err)
	}

	task, err := h.store.LatestTaskForAgent(ctx, sess.AgentID,
		[]types.TaskStatus{types.StatusAssigned, types.StatusInProgress})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("agent %s: %w", sess.AgentID, ErrNoActiveTask)
		}
		return nil, err
	}

	// No explicit target in the legacy shape: always land on testing,
	// and only when the task has not already moved past it.
	newStatus, applied := types.AdvanceStatus(task.Status, types.StatusTesting)
	if applied {
		if err := h.store.UpdateTaskStatus(ctx, task.ID, newStatus); err != nil {
			return nil, fmt.Errorf("update task status: %w", err)
		}
	}

	summary := strings.TrimSpace(strings.TrimPrefix(
		payload.Message[strings.Index(payload.Message, CompletionMarker):], CompletionMarker))
	if summary == "" {
		summary = "Task finished"
	}
	h.appendAudit(ctx, task.ID, sess.AgentID, summary)

	if err := h.store.SetAgentStatus(ctx, sess.AgentID, types.AgentStandby); err != nil {
		h.logger.Warn("Failed to reset agent to standby",
			zap.String("agent_id", sess.AgentID), zap.Error(err))
	}

	return &CompletionResult{Success: true, TaskID: task.ID, NewStatus: newStatus, Applied: applied}, nil
}

// appendAudit writes the completion activity and event. Failures are
// logged rather than surfaced; the status transition has already been
// applied and surfacing an error would invite a replay.
func (h *Handler) appendAudit(ctx context.Context, taskID, agentID, summary string) {
	now := time.Now().UTC()
	activity := &types.Activity{
		ID: uuid.NewString(), TaskID: taskID, AgentID: agentID,
		Type: types.ActivityCompleted, Message: summary, CreatedAt: now,
	}
	if err := h.store.CreateActivity(ctx, activity); err != nil {
		h.logger.Warn("Failed to record completion activity", zap.Error(err))
	}
	event := &types.Event{
		ID: uuid.NewString(), TaskID: taskID, AgentID: agentID,
		Type: types.EventTaskCompleted, Message: summary, CreatedAt: now,
	}
	if err := h.store.CreateEvent(ctx, event); err != nil {
		h.logger.Warn("Failed to record completion event", zap.Error(err))
	}
}

// statusFor maps processing errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoActiveTask), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
