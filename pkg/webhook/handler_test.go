// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/types"
)

func setupHandler(t *testing.T, secret string) (*Handler, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewHandler(store, secret, zaptest.NewLogger(t)), store
}

func seedCompletionFixture(t *testing.T, store *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateAgent(ctx, &types.Agent{
		ID: "agent-1", Name: "Builder Bot", Status: types.AgentWorking,
		WorkspaceID: "ws-1", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.CreateTask(ctx, &types.Task{
		ID: "task-1", Title: "Ship the parser", Status: types.StatusInProgress,
		Priority: types.PriorityNormal, AssignedAgentID: "agent-1",
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.CreateSession(ctx, &types.Session{
		ID: "sess-1", AgentID: "agent-1",
		ExternalSessionID: "mission-control-builder-bot",
		Channel:           "gateway", Status: types.SessionActive,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func postJSON(t *testing.T, h http.Handler, body []byte, sign func([]byte) string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign != nil {
		req.Header.Set(SignatureHeader, sign(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_DirectCompletion(t *testing.T) {
	h, store := setupHandler(t, "")
	seedCompletionFixture(t, store)
	ctx := context.Background()

	body, _ := json.Marshal(CompletionPayload{
		TaskID:  "task-1",
		Status:  "review",
		Summary: "done",
		Deliverables: []DeliverablePayload{
			{Type: "file", Title: "x.txt", Path: "/out/x.txt"},
		},
	})
	rec := postJSON(t, h, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result CompletionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, types.StatusReview, result.NewStatus)
	assert.True(t, result.Applied)

	task, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusReview, task.Status)

	deliverables, err := store.ListDeliverables(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, deliverables, 1)
	assert.Equal(t, types.DeliverableFile, deliverables[0].Type)
	assert.Equal(t, "x.txt", deliverables[0].Title)

	activities, err := store.ListActivities(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, types.ActivityCompleted, activities[0].Type)
	assert.Equal(t, "done", activities[0].Message)

	agent, err := store.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStandby, agent.Status)
}

func TestHandler_DirectDefaultsToTesting(t *testing.T) {
	h, store := setupHandler(t, "")
	seedCompletionFixture(t, store)

	// No status in the payload, and an out-of-range status, both land
	// on testing.
	for _, status := range []string{"", "assigned", "garbage"} {
		body, _ := json.Marshal(CompletionPayload{TaskID: "task-1", Status: status})
		rec := postJSON(t, h, body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	task, err := store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusTesting, task.Status)
}

func TestHandler_DoneStaysDone(t *testing.T) {
	h, store := setupHandler(t, "")
	seedCompletionFixture(t, store)
	ctx := context.Background()
	require.NoError(t, store.UpdateTaskStatus(ctx, "task-1", types.StatusDone))

	// A stale retry asking for testing cannot pull the task back.
	body, _ := json.Marshal(CompletionPayload{TaskID: "task-1", Status: "testing"})
	rec := postJSON(t, h, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result CompletionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Applied)
	assert.Equal(t, types.StatusDone, result.NewStatus)

	task, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, task.Status)
}

func TestHandler_ReplayAppendsDeliverablesAgain(t *testing.T) {
	h, store := setupHandler(t, "")
	seedCompletionFixture(t, store)

	body, _ := json.Marshal(CompletionPayload{
		TaskID:       "task-1",
		Status:       "done",
		Deliverables: []DeliverablePayload{{Type: "file", Title: "x.txt"}},
	})
	require.Equal(t, http.StatusOK, postJSON(t, h, body, nil).Code)
	require.Equal(t, http.StatusOK, postJSON(t, h, body, nil).Code)

	// Status transition is idempotent; rows are not deduplicated.
	deliverables, err := store.ListDeliverables(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Len(t, deliverables, 2)
}

func TestHandler_LegacyCompletion(t *testing.T) {
	h, store := setupHandler(t, "")
	seedCompletionFixture(t, store)
	ctx := context.Background()

	body, _ := json.Marshal(CompletionPayload{
		SessionID: "mission-control-builder-bot",
		Message:   "All wrapped up. TASK COMPLETE parser ships clean",
	})
	rec := postJSON(t, h, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	task, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusTesting, task.Status)

	agent, err := store.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStandby, agent.Status)

	activities, err := store.ListActivities(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "parser ships clean", activities[0].Message)
}

func TestHandler_LegacyMissingMarker(t *testing.T) {
	h, store := setupHandler(t, "")
	seedCompletionFixture(t, store)

	body, _ := json.Marshal(CompletionPayload{
		SessionID: "mission-control-builder-bot",
		Message:   "finished everything",
	})
	rec := postJSON(t, h, body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	task, err := store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, task.Status)
}

func TestHandler_LegacyNoActiveTask(t *testing.T) {
	h, store := setupHandler(t, "")
	seedCompletionFixture(t, store)
	ctx := context.Background()
	require.NoError(t, store.UpdateTaskStatus(ctx, "task-1", types.StatusDone))

	body, _ := json.Marshal(CompletionPayload{
		SessionID: "mission-control-builder-bot",
		Message:   "TASK COMPLETE",
	})
	rec := postJSON(t, h, body, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UnknownSession(t *testing.T) {
	h, store := setupHandler(t, "")
	seedCompletionFixture(t, store)

	body, _ := json.Marshal(CompletionPayload{
		SessionID: "mission-control-nobody",
		Message:   "TASK COMPLETE",
	})
	rec := postJSON(t, h, body, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UnknownTask(t *testing.T) {
	h, _ := setupHandler(t, "")

	body, _ := json.Marshal(CompletionPayload{TaskID: "missing"})
	rec := postJSON(t, h, body, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_InvalidPayloadShape(t *testing.T) {
	h, _ := setupHandler(t, "")

	rec := postJSON(t, h, []byte(`{"something": "else"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, []byte(`not json`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h, _ := setupHandler(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/complete", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_SignatureRequired(t *testing.T) {
	h, store := setupHandler(t, "topsecret")
	seedCompletionFixture(t, store)
	ctx := context.Background()

	body, _ := json.Marshal(CompletionPayload{
		TaskID: "task-1", Status: "done",
		Deliverables: []DeliverablePayload{{Type: "file", Title: "x.txt"}},
	})

	// Missing signature.
	rec := postJSON(t, h, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong secret.
	rec = postJSON(t, h, body, func(b []byte) string { return Sign("wrong", b) })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Zero mutations from the rejected requests.
	task, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, task.Status)
	deliverables, err := store.ListDeliverables(ctx, "task-1")
	require.NoError(t, err)
	assert.Empty(t, deliverables)

	// Correct signature goes through.
	rec = postJSON(t, h, body, func(b []byte) string { return Sign("topsecret", b) })
	require.Equal(t, http.StatusOK, rec.Code)
	task, err = store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, task.Status)
}
