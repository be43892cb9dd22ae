// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/tether/pkg/types"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "tether-test.db")
	store, err := NewSQLiteStore(context.Background(), dbPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	return store
}

func testTask(id string) *types.Task {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Task{
		ID:        id,
		Title:     "Refactor ingest pipeline",
		Status:    types.StatusInbox,
		Priority:  types.PriorityNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testAgent(id, workspace string, master bool) *types.Agent {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Agent{
		ID:          id,
		Name:        "Agent " + id,
		IsMaster:    master,
		Status:      types.AgentStandby,
		WorkspaceID: workspace,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSQLiteStore_TaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	task := testTask("task-1")
	task.Description = "Split the reader and the writer"
	task.AssignedAgentID = "agent-1"
	task.DueDate = &due

	require.NoError(t, store.CreateTask(ctx, task))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, task.Description, got.Description)
	assert.Equal(t, types.StatusInbox, got.Status)
	assert.Equal(t, types.PriorityNormal, got.Priority)
	assert.Equal(t, "agent-1", got.AssignedAgentID)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, due.Unix(), got.DueDate.Unix())
}

func TestSQLiteStore_GetTaskNotFound(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	_, err := store.GetTask(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpdateTaskStatus(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.CreateTask(ctx, testTask("task-1")))
	require.NoError(t, store.UpdateTaskStatus(ctx, "task-1", types.StatusInProgress))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, got.Status)

	err = store.UpdateTaskStatus(ctx, "missing", types.StatusDone)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_LatestTaskForAgent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	older := testTask("task-old")
	older.AssignedAgentID = "agent-1"
	older.Status = types.StatusAssigned
	older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.CreateTask(ctx, older))

	newer := testTask("task-new")
	newer.AssignedAgentID = "agent-1"
	newer.Status = types.StatusInProgress
	require.NoError(t, store.CreateTask(ctx, newer))

	done := testTask("task-done")
	done.AssignedAgentID = "agent-1"
	done.Status = types.StatusDone
	require.NoError(t, store.CreateTask(ctx, done))

	got, err := store.LatestTaskForAgent(ctx, "agent-1",
		[]types.TaskStatus{types.StatusAssigned, types.StatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, "task-new", got.ID)

	_, err = store.LatestTaskForAgent(ctx, "agent-2",
		[]types.TaskStatus{types.StatusAssigned, types.StatusInProgress})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_PlanningFields(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.CreateTask(ctx, testTask("task-1")))
	require.NoError(t, store.SetPlanningSessionKey(ctx, "task-1", "task-planning-task-1"))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.AppendPlanningMessages(ctx, "task-1",
		types.PlanningMessage{Role: "user", Content: "first question prompt", Timestamp: now}))
	require.NoError(t, store.AppendPlanningMessages(ctx, "task-1",
		types.PlanningMessage{Role: "assistant", Content: `{"question":"Which DB?"}`, Timestamp: now}))

	require.NoError(t, store.SetPlanningOutcome(ctx, "task-1", true, "use sqlite", []string{"builder", "tester"}))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-planning-task-1", got.PlanningSessionKey)
	require.Len(t, got.PlanningMessages, 2)
	assert.Equal(t, "user", got.PlanningMessages[0].Role)
	assert.Equal(t, "assistant", got.PlanningMessages[1].Role)
	assert.True(t, got.PlanningComplete)
	assert.Equal(t, "use sqlite", got.PlanningSpec)
	assert.Equal(t, []string{"builder", "tester"}, got.PlanningAgents)
}

func TestSQLiteStore_ListMasterAgents(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.CreateAgent(ctx, testAgent("self", "ws-1", true)))
	require.NoError(t, store.CreateAgent(ctx, testAgent("rival", "ws-1", true)))
	require.NoError(t, store.CreateAgent(ctx, testAgent("worker", "ws-1", false)))

	offline := testAgent("sleeper", "ws-1", true)
	offline.Status = types.AgentOffline
	require.NoError(t, store.CreateAgent(ctx, offline))

	require.NoError(t, store.CreateAgent(ctx, testAgent("far", "ws-2", true)))

	masters, err := store.ListMasterAgents(ctx, "ws-1", "self")
	require.NoError(t, err)
	require.Len(t, masters, 1)
	assert.Equal(t, "rival", masters[0].ID)
}

func TestSQLiteStore_SessionUniqueness(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	now := time.Now().UTC()
	first := &types.Session{
		ID:                "sess-1",
		AgentID:           "agent-1",
		ExternalSessionID: "mission-control-agent-one",
		Channel:           "gateway",
		Status:            types.SessionActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, store.CreateSession(ctx, first))

	dup := *first
	dup.ID = "sess-2"
	err := store.CreateSession(ctx, &dup)
	assert.ErrorIs(t, err, ErrSessionExists)

	// Deactivating the first session frees the slot.
	require.NoError(t, store.DeactivateSession(ctx, "sess-1"))
	dup.ID = "sess-3"
	require.NoError(t, store.CreateSession(ctx, &dup))

	active, err := store.ActiveSessionForAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-3", active.ID)
}

func TestSQLiteStore_SessionByExternalID(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	now := time.Now().UTC()
	session := &types.Session{
		ID:                "sess-1",
		AgentID:           "agent-1",
		ExternalSessionID: "mission-control-agent-one",
		Status:            types.SessionActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, store.CreateSession(ctx, session))

	got, err := store.SessionByExternalID(ctx, "mission-control-agent-one")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.AgentID)

	_, err = store.SessionByExternalID(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_AuditTrailAppendOnly(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	defer func() { _ = store.Close() }()

	now := time.Now().UTC()
	d := &types.Deliverable{
		ID: "del-1", TaskID: "task-1", Type: types.DeliverableFile,
		Title: "report.txt", CreatedAt: now,
	}
	// Same payload twice: both rows persist, no dedup.
	require.NoError(t, store.CreateDeliverable(ctx, d))
	d2 := *d
	d2.ID = "del-2"
	require.NoError(t, store.CreateDeliverable(ctx, &d2))

	deliverables, err := store.ListDeliverables(ctx, "task-1")
	require.NoError(t, err)
	assert.Len(t, deliverables, 2)

	require.NoError(t, store.CreateActivity(ctx, &types.Activity{
		ID: "act-1", TaskID: "task-1", Type: types.ActivityStatusChanged,
		Message: "dispatched", CreatedAt: now,
	}))
	activities, err := store.ListActivities(ctx, "task-1")
	require.NoError(t, err)
	assert.Len(t, activities, 1)

	require.NoError(t, store.CreateEvent(ctx, &types.Event{
		ID: "evt-1", TaskID: "task-1", Type: types.EventTaskDispatched,
		Message: "dispatched", CreatedAt: now,
	}))
	events, err := store.ListEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLiteStore_ListEventsSince(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"evt-old", "evt-cursor", "evt-new"} {
		require.NoError(t, store.CreateEvent(ctx, &types.Event{
			ID: id, Type: types.EventTaskDispatched, Message: "dispatched",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	// The cursor row itself is included; callers dedupe at the boundary.
	events, err := store.ListEventsSince(ctx, base.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-cursor", events[0].ID)
	assert.Equal(t, "evt-new", events[1].ID)

	// Limit caps the batch, oldest first.
	events, err = store.ListEventsSince(ctx, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-old", events[0].ID)
}
