// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package storage persists tasks, agents, sessions, and the audit trail.
//
// Two backends implement Store: SQLiteStore for production and
// MemoryStore for tests. Each write is independently committed; the
// engine assumes no multi-statement transactions, so a crash between
// steps of a dispatch or webhook leaves partially applied state that is
// reconciled on the next read, not rolled back.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/teradata-labs/tether/pkg/types"
)

var (
	// ErrNotFound is returned when a task, agent, or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionExists is returned by CreateSession when the agent
	// already has an active session. Backed by a storage-level
	// uniqueness guarantee, not just a prior lookup.
	ErrSessionExists = errors.New("active session already exists")
)

// Store is the persistence surface used by the orchestration engine.
type Store interface {
	// Tasks

	CreateTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)

	// UpdateTaskStatus overwrites the stored status. Callers must gate
	// the new value through types.AdvanceStatus first; the store does
	// not re-check ordering.
	UpdateTaskStatus(ctx context.Context, id string, status types.TaskStatus) error

	// LatestTaskForAgent returns the most recently updated task assigned
	// to the agent whose status is in the given set, or ErrNotFound.
	LatestTaskForAgent(ctx context.Context, agentID string, statuses []types.TaskStatus) (*types.Task, error)

	// ListTasksByStatus returns all tasks currently in the given status.
	ListTasksByStatus(ctx context.Context, status types.TaskStatus) ([]*types.Task, error)

	// Planning fields

	SetPlanningSessionKey(ctx context.Context, taskID, key string) error
	AppendPlanningMessages(ctx context.Context, taskID string, msgs ...types.PlanningMessage) error
	SetPlanningOutcome(ctx context.Context, taskID string, complete bool, spec string, agents []string) error

	// Agents

	CreateAgent(ctx context.Context, agent *types.Agent) error
	GetAgent(ctx context.Context, id string) (*types.Agent, error)
	SetAgentStatus(ctx context.Context, id string, status types.AgentStatus) error

	// ListMasterAgents returns non-offline master agents in the
	// workspace, excluding excludeID. Used by the dispatch conflict check.
	ListMasterAgents(ctx context.Context, workspaceID, excludeID string) ([]*types.Agent, error)

	// Sessions

	// CreateSession persists a new active session. Returns
	// ErrSessionExists if the agent already has one; the uniqueness is
	// enforced by the backend, closing the check-then-act race between
	// concurrent creators.
	CreateSession(ctx context.Context, session *types.Session) error

	// ActiveSessionForAgent returns the agent's active session, or
	// ErrNotFound.
	ActiveSessionForAgent(ctx context.Context, agentID string) (*types.Session, error)

	// SessionByExternalID resolves a gateway session id to its local
	// record regardless of status.
	SessionByExternalID(ctx context.Context, externalID string) (*types.Session, error)

	// DeactivateSession marks the session inactive. History is never
	// deleted.
	DeactivateSession(ctx context.Context, id string) error

	// Audit trail (append-only)

	CreateDeliverable(ctx context.Context, d *types.Deliverable) error
	ListDeliverables(ctx context.Context, taskID string) ([]*types.Deliverable, error)

	CreateActivity(ctx context.Context, a *types.Activity) error
	ListActivities(ctx context.Context, taskID string) ([]*types.Activity, error)

	CreateEvent(ctx context.Context, e *types.Event) error
	ListEvents(ctx context.Context, limit int) ([]*types.Event, error)

	// ListEventsSince returns events created at or after since, oldest
	// first, so stream readers can resume from a time cursor.
	ListEventsSince(ctx context.Context, since time.Time, limit int) ([]*types.Event, error)

	Close() error
}
