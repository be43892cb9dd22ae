// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the tether engine.
// This package breaks import cycles by providing the data model that
// storage, dispatch, webhook, and planning packages all depend on.
package types

import (
	"time"
)

// TaskPriority is the urgency of a task, rendered into dispatch messages.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	// AgentStandby means the agent is reachable and idle.
	AgentStandby AgentStatus = "standby"

	// AgentWorking means the agent has at least one dispatched task.
	AgentWorking AgentStatus = "working"

	// AgentOffline means the agent is unreachable and excluded from
	// orchestrator conflict checks.
	AgentOffline AgentStatus = "offline"
)

// SessionStatus is the lifecycle state of an agent's gateway session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionInactive SessionStatus = "inactive"
)

// DeliverableType classifies a deliverable recorded by the completion
// webhook.
type DeliverableType string

const (
	DeliverableFile     DeliverableType = "file"
	DeliverableURL      DeliverableType = "url"
	DeliverableArtifact DeliverableType = "artifact"
)

// NormalizeDeliverableType coerces unknown type strings to artifact.
// The webhook records what agents report; it does not police it.
func NormalizeDeliverableType(s string) DeliverableType {
	switch DeliverableType(s) {
	case DeliverableFile, DeliverableURL, DeliverableArtifact:
		return DeliverableType(s)
	default:
		return DeliverableArtifact
	}
}

// Activity types written to the per-task audit trail.
const (
	ActivitySpawned       = "spawned"
	ActivityUpdated       = "updated"
	ActivityCompleted     = "completed"
	ActivityFileCreated   = "file_created"
	ActivityStatusChanged = "status_changed"
)

// Event types written to the system event log.
const (
	EventTaskDispatched  = "task_dispatched"
	EventTaskCompleted   = "task_completed"
	EventSessionLinked   = "session_linked"
	EventSessionUnlinked = "session_unlinked"
	EventPlanningStarted = "planning_started"
	EventPlanningReply   = "planning_reply"
)

// PlanningMessage is one entry in a task's planning transcript.
type PlanningMessage struct {
	// Role is the message author ("user" for tether, "assistant" for the agent).
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp when the message was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Task is a unit of work tracked by the orchestration engine.
// Status only moves forward along the ordering in status.go; all
// mutation goes through AdvanceStatus, never direct assignment in
// engine write paths.
type Task struct {
	// ID is the unique task identifier.
	ID string `json:"id"`

	// Title is the short task summary, also slugged into the output
	// directory path of dispatch messages.
	Title string `json:"title"`

	// Description is optional free-form detail.
	Description string `json:"description,omitempty"`

	// Status is the current position in the task lifecycle.
	Status TaskStatus `json:"status"`

	// Priority maps to one of four fixed markers in dispatch messages.
	Priority TaskPriority `json:"priority"`

	// AssignedAgentID is the agent this task is dispatched to.
	// Empty when unassigned. Owned by the dispatch orchestrator.
	AssignedAgentID string `json:"assigned_agent_id,omitempty"`

	// DueDate is optional.
	DueDate *time.Time `json:"due_date,omitempty"`

	// PlanningSessionKey is set once planning starts and guards against
	// a second start.
	PlanningSessionKey string `json:"planning_session_key,omitempty"`

	// PlanningMessages is the ordered planning transcript. The gateway's
	// remote transcript is the eventual source of truth; this log is a
	// cache that may lag.
	PlanningMessages []PlanningMessage `json:"planning_messages,omitempty"`

	// PlanningComplete is set when the planning exchange has concluded.
	PlanningComplete bool `json:"planning_complete"`

	// PlanningSpec is the agreed specification produced by planning.
	PlanningSpec string `json:"planning_spec,omitempty"`

	// PlanningAgents lists agents proposed during planning.
	PlanningAgents []string `json:"planning_agents,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agent is a worker reachable through the gateway.
type Agent struct {
	// ID is the unique agent identifier.
	ID string `json:"id"`

	// Name is the human-readable agent name; session external ids are
	// derived from it.
	Name string `json:"name"`

	// IsMaster marks orchestrator agents. Multiple masters per workspace
	// are not invalid by themselves; the dispatch conflict check handles
	// the fan-out risk.
	IsMaster bool `json:"is_master"`

	// Status is standby, working, or offline.
	Status AgentStatus `json:"status"`

	// WorkspaceID scopes the orchestrator conflict check.
	WorkspaceID string `json:"workspace_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session binds an agent to one external gateway conversation.
// At most one session per agent may be active at a time.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// AgentID is the owning agent.
	AgentID string `json:"agent_id"`

	// ExternalSessionID is the gateway-side conversation id, derived
	// deterministically from the agent name unless supplied explicitly.
	ExternalSessionID string `json:"external_session_id"`

	// Channel tags the transport the session was created on.
	Channel string `json:"channel"`

	// Status is active or inactive. Sessions are deactivated, never
	// deleted, so history survives unlinking.
	Status SessionStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Deliverable is an output recorded from a completion webhook.
// Append-only; repeated deliveries of the same webhook append again.
type Deliverable struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"task_id"`
	Type        DeliverableType `json:"type"`
	Title       string          `json:"title"`
	Path        string          `json:"path,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Activity is an append-only audit entry keyed by task and/or agent.
type Activity struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is an append-only system log entry, broader than Activity.
type Event struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
