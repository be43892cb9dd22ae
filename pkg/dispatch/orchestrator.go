// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package dispatch sends task instructions into an agent's gateway
// session and advances local state only after the send succeeds.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/tether/pkg/gateway"
	"github.com/teradata-labs/tether/pkg/session"
	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/types"
)

var (
	// ErrNoAssignedAgent is returned when the task has no assignee.
	ErrNoAssignedAgent = errors.New("task has no assigned agent")

	// ErrDispatchFailed is returned when the gateway send fails. Local
	// state is left unmodified so the dispatch is safely retryable;
	// only a session created on the way stays committed, since it is
	// reusable on retry.
	ErrDispatchFailed = errors.New("dispatch send failed")
)

// Config holds the rendering inputs for dispatch messages.
type Config struct {
	// WebhookURL is the completion callback agents must POST to.
	WebhookURL string

	// WebhookAuthToken, when set, is rendered into the callback
	// instruction as a bearer header.
	WebhookAuthToken string

	// OutputBaseDir is the root under which per-task output
	// directories are derived.
	OutputBaseDir string
}

// Result reports the outcome of a dispatch. Conflict results are
// non-fatal: nothing was sent and nothing was mutated, and the caller
// must explicitly retry or reassign.
type Result struct {
	TaskID    string `json:"task_id"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`

	// Conflict is set when the assigned agent is an orchestrator and
	// other non-offline orchestrators exist in the same workspace.
	Conflict bool `json:"conflict,omitempty"`

	// Alternatives lists the competing orchestrator agents on conflict.
	Alternatives []*types.Agent `json:"alternatives,omitempty"`
}

// Orchestrator performs task dispatch.
type Orchestrator struct {
	store    storage.Store
	registry *session.Registry
	gw       gateway.Client
	cfg      Config
	logger   *zap.Logger
}

// NewOrchestrator creates a dispatch orchestrator.
func NewOrchestrator(store storage.Store, registry *session.Registry, gw gateway.Client, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		gw:       gw,
		cfg:      cfg,
		logger:   logger,
	}
}

// Dispatch sends the task's instructions into its assigned agent's
// session. State is mutated only after the gateway accepts the send:
// the task advances toward in_progress, the agent goes to working, and
// one event plus one activity are appended.
func (o *Orchestrator) Dispatch(ctx context.Context, taskID string) (*Result, error) {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedAgentID == "" {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNoAssignedAgent)
	}

	agent, err := o.store.GetAgent(ctx, task.AssignedAgentID)
	if err != nil {
		return nil, err
	}

	// Orchestrator fan-out guard: dispatching to one master while
	// others are live risks duplicated coordination work.
	if agent.IsMaster {
		others, err := o.store.ListMasterAgents(ctx, agent.WorkspaceID, agent.ID)
		if err != nil {
			return nil, fmt.Errorf("conflict check: %w", err)
		}
		if len(others) > 0 {
			o.logger.Warn("Dispatch blocked by orchestrator conflict",
				zap.String("task_id", taskID),
				zap.String("agent_id", agent.ID),
				zap.Int("alternatives", len(others)))
			return &Result{
				TaskID:       taskID,
				AgentID:      agent.ID,
				Conflict:     true,
				Alternatives: others,
			}, nil
		}
	}

	if err := o.registry.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	sess, err := o.registry.ActiveSession(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess, err = o.registry.CreateSession(ctx, agent.ID, agent.Name, "")
		if err != nil && !errors.Is(err, session.ErrAlreadyLinked) {
			return nil, err
		}
		// A lost create race normally returns the winner; if the
		// winner lookup also failed there is no session to route to.
		if sess == nil {
			return nil, err
		}
	}

	message := RenderMessage(task, o.cfg)
	sendReq := gateway.SendRequest{
		SessionKey:     session.RouteKey(sess.ExternalSessionID),
		Message:        message,
		IdempotencyKey: fmt.Sprintf("task-%s-%d", task.ID, time.Now().Unix()),
	}

	if err := gateway.Send(ctx, o.gw, sendReq); err != nil {
		o.logger.Error("Gateway send failed",
			zap.String("task_id", taskID),
			zap.String("agent_id", agent.ID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	// Send succeeded; apply local state. The status advance is gated
	// through the forward-only machine so a task already past
	// in_progress is left alone.
	if next, applied := types.AdvanceStatus(task.Status, types.StatusInProgress); applied {
		if err := o.store.UpdateTaskStatus(ctx, task.ID, next); err != nil {
			return nil, fmt.Errorf("update task status: %w", err)
		}
	}
	if err := o.store.SetAgentStatus(ctx, agent.ID, types.AgentWorking); err != nil {
		return nil, fmt.Errorf("update agent status: %w", err)
	}

	now := time.Now().UTC()
	o.appendAudit(ctx,
		&types.Event{
			ID: uuid.NewString(), TaskID: task.ID, AgentID: agent.ID,
			Type:      types.EventTaskDispatched,
			Message:   fmt.Sprintf("Task %q dispatched to %s", task.Title, agent.Name),
			CreatedAt: now,
		},
		&types.Activity{
			ID: uuid.NewString(), TaskID: task.ID, AgentID: agent.ID,
			Type:      types.ActivityStatusChanged,
			Message:   fmt.Sprintf("Dispatched to %s", agent.Name),
			CreatedAt: now,
		})

	o.logger.Info("Task dispatched",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agent.ID),
		zap.String("session_id", sess.ID))

	return &Result{
		TaskID:    task.ID,
		AgentID:   agent.ID,
		SessionID: sess.ID,
	}, nil
}

// appendAudit writes the post-dispatch event and activity rows.
// Audit failures are logged, not surfaced: the dispatch already
// happened and reporting failure would invite a duplicate send.
func (o *Orchestrator) appendAudit(ctx context.Context, e *types.Event, a *types.Activity) {
	if err := o.store.CreateEvent(ctx, e); err != nil {
		o.logger.Warn("Failed to record dispatch event", zap.Error(err))
	}
	if err := o.store.CreateActivity(ctx, a); err != nil {
		o.logger.Warn("Failed to record dispatch activity", zap.Error(err))
	}
}
