// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package planning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/tether/pkg/gateway"
	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/types"
)

// SessionKeyPrefix prefixes the gateway session key derived for a
// task's planning exchange.
const SessionKeyPrefix = "task-planning-"

const (
	// DefaultPollInterval is the pause between transcript polls.
	DefaultPollInterval = 2 * time.Second

	// DefaultPollAttempts bounds the total in-request wait.
	DefaultPollAttempts = 10

	// historyLimit caps each transcript fetch.
	historyLimit = 50
)

// ErrAlreadyStarted is returned by Start when the task already has a
// planning session key.
var ErrAlreadyStarted = errors.New("planning already started")

// planningPrompt is the fixed opening message. It demands exactly one
// multiple-choice question as strict JSON so replies survive Extract.
const planningPrompt = `You are planning a task before any work begins.

Ask exactly ONE multiple-choice question that most reduces your uncertainty about the task. Reply with ONLY a JSON object, no prose around it:

{"question": "<the question>", "options": ["<choice 1>", "<choice 2>", "...", "other"]}

Rules:
- One question only.
- The options array MUST include an "other" option.
- No text outside the JSON object.`

// SessionKey derives the deterministic gateway session key for a
// task's planning exchange.
func SessionKey(taskID string) string {
	return SessionKeyPrefix + taskID
}

// StartResult reports the outcome of a planning start. StillWaiting is
// a defined non-error terminal state: the prompt went out but no reply
// arrived within the poll budget, and the caller should re-poll State.
type StartResult struct {
	TaskID       string                 `json:"task_id"`
	SessionKey   string                 `json:"session_key"`
	StillWaiting bool                   `json:"still_waiting"`
	Reply        *types.PlanningMessage `json:"reply,omitempty"`

	// Question is the schema-valid extracted payload, when the reply
	// carried one.
	Question map[string]any `json:"question,omitempty"`
}

// StateResult is the read-path view of a task's planning exchange.
// Started and CurrentQuestion let a caller re-polling after a
// still-waiting start tell whether planning is underway and what
// question is pending without re-deriving either.
type StateResult struct {
	TaskID     string                  `json:"task_id"`
	SessionKey string                  `json:"session_key,omitempty"`
	Started    bool                    `json:"is_started"`
	Messages   []types.PlanningMessage `json:"messages"`
	Complete   bool                    `json:"complete"`
	Spec       string                  `json:"spec,omitempty"`
	Agents     []string                `json:"agents,omitempty"`

	// CurrentQuestion is the schema-valid payload extracted from the
	// trailing assistant reply, when there is one.
	CurrentQuestion map[string]any `json:"current_question,omitempty"`
}

// Config tunes the poll loop.
type Config struct {
	PollInterval time.Duration
	PollAttempts int
}

// Planner runs the planning protocol for tasks.
type Planner struct {
	store  storage.Store
	gw     gateway.Client
	cfg    Config
	logger *zap.Logger
}

// NewPlanner creates a planner. Zero config fields get defaults.
func NewPlanner(store storage.Store, gw gateway.Client, cfg Config, logger *zap.Logger) *Planner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{store: store, gw: gw, cfg: cfg, logger: logger}
}

// Start opens the planning exchange for a task: sends the fixed prompt
// into a session keyed by the task id, moves the task to planning, then
// polls the transcript for the agent's first reply. The calling
// connection is held for up to PollInterval×PollAttempts; acceptable
// for a low-fan-in admin surface only.
func (p *Planner) Start(ctx context.Context, taskID string) (*StartResult, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.PlanningSessionKey != "" {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrAlreadyStarted)
	}

	if err := p.gw.Connect(ctx); err != nil {
		return nil, err
	}

	key := SessionKey(taskID)
	if err := gateway.Send(ctx, p.gw, gateway.SendRequest{
		SessionKey:     key,
		Message:        planningPrompt,
		IdempotencyKey: "planning-" + taskID,
	}); err != nil {
		return nil, err
	}

	outgoing := types.PlanningMessage{
		Role: "user", Content: planningPrompt, Timestamp: time.Now().UTC(),
	}
	if err := p.store.AppendPlanningMessages(ctx, taskID, outgoing); err != nil {
		return nil, fmt.Errorf("persist planning prompt: %w", err)
	}
	if err := p.store.SetPlanningSessionKey(ctx, taskID, key); err != nil {
		return nil, fmt.Errorf("persist planning session key: %w", err)
	}
	// Planning is an entry point, not a lifecycle advance: the status is
	// written directly rather than gated through the forward-only machine.
	if err := p.store.UpdateTaskStatus(ctx, taskID, types.StatusPlanning); err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	p.appendEvent(ctx, taskID, types.EventPlanningStarted, "Planning started")

	result := &StartResult{TaskID: taskID, SessionKey: key}
	for attempt := 0; attempt < p.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}

		reply, found, err := p.fetchNewReply(ctx, key, 0)
		if err != nil {
			p.logger.Warn("Planning transcript poll failed",
				zap.String("task_id", taskID), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if !found {
			continue
		}

		if err := p.recordReply(ctx, taskID, reply); err != nil {
			return nil, err
		}
		result.Reply = &reply
		if payload := Extract(reply.Content); payload != nil {
			if err := ValidateQuestion(payload); err != nil {
				p.logger.Warn("Planning reply failed question validation",
					zap.String("task_id", taskID), zap.Error(err))
			} else {
				result.Question = payload
			}
		}
		return result, nil
	}

	p.logger.Info("Planning poll budget exhausted, still waiting",
		zap.String("task_id", taskID))
	result.StillWaiting = true
	return result, nil
}

// State returns the persisted planning transcript, reconciling a
// missing trailing assistant reply from the gateway first. The remote
// transcript is the eventual source of truth; the local log is a cache
// that may lag.
func (p *Planner) State(ctx context.Context, taskID string) (*StateResult, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.PlanningSessionKey != "" && !endsWithAssistant(task.PlanningMessages) {
		if task, err = p.Reconcile(ctx, task); err != nil {
			p.logger.Warn("Planning transcript reconciliation failed",
				zap.String("task_id", taskID), zap.Error(err))
			// Serve the cached log; the remote fetch is best effort here.
			task, err = p.store.GetTask(ctx, taskID)
			if err != nil {
				return nil, err
			}
		}
	}

	state := &StateResult{
		TaskID:     task.ID,
		SessionKey: task.PlanningSessionKey,
		Started:    task.PlanningSessionKey != "",
		Messages:   task.PlanningMessages,
		Complete:   task.PlanningComplete,
		Spec:       task.PlanningSpec,
		Agents:     task.PlanningAgents,
	}
	if endsWithAssistant(task.PlanningMessages) {
		last := task.PlanningMessages[len(task.PlanningMessages)-1]
		if payload := Extract(last.Content); payload != nil && ValidateQuestion(payload) == nil {
			state.CurrentQuestion = payload
		}
	}
	return state, nil
}

// Reconcile pulls any assistant replies the local log is missing from
// the gateway transcript and persists them. Returns the refreshed task.
func (p *Planner) Reconcile(ctx context.Context, task *types.Task) (*types.Task, error) {
	if task.PlanningSessionKey == "" {
		return task, nil
	}

	seen := 0
	for _, m := range task.PlanningMessages {
		if m.Role == "assistant" {
			seen++
		}
	}

	reply, found, err := p.fetchNewReply(ctx, task.PlanningSessionKey, seen)
	if err != nil {
		return nil, err
	}
	if !found {
		return task, nil
	}

	if err := p.recordReply(ctx, task.ID, reply); err != nil {
		return nil, err
	}
	return p.store.GetTask(ctx, task.ID)
}

// fetchNewReply returns the first assistant message beyond the already
// persisted count, if the transcript has one.
func (p *Planner) fetchNewReply(ctx context.Context, sessionKey string, persisted int) (types.PlanningMessage, bool, error) {
	msgs, err := gateway.History(ctx, p.gw, sessionKey, historyLimit)
	if err != nil {
		return types.PlanningMessage{}, false, err
	}

	count := 0
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		count++
		if count > persisted {
			return types.PlanningMessage{
				Role: "assistant", Content: m.Content, Timestamp: m.Timestamp,
			}, true, nil
		}
	}
	return types.PlanningMessage{}, false, nil
}

func (p *Planner) recordReply(ctx context.Context, taskID string, reply types.PlanningMessage) error {
	if reply.Timestamp.IsZero() {
		reply.Timestamp = time.Now().UTC()
	}
	if err := p.store.AppendPlanningMessages(ctx, taskID, reply); err != nil {
		return fmt.Errorf("persist planning reply: %w", err)
	}
	p.appendEvent(ctx, taskID, types.EventPlanningReply, "Planning reply received")
	return nil
}

func (p *Planner) appendEvent(ctx context.Context, taskID, eventType, message string) {
	event := &types.Event{
		ID: uuid.NewString(), TaskID: taskID,
		Type: eventType, Message: message, CreatedAt: time.Now().UTC(),
	}
	if err := p.store.CreateEvent(ctx, event); err != nil {
		p.logger.Warn("Failed to record planning event", zap.Error(err))
	}
}

func endsWithAssistant(msgs []types.PlanningMessage) bool {
	return len(msgs) > 0 && msgs[len(msgs)-1].Role == "assistant"
}
