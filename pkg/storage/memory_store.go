// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teradata-labs/tether/pkg/types"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
// It enforces the same at-most-one-active-session-per-agent semantics
// as the SQLite backend.
type MemoryStore struct {
	mu           sync.RWMutex
	tasks        map[string]*types.Task
	agents       map[string]*types.Agent
	sessions     map[string]*types.Session
	deliverables []*types.Deliverable
	activities   []*types.Activity
	events       []*types.Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]*types.Task),
		agents:   make(map[string]*types.Agent),
		sessions: make(map[string]*types.Session),
	}
}

func (s *MemoryStore) CreateTask(ctx context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	cp := *task
	return &cp, nil
}

func (s *MemoryStore) UpdateTaskStatus(ctx context.Context, id string, status types.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) LatestTaskForAgent(ctx context.Context, agentID string, statuses []types.TaskStatus) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[types.TaskStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}

	var latest *types.Task
	for _, task := range s.tasks {
		if task.AssignedAgentID != agentID || !allowed[task.Status] {
			continue
		}
		if latest == nil || task.UpdatedAt.After(latest.UpdatedAt) {
			latest = task
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("task for agent %s: %w", agentID, ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ListTasksByStatus(ctx context.Context, status types.TaskStatus) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Task
	for _, task := range s.tasks {
		if task.Status == status {
			cp := *task
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) SetPlanningSessionKey(ctx context.Context, taskID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	task.PlanningSessionKey = key
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AppendPlanningMessages(ctx context.Context, taskID string, msgs ...types.PlanningMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	task.PlanningMessages = append(task.PlanningMessages, msgs...)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetPlanningOutcome(ctx context.Context, taskID string, complete bool, spec string, agents []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	task.PlanningComplete = complete
	task.PlanningSpec = spec
	task.PlanningAgents = agents
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateAgent(ctx context.Context, agent *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	cp := *agent
	return &cp, nil
}

func (s *MemoryStore) SetAgentStatus(ctx context.Context, id string, status types.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	agent.Status = status
	agent.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListMasterAgents(ctx context.Context, workspaceID, excludeID string) ([]*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Agent
	for _, agent := range s.agents {
		if !agent.IsMaster || agent.WorkspaceID != workspaceID {
			continue
		}
		if agent.ID == excludeID || agent.Status == types.AgentOffline {
			continue
		}
		cp := *agent
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.Status == types.SessionActive {
		for _, existing := range s.sessions {
			if existing.AgentID == session.AgentID && existing.Status == types.SessionActive {
				return fmt.Errorf("agent %s: %w", session.AgentID, ErrSessionExists)
			}
		}
	}

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) ActiveSessionForAgent(ctx context.Context, agentID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.AgentID == agentID && session.Status == types.SessionActive {
			cp := *session
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("active session for agent %s: %w", agentID, ErrNotFound)
}

func (s *MemoryStore) SessionByExternalID(ctx context.Context, externalID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *types.Session
	for _, session := range s.sessions {
		if session.ExternalSessionID != externalID {
			continue
		}
		if latest == nil || session.UpdatedAt.After(latest.UpdatedAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("session %s: %w", externalID, ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) DeactivateSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	session.Status = types.SessionInactive
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateDeliverable(ctx context.Context, d *types.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *d
	s.deliverables = append(s.deliverables, &cp)
	return nil
}

func (s *MemoryStore) ListDeliverables(ctx context.Context, taskID string) ([]*types.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Deliverable
	for _, d := range s.deliverables {
		if d.TaskID == taskID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateActivity(ctx context.Context, a *types.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.activities = append(s.activities, &cp)
	return nil
}

func (s *MemoryStore) ListActivities(ctx context.Context, taskID string) ([]*types.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Activity
	for _, a := range s.activities {
		if a.TaskID == taskID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateEvent(ctx context.Context, e *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) ListEventsSince(ctx context.Context, since time.Time, limit int) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Event
	for _, e := range s.events {
		if len(out) >= limit {
			break
		}
		if e.CreatedAt.Before(since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Event, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
