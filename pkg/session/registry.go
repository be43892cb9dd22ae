// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package session owns the binding between agents and external gateway
// conversations: at most one active session per agent, deterministic
// external ids, deactivation instead of deletion.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/tether/pkg/gateway"
	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/types"
)

// ExternalSessionPrefix prefixes derived external session ids.
const ExternalSessionPrefix = "mission-control-"

// DefaultChannel tags sessions created by the registry.
const DefaultChannel = "gateway"

// ErrAlreadyLinked is returned when creating a session for an agent
// that already has an active one.
var ErrAlreadyLinked = errors.New("agent already linked to an active session")

// Registry manages agent gateway sessions.
type Registry struct {
	store  storage.Store
	gw     gateway.Client
	logger *zap.Logger

	// agentLocks serializes session creation per agent on top of the
	// storage-level uniqueness constraint.
	mu         sync.Mutex
	agentLocks map[string]*sync.Mutex
}

// NewRegistry creates a session registry.
func NewRegistry(store storage.Store, gw gateway.Client, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:      store,
		gw:         gw,
		logger:     logger,
		agentLocks: make(map[string]*sync.Mutex),
	}
}

// EnsureConnected connects to the gateway if not already connected.
// On failure it returns gateway.ErrUnavailable (wrapped) and the caller
// must not mutate local state.
func (r *Registry) EnsureConnected(ctx context.Context) error {
	if r.gw.IsConnected() {
		return nil
	}
	if err := r.gw.Connect(ctx); err != nil {
		return fmt.Errorf("ensure connected: %w", err)
	}
	return nil
}

// ActiveSession returns the agent's active session, or nil when there
// is none.
func (r *Registry) ActiveSession(ctx context.Context, agentID string) (*types.Session, error) {
	sess, err := r.store.ActiveSessionForAgent(ctx, agentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ExternalSessionID derives the deterministic gateway session id for an
// agent name.
func ExternalSessionID(agentName string) string {
	return ExternalSessionPrefix + Slugify(agentName)
}

// RouteKey is the gateway addressing key for a session's external id.
func RouteKey(externalSessionID string) string {
	return "agent:" + externalSessionID
}

// CreateSession creates a new active session for the agent. When
// explicitExternalID is empty the external id is derived from the agent
// name. Returns the existing session together with ErrAlreadyLinked
// when the agent is already linked, so the caller can surface it.
func (r *Registry) CreateSession(ctx context.Context, agentID, agentName, explicitExternalID string) (*types.Session, error) {
	lock := r.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.ActiveSession(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, fmt.Errorf("agent %s: %w", agentID, ErrAlreadyLinked)
	}

	externalID := explicitExternalID
	if externalID == "" {
		externalID = ExternalSessionID(agentName)
	}

	now := time.Now().UTC()
	sess := &types.Session{
		ID:                uuid.NewString(),
		AgentID:           agentID,
		ExternalSessionID: externalID,
		Channel:           DefaultChannel,
		Status:            types.SessionActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := r.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, storage.ErrSessionExists) {
			// Lost a race with a concurrent creator; report the winner.
			if winner, lookupErr := r.ActiveSession(ctx, agentID); lookupErr == nil && winner != nil {
				return winner, fmt.Errorf("agent %s: %w", agentID, ErrAlreadyLinked)
			}
			return nil, fmt.Errorf("agent %s: %w", agentID, ErrAlreadyLinked)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	r.appendEvent(ctx, &types.Event{
		AgentID: agentID,
		Type:    types.EventSessionLinked,
		Message: fmt.Sprintf("Agent %s linked to session %s", agentName, externalID),
	})

	r.logger.Info("Session created",
		zap.String("agent_id", agentID),
		zap.String("external_session_id", externalID))

	return sess, nil
}

// Deactivate marks the session inactive and records the disconnect.
// Session history is never deleted.
func (r *Registry) Deactivate(ctx context.Context, sess *types.Session) error {
	if err := r.store.DeactivateSession(ctx, sess.ID); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}

	r.appendEvent(ctx, &types.Event{
		AgentID: sess.AgentID,
		Type:    types.EventSessionUnlinked,
		Message: fmt.Sprintf("Session %s deactivated", sess.ExternalSessionID),
	})

	r.logger.Info("Session deactivated",
		zap.String("agent_id", sess.AgentID),
		zap.String("external_session_id", sess.ExternalSessionID))

	return nil
}

func (r *Registry) lockFor(agentID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.agentLocks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		r.agentLocks[agentID] = lock
	}
	return lock
}

// appendEvent writes an audit event. Event logging never fails the
// operation that triggered it.
func (r *Registry) appendEvent(ctx context.Context, e *types.Event) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	if err := r.store.CreateEvent(ctx, e); err != nil {
		r.logger.Warn("Failed to record session event", zap.Error(err))
	}
}
