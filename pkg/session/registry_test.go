// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/tether/pkg/gateway"
	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/types"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryStore, *gateway.Mock) {
	t.Helper()
	store := storage.NewMemoryStore()
	gw := gateway.NewMock()
	return NewRegistry(store, gw, zaptest.NewLogger(t)), store, gw
}

func TestRegistry_CreateSessionDerivesExternalID(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry(t)

	sess, err := reg.CreateSession(ctx, "agent-1", "Builder Bot", "")
	require.NoError(t, err)
	assert.Equal(t, "mission-control-builder-bot", sess.ExternalSessionID)
	assert.Equal(t, types.SessionActive, sess.Status)
	assert.Equal(t, DefaultChannel, sess.Channel)

	// Link event recorded.
	events, err := store.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventSessionLinked, events[0].Type)
}

func TestRegistry_CreateSessionExplicitID(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	sess, err := reg.CreateSession(ctx, "agent-1", "Builder Bot", "custom-session-42")
	require.NoError(t, err)
	assert.Equal(t, "custom-session-42", sess.ExternalSessionID)
}

func TestRegistry_CreateSessionAlreadyLinked(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	first, err := reg.CreateSession(ctx, "agent-1", "Builder Bot", "")
	require.NoError(t, err)

	existing, err := reg.CreateSession(ctx, "agent-1", "Builder Bot", "")
	require.ErrorIs(t, err, ErrAlreadyLinked)
	require.NotNil(t, existing)
	assert.Equal(t, first.ID, existing.ID)
}

func TestRegistry_CreateSessionConcurrent(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reg.CreateSession(ctx, "agent-1", "Builder Bot", "")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyLinked)
		}
	}
	assert.Equal(t, 1, succeeded)

	active, err := store.ActiveSessionForAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.NotNil(t, active)
}

func TestRegistry_DeactivateAllowsRelink(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry(t)

	sess, err := reg.CreateSession(ctx, "agent-1", "Builder Bot", "")
	require.NoError(t, err)

	require.NoError(t, reg.Deactivate(ctx, sess))

	active, err := reg.ActiveSession(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	// History survives: the old row is inactive, not gone.
	old, err := store.SessionByExternalID(ctx, sess.ExternalSessionID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionInactive, old.Status)

	// A fresh session may now be created.
	_, err = reg.CreateSession(ctx, "agent-1", "Builder Bot", "")
	require.NoError(t, err)
}

func TestRegistry_EnsureConnected(t *testing.T) {
	ctx := context.Background()
	reg, _, gw := newTestRegistry(t)

	require.NoError(t, reg.EnsureConnected(ctx))
	assert.True(t, gw.IsConnected())

	// Idempotent once connected.
	require.NoError(t, reg.EnsureConnected(ctx))
}

func TestRegistry_EnsureConnectedFailure(t *testing.T) {
	ctx := context.Background()
	reg, _, gw := newTestRegistry(t)
	gw.ConnectErr = assert.AnError

	err := reg.EnsureConnected(ctx)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Builder Bot", "builder-bot"},
		{"  Fix: login/signup flow!  ", "fix-login-signup-flow"},
		{"Résumé Überprüfung", "resume-uberprufung"},
		{"already-slugged", "already-slugged"},
		{"UPPER_case 123", "upper-case-123"},
		{"", ""},
		{"---", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "Slugify(%q)", tt.in)
	}
}
