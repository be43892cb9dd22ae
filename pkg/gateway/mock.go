// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Mock is a scriptable in-memory gateway for tests.
// It records every send and serves per-session transcripts, and can be
// told to fail connects or specific methods.
type Mock struct {
	mu sync.Mutex

	connected bool

	// Sent collects every chat.send payload in order.
	Sent []SendRequest

	// Histories maps session key to the transcript served by
	// chat.history.
	Histories map[string][]Message

	// Sessions is returned by ListSessions.
	Sessions []SessionInfo

	// ConnectErr makes Connect fail.
	ConnectErr error

	// MethodErrs makes Call fail for specific methods.
	MethodErrs map[string]error

	// Calls counts invocations per method.
	Calls map[string]int
}

// NewMock returns an empty mock gateway.
func NewMock() *Mock {
	return &Mock{
		Histories:  make(map[string][]Message),
		MethodErrs: make(map[string]error),
		Calls:      make(map[string]int),
	}
}

func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConnectErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, m.ConnectErr)
	}
	m.connected = true
	return nil
}

func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Mock) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls[method]++
	if err := m.MethodErrs[method]; err != nil {
		return nil, err
	}

	switch method {
	case "chat.send":
		req, err := reencode[SendRequest](params)
		if err != nil {
			return nil, err
		}
		m.Sent = append(m.Sent, req)
		return json.RawMessage(`{"sent":true}`), nil

	case "chat.history":
		req, err := reencode[historyRequest](params)
		if err != nil {
			return nil, err
		}
		msgs := m.Histories[req.SessionKey]
		if req.Limit > 0 && len(msgs) > req.Limit {
			msgs = msgs[len(msgs)-req.Limit:]
		}
		return json.Marshal(historyResponse{Messages: msgs})

	case "system.ping":
		return json.RawMessage(`{"ok":true}`), nil

	default:
		return json.RawMessage(`{}`), nil
	}
}

func (m *Mock) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SessionInfo, len(m.Sessions))
	copy(out, m.Sessions)
	return out, nil
}

// AppendHistory adds messages to a session's scripted transcript.
func (m *Mock) AppendHistory(sessionKey string, msgs ...Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Histories[sessionKey] = append(m.Histories[sessionKey], msgs...)
}

// reencode converts an any-typed params value into its concrete request
// struct by round-tripping through JSON, matching what the wire would do.
func reencode[T any](params any) (T, error) {
	var out T
	data, err := json.Marshal(params)
	if err != nil {
		return out, fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return out, nil
}
