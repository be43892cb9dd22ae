// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package gateway is the capability surface tether consumes from the
// external messaging gateway. The gateway is a black box with
// at-least-once, possibly-delayed delivery; everything here is written
// so duplicated or lagging messages are harmless to the caller.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when the gateway cannot be reached.
// Callers must leave local state untouched when they see it, so the
// operation stays safely retryable.
var ErrUnavailable = errors.New("gateway unavailable")

// Message is one role-tagged entry of a gateway session transcript.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// SessionInfo describes a gateway-side session.
type SessionInfo struct {
	Key       string    `json:"key"`
	Channel   string    `json:"channel,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SendRequest is the payload for a chat.send call. The idempotency key
// lets the gateway recognize retried sends of the same logical dispatch.
type SendRequest struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// historyRequest is the payload for a chat.history call.
type historyRequest struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit"`
}

// historyResponse is the result shape of a chat.history call.
type historyResponse struct {
	Messages []Message `json:"messages"`
}

// Client is the injected gateway capability. It is constructed once per
// process and passed by reference into each component; tests substitute
// a Mock implementing the same set.
type Client interface {
	// Connect establishes the gateway connection. Idempotent: calling
	// it while connected is a no-op.
	Connect(ctx context.Context) error

	// IsConnected reports whether the client currently holds a
	// connection.
	IsConnected() bool

	// Call invokes a named gateway method with the given params and
	// returns the raw result.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// ListSessions returns the gateway's known sessions.
	ListSessions(ctx context.Context) ([]SessionInfo, error)
}

// Send delivers a message into a session via chat.send.
func Send(ctx context.Context, c Client, req SendRequest) error {
	if _, err := c.Call(ctx, "chat.send", req); err != nil {
		return fmt.Errorf("chat.send to %s: %w", req.SessionKey, err)
	}
	return nil
}

// History fetches up to limit transcript messages for a session via
// chat.history.
func History(ctx context.Context, c Client, sessionKey string, limit int) ([]Message, error) {
	raw, err := c.Call(ctx, "chat.history", historyRequest{SessionKey: sessionKey, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("chat.history for %s: %w", sessionKey, err)
	}

	var resp historyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode chat.history result: %w", err)
	}
	return resp.Messages, nil
}

// LastAssistantMessage returns the most recent assistant-authored
// message in a transcript, or false when there is none.
func LastAssistantMessage(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			return msgs[i], true
		}
	}
	return Message{}, false
}
