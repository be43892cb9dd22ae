// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHTTPClient_ConnectAndCall(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.NotEmpty(t, req.ID)

		resp := rpcResponse{JSONRPC: "2.0", Result: json.RawMessage(`{"ok":true}`)}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{
		BaseURL: srv.URL,
		Token:   "secret-token",
		Logger:  zaptest.NewLogger(t),
	})

	require.False(t, client.IsConnected())
	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.IsConnected())
	assert.Equal(t, "Bearer secret-token", gotAuth)

	// Connect is idempotent.
	require.NoError(t, client.Connect(context.Background()))

	result, err := client.Call(context.Background(), "chat.send", SendRequest{SessionKey: "k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestHTTPClient_ConnectFailure(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{
		BaseURL: "http://127.0.0.1:1/rpc",
		Logger:  zaptest.NewLogger(t),
	})

	err := client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, client.IsConnected())
}

func TestHTTPClient_RPCErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: 4000, Message: "model overloaded"}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL})
	_, err := client.Call(context.Background(), "chat.send", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHistoryHelper(t *testing.T) {
	mock := NewMock()
	mock.AppendHistory("sess-a",
		Message{Role: "user", Content: "hello"},
		Message{Role: "assistant", Content: "hi"},
	)

	msgs, err := History(context.Background(), mock, "sess-a", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	last, ok := LastAssistantMessage(msgs)
	require.True(t, ok)
	assert.Equal(t, "hi", last.Content)

	_, ok = LastAssistantMessage([]Message{{Role: "user", Content: "only me"}})
	assert.False(t, ok)
}

func TestSendHelperRecordsIdempotencyKey(t *testing.T) {
	mock := NewMock()
	err := Send(context.Background(), mock, SendRequest{
		SessionKey:     "agent:mission-control-builder",
		Message:        "do the thing",
		IdempotencyKey: "task-t1-1700000000",
	})
	require.NoError(t, err)
	require.Len(t, mock.Sent, 1)
	assert.Equal(t, "task-t1-1700000000", mock.Sent[0].IdempotencyKey)
}
