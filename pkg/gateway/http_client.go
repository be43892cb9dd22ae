// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// rpcRequest is the JSON-RPC 2.0 envelope the gateway speaks.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

// HTTPClient talks JSON-RPC 2.0 to the gateway over HTTP POST.
type HTTPClient struct {
	baseURL   string
	token     string
	http      *http.Client
	logger    *zap.Logger
	connected atomic.Bool
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	// BaseURL is the gateway RPC endpoint, e.g. "http://localhost:4170/rpc".
	BaseURL string

	// Token is an optional bearer token sent on every request.
	Token string

	// Timeout bounds each RPC round trip. Zero means 30s.
	Timeout time.Duration

	Logger *zap.Logger
}

// NewHTTPClient creates a gateway client. No connection is attempted
// until Connect.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		logger:  cfg.Logger,
		http:    &http.Client{Timeout: timeout},
	}
}

// Connect verifies the gateway is reachable. Idempotent: a connected
// client returns immediately.
func (c *HTTPClient) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	if _, err := c.rpc(ctx, "system.ping", nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.connected.Store(true)
	c.logger.Info("Connected to gateway", zap.String("url", c.baseURL))
	return nil
}

// IsConnected reports whether Connect has succeeded.
func (c *HTTPClient) IsConnected() bool {
	return c.connected.Load()
}

// Call invokes a gateway method. A transport failure marks the client
// disconnected so the next EnsureConnected re-probes.
func (c *HTTPClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	result, err := c.rpc(ctx, method, params)
	if err != nil {
		c.connected.Store(false)
		return nil, err
	}
	return result, nil
}

// ListSessions returns the gateway's sessions via sessions.list.
func (c *HTTPClient) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	raw, err := c.Call(ctx, "sessions.list", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sessions.list result: %w", err)
	}
	return resp.Sessions, nil
}

func (c *HTTPClient) rpc(ctx context.Context, method string, params any) (json.RawMessage, error) {
	envelope := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: gateway returned %d: %s", ErrUnavailable, resp.StatusCode, data)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}
