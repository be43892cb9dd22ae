// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Setenv("TETHER_DATA_DIR", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4000, cfg.Server.HTTPPort)
	assert.Equal(t, "0.0.0.0:4000", cfg.Server.Addr())
	assert.Equal(t, "http://localhost:3001/rpc", cfg.Gateway.URL)
	assert.Equal(t, 2*time.Second, cfg.Planning.PollInterval())
	assert.Equal(t, 10, cfg.Planning.PollAttempts)
	assert.Equal(t, "* * * * *", cfg.Planning.ReconcileSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)

	// DB path and output dir derive from the data dir when unset.
	assert.Contains(t, cfg.Storage.DBPath, "tether.db")
	assert.NotEmpty(t, cfg.OutputDir)
}

func TestLoadConfig_File(t *testing.T) {
	viper.Reset()
	dataDir := t.TempDir()
	t.Setenv("TETHER_DATA_DIR", dataDir)

	yaml := `
server:
  host: 127.0.0.1
  http_port: 8080
gateway:
  url: http://gw.internal:9000/rpc
webhook:
  public_url: https://tether.example.com/api/webhooks/complete
planning:
  poll_interval_seconds: 5
  poll_attempts: 3
logging:
  level: debug
`
	cfgPath := filepath.Join(dataDir, "tetherd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, "http://gw.internal:9000/rpc", cfg.Gateway.URL)
	assert.Equal(t, "https://tether.example.com/api/webhooks/complete", cfg.Webhook.PublicURL)
	assert.Equal(t, 5*time.Second, cfg.Planning.PollInterval())
	assert.Equal(t, 3, cfg.Planning.PollAttempts)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestListAvailableSecretKeys(t *testing.T) {
	keys := ListAvailableSecretKeys()
	assert.Contains(t, keys, "gateway_token")
	assert.Contains(t, keys, "webhook_secret")
	assert.Contains(t, keys, "webhook_auth_token")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "abcd...wxyz", maskSecret("abcdefghijklmnopqrstuvwxyz"))
}
