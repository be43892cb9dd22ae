// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	tetherconfig "github.com/teradata-labs/tether/pkg/config"
)

const (
	// ServiceName for keyring storage
	ServiceName = "tether"

	// DefaultConfigFileName without extension
	DefaultConfigFileName = "tetherd"
)

// Config is the full tetherd configuration, resolved from flags,
// config file, environment, keyring, and defaults (in that order).
type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Gateway   GatewayConfig  `mapstructure:"gateway"`
	Webhook   WebhookConfig  `mapstructure:"webhook"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Planning  PlanningConfig `mapstructure:"planning"`
	Logging   LoggingConfig  `mapstructure:"logging"`
	OutputDir string         `mapstructure:"output_dir"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	HTTPPort int    `mapstructure:"http_port"`
}

// GatewayConfig holds the external gateway connection settings.
type GatewayConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"` // From CLI/env/keyring only
}

// WebhookConfig holds completion webhook settings.
type WebhookConfig struct {
	// Secret signs inbound completion bodies. Empty disables
	// verification (development only).
	Secret string `mapstructure:"secret"` // From CLI/env/keyring only

	// PublicURL is the callback address rendered into dispatch messages.
	PublicURL string `mapstructure:"public_url"`

	// AuthToken, when set, is rendered into dispatch messages as a
	// bearer header the agent must send back.
	AuthToken string `mapstructure:"auth_token"` // From CLI/env/keyring only
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// PlanningConfig tunes the planning poll loop and reconciler.
type PlanningConfig struct {
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	PollAttempts        int    `mapstructure:"poll_attempts"`
	ReconcileSchedule   string `mapstructure:"reconcile_schedule"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// PollInterval returns the configured poll interval as a duration.
func (p PlanningConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

// LoadConfig loads configuration with the following precedence:
// CLI flags > config file > environment > keyring > defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(tetherconfig.GetTetherDataDir()) // respects TETHER_DATA_DIR
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/tether/")
		viper.SetConfigName(DefaultConfigFileName) // tetherd.yaml
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found is fine; defaults + env carry the day.
	}

	viper.SetEnvPrefix("TETHER")
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Storage.DBPath == "" {
		config.Storage.DBPath = filepath.Join(tetherconfig.GetTetherDataDir(), "tether.db")
	}
	if config.OutputDir == "" {
		config.OutputDir = tetherconfig.GetOutputBaseDir()
	}

	// Load secrets from keyring if not provided via CLI/env
	// Non-fatal: keyring might not be available - user can provide secrets via CLI/env
	_ = loadSecretsFromKeyring(&config)

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.http_port", 4000)

	viper.SetDefault("gateway.url", "http://localhost:3001/rpc")

	viper.SetDefault("webhook.public_url", "http://localhost:4000/api/webhooks/complete")

	viper.SetDefault("planning.poll_interval_seconds", 2)
	viper.SetDefault("planning.poll_attempts", 10)
	viper.SetDefault("planning.reconcile_schedule", "* * * * *")

	viper.SetDefault("logging.level", "info")
}

// SecretMapping declares where a keyring secret lands in the config.
type SecretMapping struct {
	KeyringKey string
	Setter     func(c *Config, val string)
	IsSet      func(c *Config) bool
}

// GetSecretMappings lists all keyring-backed secrets.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "gateway_token",
			Setter:     func(c *Config, val string) { c.Gateway.Token = val },
			IsSet:      func(c *Config) bool { return c.Gateway.Token != "" },
		},
		{
			KeyringKey: "webhook_secret",
			Setter:     func(c *Config, val string) { c.Webhook.Secret = val },
			IsSet:      func(c *Config) bool { return c.Webhook.Secret != "" },
		},
		{
			KeyringKey: "webhook_auth_token",
			Setter:     func(c *Config, val string) { c.Webhook.AuthToken = val },
			IsSet:      func(c *Config) bool { return c.Webhook.AuthToken != "" },
		},
	}
}

// loadSecretsFromKeyring fills unset secrets from the system keyring.
func loadSecretsFromKeyring(config *Config) error {
	for _, mapping := range GetSecretMappings() {
		// Skip if value is already set (from CLI/env/config file)
		if mapping.IsSet(config) {
			continue
		}

		value, err := GetSecretFromKeyring(mapping.KeyringKey)
		if err == nil && value != "" {
			mapping.Setter(config, value)
		}
		// Non-fatal: if keyring doesn't have the key, just continue
	}
	return nil
}

// GetSecretFromKeyring reads a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SetSecretInKeyring stores a secret in the system keyring.
func SetSecretInKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}
