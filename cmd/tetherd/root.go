// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/tether/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "tetherd",
	Short:   "Tether - dispatch and completion orchestration for gateway agents",
	Long:    `Tether (tetherd) coordinates work handed to autonomous agents through an external messaging gateway: task lifecycle, per-agent sessions, completion webhooks, and planning exchanges.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $TETHER_DATA_DIR/tetherd.yaml)")

	// Server flags
	rootCmd.PersistentFlags().Int("http-port", 4000, "HTTP server port")
	rootCmd.PersistentFlags().String("host", "0.0.0.0", "HTTP server host")

	// Gateway flags
	rootCmd.PersistentFlags().String("gateway-url", "http://localhost:3001/rpc", "gateway JSON-RPC endpoint")
	rootCmd.PersistentFlags().String("gateway-token", "", "gateway bearer token (or use keyring/env)")

	// Webhook flags
	rootCmd.PersistentFlags().String("webhook-secret", "", "webhook HMAC secret (or use keyring/env; empty disables verification)")

	// Storage flags
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path (default: $TETHER_DATA_DIR/tether.db)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.http_port", rootCmd.PersistentFlags().Lookup("http-port"))
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("gateway.url", rootCmd.PersistentFlags().Lookup("gateway-url"))
	_ = viper.BindPFlag("gateway.token", rootCmd.PersistentFlags().Lookup("gateway-token"))
	_ = viper.BindPFlag("webhook.secret", rootCmd.PersistentFlags().Lookup("webhook-secret"))
	_ = viper.BindPFlag("storage.db_path", rootCmd.PersistentFlags().Lookup("db-path"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
}
