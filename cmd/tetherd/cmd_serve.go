// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/tether/pkg/dispatch"
	"github.com/teradata-labs/tether/pkg/gateway"
	"github.com/teradata-labs/tether/pkg/planning"
	"github.com/teradata-labs/tether/pkg/server"
	"github.com/teradata-labs/tether/pkg/session"
	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tether server",
	Long: `Start the tether HTTP server: dispatch, planning, agent session
links, the completion webhook, and the SSE event stream.

Press Ctrl+C to gracefully shutdown.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	// Create production logger (stack traces only for ERROR level)
	zapConfig := zap.NewProductionConfig()

	logLevel := zap.InfoLevel // default
	if config.Logging.Level != "" {
		if err := logLevel.UnmarshalText([]byte(config.Logging.Level)); err != nil {
			log.Printf("Invalid log level %q, using INFO: %v", config.Logging.Level, err)
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(logLevel)

	if config.Logging.File != "" {
		zapConfig.OutputPaths = []string{config.Logging.File}
		zapConfig.ErrorOutputPaths = []string{config.Logging.File}
	}

	logger, err := zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tether server", zap.String("version", rootCmd.Version))

	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		logger.Info("Config file loaded", zap.String("path", configFileUsed))
	} else {
		logger.Info("No config file found, using defaults + environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.NewSQLiteStore(ctx, config.Storage.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("path", config.Storage.DBPath), zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	// Gateway client
	gw := gateway.NewHTTPClient(gateway.HTTPClientConfig{
		BaseURL: config.Gateway.URL,
		Token:   config.Gateway.Token,
		Logger:  logger,
	})
	if err := gw.Connect(ctx); err != nil {
		// The gateway may come up later; dispatch and planning retry on use.
		logger.Warn("Gateway not reachable at startup", zap.String("url", config.Gateway.URL), zap.Error(err))
	}

	// Engine components
	registry := session.NewRegistry(store, gw, logger)
	orchestrator := dispatch.NewOrchestrator(store, registry, gw, dispatch.Config{
		WebhookURL:       config.Webhook.PublicURL,
		WebhookAuthToken: config.Webhook.AuthToken,
		OutputBaseDir:    config.OutputDir,
	}, logger)
	planner := planning.NewPlanner(store, gw, planning.Config{
		PollInterval: config.Planning.PollInterval(),
		PollAttempts: config.Planning.PollAttempts,
	}, logger)
	completion := webhook.NewHandler(store, config.Webhook.Secret, logger)

	reconciler := planning.NewReconciler(store, planner, config.Planning.ReconcileSchedule, logger)
	if err := reconciler.Start(); err != nil {
		logger.Fatal("Failed to start planning reconciler", zap.Error(err))
	}
	defer reconciler.Stop()

	// HTTP server
	httpServer := server.NewHTTPServer(store, orchestrator, planner, registry, completion, config.Server.Addr(), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(ctx)
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down gracefully...", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
