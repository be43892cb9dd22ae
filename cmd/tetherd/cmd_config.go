// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	tetherconfig "github.com/teradata-labs/tether/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tether configuration",
	Long:  `Manage configuration files and secrets for the tether server.`,
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [key-name]",
	Short: "Save a secret to the system keyring",
	Long: `Save a secret to the system keyring securely.

The value will be stored in your system's secure credential storage
(Keychain on macOS, Credential Manager on Windows, Secret Service on Linux).

Run 'tetherd config list-keys' to see available key names.`,
	Args: cobra.ExactArgs(1),
	Run:  runConfigSetKey,
}

var configGetKeyCmd = &cobra.Command{
	Use:   "get-key [key-name]",
	Short: "Retrieve a secret from the system keyring",
	Long:  `Retrieve a secret from the system keyring (for verification).`,
	Args:  cobra.ExactArgs(1),
	Run:   runConfigGetKey,
}

var configDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key [key-name]",
	Short: "Delete a secret from the system keyring",
	Long:  `Remove a secret from the system keyring.`,
	Args:  cobra.ExactArgs(1),
	Run:   runConfigDeleteKey,
}

var configListKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "List available secret keys",
	Long:  `List all available secret keys that can be stored in the keyring.`,
	Run:   runConfigListKeys,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration (merged from all sources).`,
	Run:   runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configGetKeyCmd)
	configCmd.AddCommand(configDeleteKeyCmd)
	configCmd.AddCommand(configListKeysCmd)
	configCmd.AddCommand(configShowCmd)
}

// ListAvailableSecretKeys returns the keyring key names tether knows.
func ListAvailableSecretKeys() []string {
	mappings := GetSecretMappings()
	keys := make([]string, 0, len(mappings))
	for _, m := range mappings {
		keys = append(keys, m.KeyringKey)
	}
	return keys
}

func runConfigSetKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	validKeys := make(map[string]bool)
	for _, k := range ListAvailableSecretKeys() {
		validKeys[k] = true
	}
	if !validKeys[keyName] {
		fmt.Fprintf(os.Stderr, "Invalid key name: %s\n", keyName)
		fmt.Fprintf(os.Stderr, "Available keys:\n")
		for _, k := range ListAvailableSecretKeys() {
			fmt.Fprintf(os.Stderr, "  - %s\n", k)
		}
		os.Exit(1)
	}

	// Read secret from stdin (without echo)
	fmt.Printf("Enter %s (input hidden): ", keyName)
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	secret := string(secretBytes)
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Secret cannot be empty\n")
		os.Exit(1)
	}

	if err := keyring.Set(ServiceName, keyName, secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving to keyring: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Saved %s to system keyring\n", keyName)
}

func runConfigGetKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	secret, err := keyring.Get(ServiceName, keyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving key: %v\n", err)
		fmt.Fprintf(os.Stderr, "Key not found in keyring. Set it with: tetherd config set-key %s\n", keyName)
		os.Exit(1)
	}

	fmt.Printf("%s: %s\n", keyName, maskSecret(secret))
}

func runConfigDeleteKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	if err := keyring.Delete(ServiceName, keyName); err != nil {
		fmt.Fprintf(os.Stderr, "Error deleting key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Deleted %s from system keyring\n", keyName)
}

func runConfigListKeys(cmd *cobra.Command, args []string) {
	fmt.Println("Available secret keys:")
	fmt.Println("======================")
	for _, key := range ListAvailableSecretKeys() {
		fmt.Printf("  - %s\n", key)
	}
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tetherd config set-key <key-name>")
	fmt.Println("  tetherd config get-key <key-name>")
	fmt.Println("  tetherd config delete-key <key-name>")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	fmt.Println("Server:")
	fmt.Printf("  Host: %s\n", config.Server.Host)
	fmt.Printf("  HTTP port: %d\n", config.Server.HTTPPort)
	fmt.Println()

	fmt.Println("Gateway:")
	fmt.Printf("  URL: %s\n", config.Gateway.URL)
	fmt.Printf("  Token: %s\n", maskOrUnset(config.Gateway.Token))
	fmt.Println()

	fmt.Println("Webhook:")
	fmt.Printf("  Public URL: %s\n", config.Webhook.PublicURL)
	fmt.Printf("  Secret: %s\n", maskOrUnset(config.Webhook.Secret))
	fmt.Printf("  Auth token: %s\n", maskOrUnset(config.Webhook.AuthToken))
	fmt.Println()

	fmt.Println("Storage:")
	fmt.Printf("  DB path: %s\n", config.Storage.DBPath)
	fmt.Println()

	fmt.Println("Planning:")
	fmt.Printf("  Poll interval: %ds\n", config.Planning.PollIntervalSeconds)
	fmt.Printf("  Poll attempts: %d\n", config.Planning.PollAttempts)
	fmt.Printf("  Reconcile schedule: %s\n", config.Planning.ReconcileSchedule)
	fmt.Println()

	fmt.Println("Output:")
	fmt.Printf("  Base dir: %s\n", config.OutputDir)
	fmt.Println()

	fmt.Println("Logging:")
	fmt.Printf("  Level: %s\n", config.Logging.Level)
	fmt.Println()

	fmt.Printf("Data dir: %s\n", tetherconfig.GetTetherDataDir())
}

// maskSecret masks a secret for display.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func maskOrUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return maskSecret(s)
}
