// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config resolves the tether data directory and its layout.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetTetherDataDir returns the tether data directory.
//
// Priority:
// 1. TETHER_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.tether (default)
//
// The returned path is always absolute; ~ is expanded and relative
// paths are resolved. Reads os.Getenv directly, not viper, because it
// runs during bootstrap to locate the config file itself.
func GetTetherDataDir() string {
	if dataDir := os.Getenv("TETHER_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir cannot be determined
		return ".tether"
	}
	return filepath.Join(homeDir, ".tether")
}

// GetTetherSubDir returns a subdirectory within the data directory.
// Example: GetTetherSubDir("output") returns ~/.tether/output.
func GetTetherSubDir(subdir string) string {
	return filepath.Join(GetTetherDataDir(), subdir)
}

// GetOutputBaseDir returns the directory under which per-task output
// directories are derived for dispatch messages.
//
// Priority:
// 1. TETHER_OUTPUT_DIR environment variable (if set and non-empty)
// 2. <data dir>/output (default)
func GetOutputBaseDir() string {
	if outDir := os.Getenv("TETHER_OUTPUT_DIR"); outDir != "" {
		return expandPath(outDir)
	}
	return GetTetherSubDir("output")
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
