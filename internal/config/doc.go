// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for toolguard.
//
// Supports TOML, YAML and JSON (with comments) configuration formats, with
// sensible defaults, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - SecurityConfig: File form of the security policy
//   - Watcher: Debounced reload of a config file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - --set key=value flags (applied by the caller through Set)
//   - Environment variables (RIGRUN_*)
//   - The file named on the command line, or the first of
//     ~/.rigrun/toolguard/config.{toml,yaml,yml,json}
//   - Built-in defaults
//
// # Usage
//
//	cfg, path, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	policy, err := cfg.Policy()
package config
