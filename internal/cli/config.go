// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and validate configuration
//
// Subcommands:
//   show (default)      Print the effective configuration as JSON
//   validate            Load and validate, reporting every problem
//   init [path]         Write a default TOML file (default: ~/.rigrun/toolguard/config.toml)
//   get <key>           Print one setting
//   keys                List every setting
//
// Examples:
//   toolguard config show
//   toolguard -c ./toolguard.yaml config validate
//   toolguard config init --force
//   toolguard --set retry.max_attempts=5 config get retry.max_attempts
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/rigrun-toolguard/internal/config"
)

// ConfigData is the payload of "config show".
type ConfigData struct {
	Path   string         `json:"path"`
	Config *config.Config `json:"config"`
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args, streams IO) error {
	switch args.Subcommand {
	case "", "show":
		cfg, path, err := loadConfig(args)
		if err != nil {
			return err
		}
		return NewJSONResponse("config show", ConfigData{Path: path, Config: cfg}).Write(streams.Out)

	case "validate":
		_, path, err := loadConfig(args)
		if err != nil {
			return err
		}
		if path == "" {
			path = "(defaults)"
		}
		fmt.Fprintf(streams.Out, "Configuration is valid: %s\n", path)
		return nil

	case "init":
		return handleConfigInit(args, streams)

	case "get":
		if len(args.Raw) != 2 {
			return ErrMissingArgument("key", "toolguard config get security.max_output_size")
		}
		cfg, _, err := loadConfig(args)
		if err != nil {
			return err
		}
		value, err := cfg.Get(args.Raw[1])
		if err != nil {
			return NewValidationErrorWithExample("key", args.Raw[1], err.Error(), "toolguard config keys")
		}
		return writeJSON(streams.Out, value)

	case "keys":
		for _, key := range config.Keys() {
			fmt.Fprintln(streams.Out, key)
		}
		return nil

	default:
		return NewValidationErrorWithExample("config subcommand", args.Subcommand, "unknown subcommand", "toolguard config show")
	}
}

// handleConfigInit writes the defaults, plus any --set overrides, as TOML.
func handleConfigInit(args Args, streams IO) error {
	path := args.ConfigPath
	if len(args.Raw) > 1 {
		path = args.Raw[1]
	}
	if path == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return &ConfigError{Err: err}
		}
		path = filepath.Join(dir, "config.toml")
	}
	if filepath.Ext(path) != ".toml" {
		return NewValidationErrorWithExample("path", path, "config init writes TOML", "toolguard config init ./toolguard.toml")
	}

	if _, err := os.Stat(path); err == nil && !args.Force {
		return NewValidationErrorWithExample("path", path, "file exists", "toolguard config init --force")
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := config.Default()
	if err := applyOverrides(cfg, args); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return &ConfigError{Err: err}
	}
	fmt.Fprintf(streams.Out, "Wrote %s\n", path)
	return nil
}
