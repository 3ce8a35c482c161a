// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-toolguard/internal/fsys"
	"github.com/jeranaias/rigrun-toolguard/internal/logging"
	"github.com/jeranaias/rigrun-toolguard/internal/retry"
	"github.com/jeranaias/rigrun-toolguard/internal/security"
	"github.com/jeranaias/rigrun-toolguard/internal/util"
)

// CurrentVersion is written into new configuration files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete toolguard configuration.
type Config struct {
	Version string `toml:"version" yaml:"version" json:"version"`

	Workspace WorkspaceConfig `toml:"workspace" yaml:"workspace" json:"workspace"`
	Security  SecurityConfig  `toml:"security" yaml:"security" json:"security"`
	Limits    LimitsConfig    `toml:"limits" yaml:"limits" json:"limits"`
	Files     FilesConfig     `toml:"files" yaml:"files" json:"files"`
	Retry     RetryConfig     `toml:"retry" yaml:"retry" json:"retry"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	Audit     AuditConfig     `toml:"audit" yaml:"audit" json:"audit"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging" json:"logging"`
	Server    ServerConfig    `toml:"server" yaml:"server" json:"server"`
}

// WorkspaceConfig locates the directory all access is confined to.
type WorkspaceConfig struct {
	// Root is the workspace directory. A relative root in a config file is
	// relative to that file.
	Root string `toml:"root" yaml:"root" json:"root"`
}

// SecurityConfig mirrors security.Policy in file form.
type SecurityConfig struct {
	MaxOutputSize      int `toml:"max_output_size" yaml:"max_output_size" json:"max_output_size"`
	DefaultTimeoutSecs int `toml:"default_timeout_secs" yaml:"default_timeout_secs" json:"default_timeout_secs"`
	MaxTimeoutSecs     int `toml:"max_timeout_secs" yaml:"max_timeout_secs" json:"max_timeout_secs"`
	MaxCommandLength   int `toml:"max_command_length" yaml:"max_command_length" json:"max_command_length"`

	ProtectedEnvPatterns []string `toml:"protected_env_patterns" yaml:"protected_env_patterns" json:"protected_env_patterns"`
	ProtectedEnvNames    []string `toml:"protected_env_names" yaml:"protected_env_names" json:"protected_env_names"`

	// ProtectedEnvFile names a file of additional protected names, one per line.
	ProtectedEnvFile string `toml:"protected_env_file" yaml:"protected_env_file" json:"protected_env_file"`

	DisallowedCommands        []string `toml:"disallowed_commands" yaml:"disallowed_commands" json:"disallowed_commands"`
	DisallowedCommandPatterns []string `toml:"disallowed_command_patterns" yaml:"disallowed_command_patterns" json:"disallowed_command_patterns"`
	DisallowedPathPatterns    []string `toml:"disallowed_path_patterns" yaml:"disallowed_path_patterns" json:"disallowed_path_patterns"`

	ShellDecomposition bool `toml:"shell_decomposition" yaml:"shell_decomposition" json:"shell_decomposition"`
	LogRejectionDetail bool `toml:"log_rejection_detail" yaml:"log_rejection_detail" json:"log_rejection_detail"`
}

// LimitsConfig holds per-process resource limits. Zero inherits.
type LimitsConfig struct {
	MaxOpenFiles         uint64 `toml:"max_open_files" yaml:"max_open_files" json:"max_open_files"`
	MaxFileSizeBytes     uint64 `toml:"max_file_size_bytes" yaml:"max_file_size_bytes" json:"max_file_size_bytes"`
	MaxCPUSeconds        uint64 `toml:"max_cpu_seconds" yaml:"max_cpu_seconds" json:"max_cpu_seconds"`
	MaxAddressSpaceBytes uint64 `toml:"max_address_space_bytes" yaml:"max_address_space_bytes" json:"max_address_space_bytes"`
}

// FilesConfig bounds file tool work.
type FilesConfig struct {
	MaxReadSize    int64 `toml:"max_read_size" yaml:"max_read_size" json:"max_read_size"`
	MaxListEntries int   `toml:"max_list_entries" yaml:"max_list_entries" json:"max_list_entries"`
}

// RetryConfig controls retries of transient failures.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	BaseDelayMS int `toml:"base_delay_ms" yaml:"base_delay_ms" json:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms" yaml:"max_delay_ms" json:"max_delay_ms"`
}

// RateLimitConfig caps tool invocations. Zero requests per second disables
// the limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" yaml:"burst" json:"burst"`
}

// AuditConfig controls the invocation database.
type AuditConfig struct {
	Enabled      bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	DatabasePath string `toml:"database_path" yaml:"database_path" json:"database_path"`

	// RetentionDays prunes older records at startup. Zero keeps everything.
	RetentionDays int `toml:"retention_days" yaml:"retention_days" json:"retention_days"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
}

// ServerConfig controls the serve loop.
type ServerConfig struct {
	Workers       int  `toml:"workers" yaml:"workers" json:"workers"`
	DebugMetadata bool `toml:"debug_metadata" yaml:"debug_metadata" json:"debug_metadata"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	p := security.DefaultPolicy(".")
	auditPath := ""
	if dir, err := ConfigDir(); err == nil {
		auditPath = filepath.Join(dir, "audit.db")
	}

	return &Config{
		Version: CurrentVersion,

		Workspace: WorkspaceConfig{Root: "."},

		Security: SecurityConfig{
			MaxOutputSize:             p.MaxOutputSize,
			DefaultTimeoutSecs:        int(p.DefaultTimeout / time.Second),
			MaxTimeoutSecs:            int(p.MaxTimeout / time.Second),
			MaxCommandLength:          p.MaxCommandLength,
			ProtectedEnvPatterns:      p.ProtectedEnvPatterns,
			DisallowedCommands:        p.DisallowedCommands,
			DisallowedCommandPatterns: p.DisallowedCommandPatterns,
			DisallowedPathPatterns:    p.DisallowedPathPatterns,
			ShellDecomposition:        p.ShellDecomposition,
			LogRejectionDetail:        p.LogRejectionDetail,
		},

		Files: FilesConfig{
			MaxReadSize:    fsys.DefaultMaxReadSize,
			MaxListEntries: fsys.DefaultMaxListEntries,
		},

		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelayMS: int(retry.DefaultBaseDelay / time.Millisecond),
			MaxDelayMS:  int(retry.DefaultMaxDelay / time.Millisecond),
		},

		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0, // unlimited
			Burst:             10,
		},

		Audit: AuditConfig{
			Enabled:       false,
			DatabasePath:  auditPath,
			RetentionDays: 30,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatText,
		},

		Server: ServerConfig{
			Workers: 4,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun", "toolguard"), nil
}

// SearchPaths returns the files Load tries, in order.
func SearchPaths() []string {
	dir, err := ConfigDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.json"),
	}
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from path, or from the first existing file in
// SearchPaths when path is empty. With no file at all the defaults are used.
// Environment overrides are applied last. The returned string is the file
// that was loaded, empty for defaults.
func Load(path string) (*Config, string, error) {
	if path != "" {
		cfg, err := LoadFromPath(path)
		return cfg, path, err
	}

	for _, candidate := range SearchPaths() {
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := LoadFromPath(candidate)
			return cfg, candidate, err
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.finish(); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The format follows the extension: .toml, .yaml/.yml, or
// .json/.jsonc (comments and trailing commas allowed). Unknown keys are
// rejected.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	// Relative paths inside the file are relative to the file.
	base := filepath.Dir(path)
	cfg.Workspace.Root = resolveRelative(base, cfg.Workspace.Root)
	cfg.Security.ProtectedEnvFile = resolveRelative(base, cfg.Security.ProtectedEnvFile)
	cfg.Audit.DatabasePath = resolveRelative(base, cfg.Audit.DatabasePath)

	cfg.ApplyEnvOverrides()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext on top of the defaults.
// Keys the file omits keep their default values.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .toml, .yaml, .yml, .json or .jsonc)", ext)
	}

	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// finish applies defaults and validation after all sources are merged.
func (c *Config) finish() error {
	if err := fillDefaults(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = defaults.Workspace.Root
	}

	// Security
	if cfg.Security.MaxOutputSize == 0 {
		cfg.Security.MaxOutputSize = defaults.Security.MaxOutputSize
	}
	if cfg.Security.DefaultTimeoutSecs == 0 {
		cfg.Security.DefaultTimeoutSecs = defaults.Security.DefaultTimeoutSecs
	}
	if cfg.Security.MaxTimeoutSecs == 0 {
		cfg.Security.MaxTimeoutSecs = defaults.Security.MaxTimeoutSecs
	}
	if cfg.Security.MaxCommandLength == 0 {
		cfg.Security.MaxCommandLength = defaults.Security.MaxCommandLength
	}

	// Files
	if cfg.Files.MaxReadSize == 0 {
		cfg.Files.MaxReadSize = defaults.Files.MaxReadSize
	}
	if cfg.Files.MaxListEntries == 0 {
		cfg.Files.MaxListEntries = defaults.Files.MaxListEntries
	}

	// Retry
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}

	// Server
	if cfg.Server.Workers == 0 {
		cfg.Server.Workers = defaults.Server.Workers
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration to path atomically with 0600 permissions,
// creating the directory if needed.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# toolguard configuration file")
	fmt.Fprintln(&buf, "# Generated by toolguard - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// ==========================================================================
	// Workspace and Security
	// ==========================================================================

	if strings.TrimSpace(c.Workspace.Root) == "" {
		add("workspace.root", "must not be empty")
	}
	if c.Security.MaxOutputSize < 0 {
		add("security.max_output_size", "must be positive, got %d", c.Security.MaxOutputSize)
	}
	if c.Security.DefaultTimeoutSecs < 0 {
		add("security.default_timeout_secs", "must be positive, got %d", c.Security.DefaultTimeoutSecs)
	}
	if c.Security.MaxTimeoutSecs < 0 {
		add("security.max_timeout_secs", "must be positive, got %d", c.Security.MaxTimeoutSecs)
	}
	if c.Security.DefaultTimeoutSecs > c.Security.MaxTimeoutSecs && c.Security.MaxTimeoutSecs > 0 {
		add("security.default_timeout_secs", "must not exceed max_timeout_secs (%d > %d)",
			c.Security.DefaultTimeoutSecs, c.Security.MaxTimeoutSecs)
	}
	if c.Security.MaxCommandLength < 0 {
		add("security.max_command_length", "must be positive, got %d", c.Security.MaxCommandLength)
	}
	validatePatterns(&errs, "security.disallowed_command_patterns", c.Security.DisallowedCommandPatterns)
	validatePatterns(&errs, "security.disallowed_path_patterns", c.Security.DisallowedPathPatterns)
	for i, name := range c.Security.DisallowedCommands {
		if _, err := filepath.Match(name, ""); err != nil {
			add(fmt.Sprintf("security.disallowed_commands[%d]", i), "invalid glob %q", name)
		}
	}

	// ==========================================================================
	// Files, Retry, Rate limit
	// ==========================================================================

	if c.Files.MaxReadSize < 0 {
		add("files.max_read_size", "must be positive, got %d", c.Files.MaxReadSize)
	}
	if c.Files.MaxListEntries < 0 {
		add("files.max_list_entries", "must be positive, got %d", c.Files.MaxListEntries)
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		add("retry.max_attempts", "must be between 1 and 10, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelayMS < 0 {
		add("retry.base_delay_ms", "must not be negative, got %d", c.Retry.BaseDelayMS)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		add("rate_limit.requests_per_second", "must not be negative, got %g", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.Burst < 0 {
		add("rate_limit.burst", "must not be negative, got %d", c.RateLimit.Burst)
	}

	// ==========================================================================
	// Audit, Logging, Server
	// ==========================================================================

	if c.Audit.Enabled && c.Audit.DatabasePath == "" {
		add("audit.database_path", "required when audit is enabled")
	}
	if c.Audit.RetentionDays < 0 {
		add("audit.retention_days", "must not be negative, got %d", c.Audit.RetentionDays)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		add("logging.format", "invalid format '%s', must be one of: text, json", c.Logging.Format)
	}
	if c.Server.Workers < 1 || c.Server.Workers > 256 {
		add("server.workers", "must be between 1 and 256, got %d", c.Server.Workers)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validatePatterns(errs *ValidateErrors, field string, patterns []string) {
	for i, pattern := range patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// Supported environment variables:
//   - RIGRUN_WORKSPACE: overrides workspace.root
//   - RIGRUN_MAX_OUTPUT_SIZE: overrides security.max_output_size
//   - RIGRUN_DEFAULT_TIMEOUT: overrides security.default_timeout_secs
//   - RIGRUN_MAX_TIMEOUT: overrides security.max_timeout_secs
//   - RIGRUN_LOG_LEVEL: overrides logging.level
//   - RIGRUN_LOG_FORMAT: overrides logging.format
//   - RIGRUN_AUDIT_DB: overrides audit.database_path
//   - RIGRUN_AUDIT_ENABLED: overrides audit.enabled
//
// Numeric values that do not parse are ignored.
func (c *Config) ApplyEnvOverrides() {
	if root := os.Getenv("RIGRUN_WORKSPACE"); root != "" {
		c.Workspace.Root = root
	}
	envInt("RIGRUN_MAX_OUTPUT_SIZE", &c.Security.MaxOutputSize)
	envInt("RIGRUN_DEFAULT_TIMEOUT", &c.Security.DefaultTimeoutSecs)
	envInt("RIGRUN_MAX_TIMEOUT", &c.Security.MaxTimeoutSecs)

	if level := os.Getenv("RIGRUN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("RIGRUN_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if db := os.Getenv("RIGRUN_AUDIT_DB"); db != "" {
		c.Audit.DatabasePath = db
	}
	if enabled := os.Getenv("RIGRUN_AUDIT_ENABLED"); enabled != "" {
		c.Audit.Enabled = enabled == "1" || strings.EqualFold(enabled, "true")
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		*dst = n
	}
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// Policy builds the security policy. Names from ProtectedEnvFile are added
// to ProtectedEnvNames.
func (c *Config) Policy() (security.Policy, error) {
	names := append([]string(nil), c.Security.ProtectedEnvNames...)
	if c.Security.ProtectedEnvFile != "" {
		fromFile, err := security.LoadProtectedNames(c.Security.ProtectedEnvFile)
		if err != nil {
			return security.Policy{}, err
		}
		names = append(names, fromFile...)
	}

	return security.Policy{
		WorkspaceRoot:             c.Workspace.Root,
		DisallowedPathPatterns:    c.Security.DisallowedPathPatterns,
		DisallowedCommands:        c.Security.DisallowedCommands,
		DisallowedCommandPatterns: c.Security.DisallowedCommandPatterns,
		ProtectedEnvPatterns:      c.Security.ProtectedEnvPatterns,
		ProtectedEnvNames:         names,
		MaxOutputSize:             c.Security.MaxOutputSize,
		DefaultTimeout:            time.Duration(c.Security.DefaultTimeoutSecs) * time.Second,
		MaxTimeout:                time.Duration(c.Security.MaxTimeoutSecs) * time.Second,
		MaxCommandLength:          c.Security.MaxCommandLength,
		ShellDecomposition:        c.Security.ShellDecomposition,
		LogRejectionDetail:        c.Security.LogRejectionDetail,
		Limits: security.ResourceLimits{
			MaxOpenFiles:     c.Limits.MaxOpenFiles,
			MaxFileSizeBytes: c.Limits.MaxFileSizeBytes,
			MaxCPUSeconds:    c.Limits.MaxCPUSeconds,
			MaxAddressSpace:  c.Limits.MaxAddressSpaceBytes,
		},
	}, nil
}

// RetryPolicy returns the retry settings.
func (c *Config) RetryPolicy() retry.Policy {
	maxDelay := time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
	if c.Retry.MaxDelayMS < 0 {
		maxDelay = -1
	}
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    maxDelay,
	}
}

// FileOptions returns the file tool limits.
func (c *Config) FileOptions() fsys.Options {
	return fsys.Options{
		MaxReadSize:    c.Files.MaxReadSize,
		MaxListEntries: c.Files.MaxListEntries,
	}
}

// Retention returns how long audit records are kept, zero for forever.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Security.ProtectedEnvPatterns = append([]string(nil), c.Security.ProtectedEnvPatterns...)
	clone.Security.ProtectedEnvNames = append([]string(nil), c.Security.ProtectedEnvNames...)
	clone.Security.DisallowedCommands = append([]string(nil), c.Security.DisallowedCommands...)
	clone.Security.DisallowedCommandPatterns = append([]string(nil), c.Security.DisallowedCommandPatterns...)
	clone.Security.DisallowedPathPatterns = append([]string(nil), c.Security.DisallowedPathPatterns...)
	return &clone
}

// String returns the config as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
