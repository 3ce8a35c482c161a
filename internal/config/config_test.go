// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-toolguard/internal/security"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, security.DefaultMaxOutputSize, p.MaxOutputSize)
	assert.Equal(t, security.DefaultCommandTimeout, p.DefaultTimeout)
	assert.Equal(t, security.DefaultMaxCommandTimeout, p.MaxTimeout)
	assert.True(t, p.ShellDecomposition)
	assert.Equal(t, security.DefaultDisallowedCommands, p.DisallowedCommands)
}

func TestLoadFromPath_Formats(t *testing.T) {
	dir := t.TempDir()
	ws := t.TempDir()

	files := map[string]string{
		"config.toml": `
[workspace]
root = "` + ws + `"

[security]
max_output_size = 5000
shell_decomposition = false

[logging]
level = "debug"
`,
		"config.yaml": `
workspace:
  root: ` + ws + `
security:
  max_output_size: 5000
  shell_decomposition: false
logging:
  level: debug
`,
		"config.jsonc": `{
  // workspace the tools are confined to
  "workspace": {"root": "` + ws + `"},
  "security": {"max_output_size": 5000, "shell_decomposition": false,},
  /* verbose */
  "logging": {"level": "debug"},
}`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadFromPath(writeFile(t, dir, name, content))
			require.NoError(t, err)

			assert.Equal(t, ws, cfg.Workspace.Root)
			assert.Equal(t, 5000, cfg.Security.MaxOutputSize)
			assert.False(t, cfg.Security.ShellDecomposition)
			assert.Equal(t, "debug", cfg.Logging.Level)

			// Omitted keys keep their defaults.
			assert.True(t, cfg.Security.LogRejectionDetail)
			assert.Equal(t, 30, cfg.Security.DefaultTimeoutSecs)
			assert.Equal(t, Default().Security.DisallowedCommands, cfg.Security.DisallowedCommands)
			assert.Equal(t, "text", cfg.Logging.Format)
		})
	}
}

func TestLoadFromPath_ListsReplaceDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.toml", `
[security]
disallowed_commands = ["sudo", "curl"]
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sudo", "curl"}, cfg.Security.DisallowedCommands)
}

func TestLoadFromPath_RelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "c.toml", `
[workspace]
root = "ws"

[security]
protected_env_file = "protected.env"

[audit]
database_path = "data/audit.db"
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ws"), cfg.Workspace.Root)
	assert.Equal(t, filepath.Join(dir, "protected.env"), cfg.Security.ProtectedEnvFile)
	assert.Equal(t, filepath.Join(dir, "data", "audit.db"), cfg.Audit.DatabasePath)
}

func TestLoadFromPath_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name, file, content, wantErr string
	}{
		{"unknown toml key", "a.toml", "[security]\nmax_outptu_size = 1\n", "unknown config keys: security.max_outptu_size"},
		{"unknown yaml key", "a.yaml", "security:\n  bogus: 1\n", "field bogus not found"},
		{"unknown json key", "a.json", `{"bogus": 1}`, `unknown field "bogus"`},
		{"bad toml", "b.toml", "[security\n", "failed to decode TOML"},
		{"extension", "c.ini", "x=1", "unsupported config format"},
		{"validation", "d.toml", "[logging]\nlevel = \"loud\"\n", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromPath(writeFile(t, dir, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := LoadFromPath(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, ".", cfg.Workspace.Root)
}

func TestLoad_SearchPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := ConfigDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0700))
	want := writeFile(t, dir, "config.yaml", "server:\n  workers: 9\n")

	cfg, path, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, want, path)
	assert.Equal(t, 9, cfg.Server.Workers)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("RIGRUN_WORKSPACE", "/srv/ws")
	t.Setenv("RIGRUN_MAX_OUTPUT_SIZE", "1234")
	t.Setenv("RIGRUN_DEFAULT_TIMEOUT", "5")
	t.Setenv("RIGRUN_MAX_TIMEOUT", "not-a-number")
	t.Setenv("RIGRUN_LOG_LEVEL", "warn")
	t.Setenv("RIGRUN_LOG_FORMAT", "json")
	t.Setenv("RIGRUN_AUDIT_DB", "/var/lib/audit.db")
	t.Setenv("RIGRUN_AUDIT_ENABLED", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/srv/ws", cfg.Workspace.Root)
	assert.Equal(t, 1234, cfg.Security.MaxOutputSize)
	assert.Equal(t, 5, cfg.Security.DefaultTimeoutSecs)
	assert.Equal(t, 600, cfg.Security.MaxTimeoutSecs)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/audit.db", cfg.Audit.DatabasePath)
	assert.True(t, cfg.Audit.Enabled)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Security.DefaultTimeoutSecs = 900
	cfg.Security.DisallowedPathPatterns = []string{"("}
	cfg.Retry.MaxAttempts = 0
	cfg.Audit.Enabled = true
	cfg.Audit.DatabasePath = ""
	cfg.Logging.Format = "xml"
	cfg.Server.Workers = 0

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, len(verrs))
	for i, v := range verrs {
		fields[i] = v.Field
	}
	assert.ElementsMatch(t, []string{
		"security.default_timeout_secs",
		"security.disallowed_path_patterns[0]",
		"retry.max_attempts",
		"audit.database_path",
		"logging.format",
		"server.workers",
	}, fields)
}

func TestPolicy_ProtectedEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Workspace.Root = dir
	cfg.Security.ProtectedEnvNames = []string{"DATABASE_URL"}
	cfg.Security.ProtectedEnvFile = writeFile(t, dir, "protected", "# names\nSENTRY_DSN\n")
	cfg.Limits.MaxOpenFiles = 64
	cfg.Security.DefaultTimeoutSecs = 7

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, []string{"DATABASE_URL", "SENTRY_DSN"}, p.ProtectedEnvNames)
	assert.Equal(t, uint64(64), p.Limits.MaxOpenFiles)
	assert.Equal(t, 7*time.Second, p.DefaultTimeout)

	sec, err := security.NewContext(p, nil)
	require.NoError(t, err)
	assert.True(t, sec.IsProtectedEnv("SENTRY_DSN"))

	cfg.Security.ProtectedEnvFile = filepath.Join(dir, "missing")
	_, err = cfg.Policy()
	assert.Error(t, err)
}

func TestDerivedSettings(t *testing.T) {
	cfg := Default()
	cfg.Retry = RetryConfig{MaxAttempts: 4, BaseDelayMS: 20, MaxDelayMS: -1}
	cfg.Audit.RetentionDays = 2

	rp := cfg.RetryPolicy()
	assert.Equal(t, 4, rp.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, rp.BaseDelay)
	assert.Less(t, rp.MaxDelay, time.Duration(0))
	assert.Equal(t, 48*time.Hour, cfg.Retention())
	assert.Equal(t, int64(10*1024*1024), cfg.FileOptions().MaxReadSize)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Workspace.Root = t.TempDir()
	cfg.Security.MaxOutputSize = 777
	cfg.RateLimit.RequestsPerSecond = 2.5

	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 777, loaded.Security.MaxOutputSize)
	assert.Equal(t, 2.5, loaded.RateLimit.RequestsPerSecond)
	assert.Equal(t, cfg.Security.DisallowedCommandPatterns, loaded.Security.DisallowedCommandPatterns)
}

func TestClone_IsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Security.DisallowedCommands[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Security.DisallowedCommands[0])
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("security.max_output_size", "42"))
	require.NoError(t, cfg.Set("security.shell_decomposition", "false"))
	require.NoError(t, cfg.Set("security.protected_env_names", "A, B,,C"))
	require.NoError(t, cfg.Set("limits.max_open_files", "128"))
	require.NoError(t, cfg.Set("rate_limit.requests_per_second", "0.5"))
	require.NoError(t, cfg.Set("workspace.root", "/tmp/ws"))

	v, err := cfg.Get("security.max_output_size")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.False(t, cfg.Security.ShellDecomposition)
	assert.Equal(t, []string{"A", "B", "C"}, cfg.Security.ProtectedEnvNames)
	assert.Equal(t, uint64(128), cfg.Limits.MaxOpenFiles)
	assert.Equal(t, 0.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "/tmp/ws", cfg.Workspace.Root)

	section, err := cfg.Get("logging")
	require.NoError(t, err)
	assert.Equal(t, cfg.Logging, section)

	assert.Error(t, cfg.Set("logging", "x"))
	assert.Error(t, cfg.Set("security.nope", "1"))
	assert.Error(t, cfg.Set("security.max_output_size", "lots"))
	assert.Error(t, cfg.Set("limits.max_open_files", "-1"))
	assert.Error(t, cfg.Set("security.max_output_size.x", "1"))
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "workspace.root")
	assert.Contains(t, keys, "security.log_rejection_detail")
	assert.Contains(t, keys, "server.debug_metadata")
	assert.NotContains(t, keys, "security")
	for _, k := range keys {
		_, err := Default().Get(k)
		assert.NoError(t, err, k)
	}
}
