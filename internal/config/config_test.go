package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsandbox/vsb-agent/internal/provider"
)

// setupDir points the config directory at a temp dir.
func setupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VSB_AGENT_CONFIG_DIR", dir)
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDir(t *testing.T) {
	t.Run("default directory", func(t *testing.T) {
		t.Setenv("VSB_AGENT_CONFIG_DIR", "")
		dir, err := Dir()
		require.NoError(t, err)
		assert.Contains(t, dir, "vsb-agent")
	})

	t.Run("custom directory from env", func(t *testing.T) {
		customDir := setupDir(t)
		dir, err := Dir()
		require.NoError(t, err)
		assert.Equal(t, customDir, dir)
	})
}

func TestPath(t *testing.T) {
	setupDir(t)

	path, err := Path()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "config.yaml"))
}

// ============================================================================
// Load
// ============================================================================

func TestLoad_Defaults(t *testing.T) {
	dir := setupDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"gmail", "outlook"}, cfg.Providers)
	assert.Equal(t, "pretty", cfg.Output)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.Log.File)
	assert.Equal(t, 500*time.Millisecond, cfg.Timing.MinDelay)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timing.MaxDelay)
	assert.Equal(t, 5*time.Second, cfg.Timing.ElementTimeout)
	assert.False(t, cfg.Timing.Instant)
	assert.Zero(t, cfg.Surface.Seed)
	assert.True(t, cfg.Screenshots.Enabled)
	assert.Equal(t, filepath.Join(dir, "screenshots"), cfg.Screenshots.Dir)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 50, cfg.History.Limit)
	assert.Empty(t, cfg.Credentials())
}

func TestLoad_File(t *testing.T) {
	dir := setupDir(t)
	writeConfig(t, dir, `providers: [outlook]
output: json
log:
  level: debug
timing:
  min_delay: 10ms
  max_delay: 20ms
  instant: true
surface:
  seed: 42
  miss_rate: 0.25
auth:
  outlook: allow
accounts:
  gmail:
    username: me@example.com
    password: secret
`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"outlook"}, cfg.Providers)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "unset keys keep defaults")
	assert.Equal(t, 10*time.Millisecond, cfg.Timing.MinDelay)
	assert.True(t, cfg.Timing.Instant)
	assert.Equal(t, int64(42), cfg.Surface.Seed)
	assert.InDelta(t, 0.25, cfg.Surface.MissRate, 1e-9)

	policies, err := cfg.AuthPolicies()
	require.NoError(t, err)
	require.Contains(t, policies, "outlook")
	assert.Equal(t, provider.PolicyAllow, policies["outlook"].Name())
	assert.NotContains(t, policies, "gmail")

	assert.Equal(t, map[string]provider.Credentials{
		"gmail": {Username: "me@example.com", Password: "secret"},
	}, cfg.Credentials())
}

func TestLoad_ExplicitPath(t *testing.T) {
	setupDir(t)
	other := t.TempDir()
	path := writeConfig(t, other, "output: json\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output)

	t.Run("missing explicit file uses defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(other, "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "pretty", cfg.Output)
	})
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := setupDir(t)
	writeConfig(t, dir, "output: json\n")

	t.Setenv("VSB_AGENT_OUTPUT", "pretty")
	t.Setenv("VSB_AGENT_LOG_LEVEL", "warn")
	t.Setenv("VSB_AGENT_TIMING_INSTANT", "true")
	t.Setenv("VSB_AGENT_PROVIDERS", "gmail,yahoo")
	t.Setenv("VSB_AGENT_AUTH_OUTLOOK", "invalid-credentials")
	t.Setenv("VSB_AGENT_ACCOUNTS_OUTLOOK_USERNAME", "bot@example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pretty", cfg.Output, "env beats file")
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Timing.Instant)
	assert.Equal(t, []string{"gmail", "yahoo"}, cfg.Providers)

	policies, err := cfg.AuthPolicies()
	require.NoError(t, err)
	assert.Equal(t, provider.PolicyInvalidCredentials, policies["outlook"].Name())
	assert.Equal(t, "bot@example.com", cfg.Credentials()["outlook"].Username)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"invalid YAML", "invalid: [yaml", "failed to read config file"},
		{"bad output", "output: xml\n", "output must be pretty or json"},
		{"inverted delays", "timing:\n  min_delay: 2s\n  max_delay: 1s\n", "min_delay <= max_delay"},
		{"rate out of range", "surface:\n  fail_rate: 1.5\n", "surface.fail_rate"},
		{"unknown auth policy", "auth:\n  gmail: sometimes\n", "auth.gmail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupDir(t)
			writeConfig(t, dir, tt.content)

			_, err := Load("")
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := setupDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VSB_AGENT_LOG_LEVEL=error\n"), 0600))
	t.Setenv("VSB_AGENT_LOG_LEVEL", "")
	os.Unsetenv("VSB_AGENT_LOG_LEVEL")

	require.NoError(t, LoadEnvFiles())
	assert.Equal(t, "error", os.Getenv("VSB_AGENT_LOG_LEVEL"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

// ============================================================================
// Set
// ============================================================================

func TestSet(t *testing.T) {
	dir := setupDir(t)
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, Set(path, "timing.instant", "true"))
	require.NoError(t, Set(path, "timing.min_delay", "100ms"))
	require.NoError(t, Set(path, "providers", "gmail, outlook ,yahoo"))
	require.NoError(t, Set(path, "auth.outlook", "Allow"))
	require.NoError(t, Set(path, "accounts.gmail.username", "me@example.com"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	f, err := ReadFile(path)
	require.NoError(t, err)
	v, ok := f.Get("timing.instant")
	require.True(t, ok)
	assert.Equal(t, true, v)
	v, ok = f.Get("timing.min_delay")
	require.True(t, ok, "a second key in the same section keeps the first")
	assert.Equal(t, "100ms", v)
	v, ok = f.Get("accounts.gmail.username")
	require.True(t, ok)
	assert.Equal(t, "me@example.com", v)
	_, ok = f.Get("log.level")
	assert.False(t, ok, "only set keys are written")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Timing.Instant)
	assert.Equal(t, 100*time.Millisecond, cfg.Timing.MinDelay)
	assert.Equal(t, []string{"gmail", "outlook", "yahoo"}, cfg.Providers)
	assert.Equal(t, "allow", cfg.Auth["outlook"])
	assert.Equal(t, "me@example.com", cfg.Accounts["gmail"].Username)
}

func TestParseValue_Errors(t *testing.T) {
	tests := []struct {
		key    string
		value  string
		errMsg string
	}{
		{"api-key", "x", "unknown config key"},
		{"timing.instant", "maybe", "expected true or false"},
		{"history.limit", "ten", "expected an integer"},
		{"surface.miss_rate", "lots", "expected a number"},
		{"timing.max_delay", "soon", "expected a duration"},
		{"auth.outlook", "sometimes", "unknown auth policy"},
		{"accounts.gmail.token", "x", "unknown config key"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := ParseValue(tt.key, tt.value)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "timing.min_delay")
	assert.Contains(t, keys, "auth.<provider>")
	assert.IsIncreasing(t, keys)
}
