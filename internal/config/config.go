package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vaultsandbox/vsb-agent/internal/provider"
)

// EnvPrefix prefixes every environment override (VSB_AGENT_LOG_LEVEL, ...).
const EnvPrefix = "VSB_AGENT"

// Config holds all configuration for the agent
type Config struct {
	Providers   []string                 `mapstructure:"providers" yaml:"providers"`
	Output      string                   `mapstructure:"output" yaml:"output"`
	Log         LogConfig                `mapstructure:"log" yaml:"log"`
	Timing      TimingConfig             `mapstructure:"timing" yaml:"timing"`
	Surface     SurfaceConfig            `mapstructure:"surface" yaml:"surface"`
	Auth        map[string]string        `mapstructure:"auth" yaml:"auth,omitempty"`
	Accounts    map[string]AccountConfig `mapstructure:"accounts" yaml:"accounts,omitempty"`
	Screenshots ScreenshotConfig         `mapstructure:"screenshots" yaml:"screenshots"`
	History     HistoryConfig            `mapstructure:"history" yaml:"history"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// TimingConfig controls simulated human pacing
type TimingConfig struct {
	MinDelay       time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	Instant        bool          `mapstructure:"instant" yaml:"instant"`
}

// SurfaceConfig controls the simulated browser's reliability.
// A zero seed selects the fully reliable surface.
type SurfaceConfig struct {
	Seed     int64   `mapstructure:"seed" yaml:"seed"`
	MissRate float64 `mapstructure:"miss_rate" yaml:"miss_rate"`
	FailRate float64 `mapstructure:"fail_rate" yaml:"fail_rate"`
}

// AccountConfig holds mock credentials for one provider
type AccountConfig struct {
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// ScreenshotConfig controls failure screenshot artifacts
type ScreenshotConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// HistoryConfig controls the run history store
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Limit   int  `mapstructure:"limit" yaml:"limit"`
}

// Dir returns the vsb-agent config directory path.
// Respects VSB_AGENT_CONFIG_DIR environment variable if set.
func Dir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "vsb-agent"), nil
}

// Path returns the config file path (~/.config/vsb-agent/config.yaml)
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureDir creates the config directory if it doesn't exist
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// LoadEnvFiles loads .env from the working directory and the config
// directory. Variables already set in the environment win.
func LoadEnvFiles() error {
	candidates := []string{".env"}
	if dir, err := Dir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads configuration from the file at path (or the default config
// file when path is empty) and environment variables. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, name := range knownProviders() {
		_ = v.BindEnv("auth." + name)
		_ = v.BindEnv("accounts." + name + ".username")
		_ = v.BindEnv("accounts." + name + ".password")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("providers", []string{string(provider.KindGmail), string(provider.KindOutlook)})
	v.SetDefault("output", "pretty")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	// Timing defaults
	v.SetDefault("timing.min_delay", "500ms")
	v.SetDefault("timing.max_delay", "2.5s")
	v.SetDefault("timing.element_timeout", "5s")
	v.SetDefault("timing.instant", false)

	// Surface defaults
	v.SetDefault("surface.seed", 0)
	v.SetDefault("surface.miss_rate", 0.0)
	v.SetDefault("surface.fail_rate", 0.0)

	v.SetDefault("screenshots.enabled", true)
	v.SetDefault("screenshots.dir", filepath.Join(dir, "screenshots"))

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.limit", 50)
}

func knownProviders() []string {
	return provider.DefaultRegistry().Names()
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Output != "pretty" && c.Output != "json" {
		errs = append(errs, fmt.Errorf("output must be pretty or json, got %q", c.Output))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if c.Timing.MinDelay < 0 || c.Timing.MaxDelay < c.Timing.MinDelay {
		errs = append(errs, fmt.Errorf("timing: need 0 <= min_delay <= max_delay, got %s and %s", c.Timing.MinDelay, c.Timing.MaxDelay))
	}
	if c.Surface.MissRate < 0 || c.Surface.MissRate > 1 {
		errs = append(errs, fmt.Errorf("surface.miss_rate must be within [0, 1], got %v", c.Surface.MissRate))
	}
	if c.Surface.FailRate < 0 || c.Surface.FailRate > 1 {
		errs = append(errs, fmt.Errorf("surface.fail_rate must be within [0, 1], got %v", c.Surface.FailRate))
	}
	if c.History.Limit < 0 {
		errs = append(errs, fmt.Errorf("history.limit must not be negative, got %d", c.History.Limit))
	}
	for name, policy := range c.Auth {
		if policy == "" {
			continue
		}
		if _, err := provider.ParseAuthPolicy(policy); err != nil {
			errs = append(errs, fmt.Errorf("auth.%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// AuthPolicies returns the configured auth policy overrides by provider.
// Providers without an override keep their registered default.
func (c *Config) AuthPolicies() (map[string]provider.AuthPolicy, error) {
	out := make(map[string]provider.AuthPolicy, len(c.Auth))
	for name, policy := range c.Auth {
		if policy == "" {
			continue
		}
		p, err := provider.ParseAuthPolicy(policy)
		if err != nil {
			return nil, fmt.Errorf("auth.%s: %w", name, err)
		}
		out[provider.Normalize(name)] = p
	}
	return out, nil
}

// Credentials returns the configured mock accounts by provider.
func (c *Config) Credentials() map[string]provider.Credentials {
	out := make(map[string]provider.Credentials, len(c.Accounts))
	for name, acct := range c.Accounts {
		creds := provider.Credentials{Username: acct.Username, Password: acct.Password}
		if creds.Empty() {
			continue
		}
		out[provider.Normalize(name)] = creds
	}
	return out
}
