package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values from the config file.
const (
	EnvTautulliURL    = "TAUTULLI_URL"
	EnvTautulliAPIKey = "TAUTULLI_API_KEY"
	EnvDatabasePath   = "TAUTSYNC_DB_PATH"
	EnvLogLevel       = "TAUTSYNC_LOG_LEVEL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Tautulli TautulliConfig `toml:"tautulli"`
	Database DatabaseConfig `toml:"database"`
	Sync     SyncConfig     `toml:"sync"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      LogConfig      `toml:"log"`
}

// TautulliConfig contains the remote API location, credentials and request tuning.
type TautulliConfig struct {
	URL               string   `toml:"url"`
	APIKey            string   `toml:"api_key"`
	Timeout           Duration `toml:"timeout"`
	PageSize          int      `toml:"page_size"`
	MaxPages          int      `toml:"max_pages"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	MaxRetries        int      `toml:"max_retries"`
	RetryBudget       Duration `toml:"retry_budget"` // total backoff sleep allowed per collection fetch
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SyncConfig contains defaults for the sync and schedule commands.
type SyncConfig struct {
	LockPath string `toml:"lock_path"`
	Mode     string `toml:"mode"`
	Prune    bool   `toml:"prune"`
	Schedule string `toml:"schedule"`
}

// MetricsConfig configures the optional Prometheus Pushgateway push after each run and the
// status listener used by the schedule command.
type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
	Listen         string `toml:"listen"` // e.g. ":9464"; empty disables /metrics and /healthz
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration wraps [time.Duration] so it can be written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, text)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFiles loads KEY=value pairs from dotenv files into the process environment.
// Missing files are ignored and variables that are already set are left untouched.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with any of the supported environment variables.
//
// lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvTautulliURL); ok && v != "" {
		c.Tautulli.URL = v
	}
	if v, ok := lookup(EnvTautulliAPIKey); ok && v != "" {
		c.Tautulli.APIKey = v
	}
	if v, ok := lookup(EnvDatabasePath); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks the settings needed to talk to the remote API.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Tautulli.URL) == "" || strings.TrimSpace(c.Tautulli.APIKey) == "" {
		return fmt.Errorf("%w: tautulli url and api_key are required", ErrMissingCredentials)
	}
	u, err := url.Parse(c.Tautulli.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: tautulli url %q", ErrInvalidConfig, c.Tautulli.URL)
	}
	if c.Tautulli.PageSize <= 0 {
		return fmt.Errorf("%w: page_size must be positive", ErrInvalidConfig)
	}
	if c.Tautulli.MaxPages <= 0 {
		return fmt.Errorf("%w: max_pages must be positive", ErrInvalidConfig)
	}
	switch c.Sync.Mode {
	case "", "incremental", "full":
	default:
		return fmt.Errorf("%w: sync mode %q", ErrInvalidConfig, c.Sync.Mode)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
