package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Storage    StorageConfig    `yaml:"storage"`
	Facets     FacetsConfig     `yaml:"facets"`
	Executor   ExecutorConfig   `yaml:"executor"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// StaticDir is served at / when set.
	StaticDir string `yaml:"static_dir"`
}

// ClickHouseConfig holds the connection used for facets and ping.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Secure enables TLS. It is implied by the native TLS port 9440.
	Secure bool `yaml:"secure"`
}

// StorageConfig holds the saved query database location.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// FacetsConfig controls how autocomplete values are loaded.
type FacetsConfig struct {
	// Lookback bounds how far back distinct values are collected.
	Lookback time.Duration `yaml:"lookback"`

	// TTL is how long a loaded snapshot is served before reloading.
	TTL time.Duration `yaml:"ttl"`

	// Limit caps the number of values per facet.
	Limit int `yaml:"limit"`

	// QueryTimeout bounds a single facet load.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// ExecutorConfig points at the query execution engine.
type ExecutorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// envVarPattern matches ${VAR_NAME} patterns for environment variable substitution.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig reads a YAML config file with ${VAR} substitution. An empty
// path falls back to CONFIG_PATH and then config.yaml; a missing default
// file is not an error, the defaults are used instead. The CLICKHOUSE_*
// and DUCKDB_PATH variables override the file.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = "config.yaml"
	}

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		substituted, err := substituteEnvVars(string(data))
		if err != nil {
			return nil, fmt.Errorf("substituting env vars: %w", err)
		}
		if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Comment lines are skipped so optional sections can stay commented out.
func substituteEnvVars(content string) (string, error) {
	var missingVars []string
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		lines[i] = envVarPattern.ReplaceAllStringFunc(line, func(match string) string {
			varName := envVarPattern.FindStringSubmatch(match)[1]
			value := os.Getenv(varName)
			if value == "" {
				missingVars = append(missingVars, varName)
				return match
			}
			return value
		})
	}

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing environment variables: %v", missingVars)
	}

	return strings.Join(lines, "\n"), nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"CLICKHOUSE_HOST", &cfg.ClickHouse.Host},
		{"CLICKHOUSE_DATABASE", &cfg.ClickHouse.Database},
		{"CLICKHOUSE_USER", &cfg.ClickHouse.User},
		{"CLICKHOUSE_PASSWORD", &cfg.ClickHouse.Password},
		{"DUCKDB_PATH", &cfg.Storage.Path},
		{"EXECUTOR_URL", &cfg.Executor.URL},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		cfg.ClickHouse.Secure = true
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.ClickHouse.Host == "" {
		cfg.ClickHouse.Host = "localhost:9000"
	}

	if cfg.ClickHouse.Database == "" {
		cfg.ClickHouse.Database = "default"
	}

	if cfg.ClickHouse.User == "" {
		cfg.ClickHouse.User = "default"
	}

	if strings.Contains(cfg.ClickHouse.Host, ":9440") {
		cfg.ClickHouse.Secure = true
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./signalquery.db"
	}

	if cfg.Facets.Lookback == 0 {
		cfg.Facets.Lookback = 24 * time.Hour
	}

	if cfg.Facets.TTL == 0 {
		cfg.Facets.TTL = time.Minute
	}

	if cfg.Facets.Limit == 0 {
		cfg.Facets.Limit = 500
	}

	if cfg.Facets.QueryTimeout == 0 {
		cfg.Facets.QueryTimeout = 10 * time.Second
	}

	if cfg.Executor.Timeout == 0 {
		cfg.Executor.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	if c.Facets.Lookback < 0 || c.Facets.TTL < 0 {
		return errors.New("facets.lookback and facets.ttl must not be negative")
	}

	if c.Facets.Limit < 0 {
		return errors.New("facets.limit must not be negative")
	}

	if c.Executor.URL != "" && !strings.HasPrefix(c.Executor.URL, "http://") && !strings.HasPrefix(c.Executor.URL, "https://") {
		return fmt.Errorf("executor.url %q must be an http(s) URL", c.Executor.URL)
	}

	return nil
}

// Addr is the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
