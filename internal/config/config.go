package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the grantmesh API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Advisory  AdvisoryConfig  `yaml:"advisory"`
	Routing   RoutingConfig   `yaml:"routing"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Nodes     []NodeConfig    `yaml:"nodes"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings. The database is
// optional: without addrs the analytics sink and embedding cache stay
// in-process.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	AnalyticsStream  string   `yaml:"analytics_stream"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool { return len(d.Addrs) > 0 }

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Provider   string `yaml:"provider"`
}

// AdvisoryConfig holds the optional advisory provider settings.
type AdvisoryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ClusterConfig is one funding-body keyword cluster driving compound-query
// decomposition.
type ClusterConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// RoutingConfig holds router dispatch and cache settings.
type RoutingConfig struct {
	MaxAttempts       int             `yaml:"max_attempts"`
	AttemptTimeoutSec int             `yaml:"attempt_timeout_sec"`
	BackoffMs         int             `yaml:"backoff_ms"`
	CacheTTLSec       int             `yaml:"cache_ttl_sec"`
	CacheMaxEntries   int             `yaml:"cache_max_entries"`
	Clusters          []ClusterConfig `yaml:"clusters"`
}

// IngestConfig holds ingest worker pool settings.
type IngestConfig struct {
	PoolSize  int `yaml:"pool_size"`
	BatchSize int `yaml:"batch_size"`
}

// NodeConfig declares one search node registered at startup.
type NodeConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Domain       string   `yaml:"domain"`
	Silo         string   `yaml:"silo"`
	Capabilities []string `yaml:"capabilities"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Routing.MaxAttempts <= 0 {
		c.Routing.MaxAttempts = 3
	}
	if c.Routing.AttemptTimeoutSec <= 0 {
		c.Routing.AttemptTimeoutSec = 5
	}
	if c.Routing.BackoffMs <= 0 {
		c.Routing.BackoffMs = 1000
	}
	if c.Routing.CacheTTLSec <= 0 {
		c.Routing.CacheTTLSec = 300
	}
	if c.Routing.CacheMaxEntries <= 0 {
		c.Routing.CacheMaxEntries = 1000
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 32
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node must be configured")
	}
	seen := make(map[string]struct{}, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.ID == "" {
			return fmt.Errorf("nodes[%d].id is required", i)
		}
		if n.Domain == "" {
			return fmt.Errorf("nodes[%d].domain is required", i)
		}
		if _, ok := seen[n.ID]; ok {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Advisory.Enabled && c.Advisory.Model == "" {
		return fmt.Errorf("advisory.model is required when advisory is enabled")
	}
	for i, cl := range c.Routing.Clusters {
		if cl.Name == "" {
			return fmt.Errorf("routing.clusters[%d].name is required", i)
		}
		if len(cl.Keywords) == 0 {
			return fmt.Errorf("routing.clusters[%d].keywords is required", i)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
