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

// Config holds the searchsync engine configuration.
type Config struct {
	HTTP         HTTPConfig            `yaml:"http"`
	Search       SearchConfig          `yaml:"search"`
	Connections  map[string]ConnConfig `yaml:"connections"` // keyed by platform
	Redis        RedisConfig           `yaml:"redis"`
	NATS         NATSConfig            `yaml:"nats"`
	Availability AvailabilityConfig    `yaml:"availability"`
	EntityStore  EntityStoreConfig     `yaml:"entity_store"`
	Sync         SyncConfig            `yaml:"sync"`
	Watchdog     WatchdogConfig        `yaml:"watchdog"`
	Logging      LoggingConfig         `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ConnConfig holds search-engine connection settings for one platform.
type ConnConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// RedisConfig holds the task/lock store connection settings.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
}

// NATSConfig holds the audit event bus settings. Empty URL disables events.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// AvailabilityConfig holds the availability collaborator settings.
type AvailabilityConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// EntityStoreConfig holds the attribute-definition source settings.
type EntityStoreConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// SyncConfig holds write-behind queue settings.
type SyncConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
	// MaxBatch is capped below the engine's native indexing queue sizing so
	// a flush never amplifies duplicate work from concurrent reindex-copy
	// traffic.
	MaxBatch int `yaml:"max_batch"`
}

// WatchdogConfig holds reindex completion watchdog settings.
type WatchdogConfig struct {
	IntervalSec int `yaml:"interval_sec"`
	LockTTLSec  int `yaml:"lock_ttl_sec"`
}

// SearchConfig holds result assembly settings.
type SearchConfig struct {
	// MaxScanBatch is the per-round native query size used by the
	// availability reconciliation loop.
	MaxScanBatch int `yaml:"max_scan_batch"`
	// CleanupDelaySec delays old-generation deletion after cutover so a sync
	// flush already in flight can finish against the old generation.
	CleanupDelaySec int `yaml:"cleanup_delay_sec"`
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
	if c.Availability.TimeoutSec <= 0 {
		c.Availability.TimeoutSec = 5
	}
	if c.EntityStore.TimeoutSec <= 0 {
		c.EntityStore.TimeoutSec = 5
	}
	if c.Sync.DebounceMs <= 0 {
		c.Sync.DebounceMs = 2000
	}
	if c.Sync.MaxBatch <= 0 {
		c.Sync.MaxBatch = 400
	}
	if c.Watchdog.IntervalSec <= 0 {
		c.Watchdog.IntervalSec = 30
	}
	if c.Watchdog.LockTTLSec <= 0 {
		c.Watchdog.LockTTLSec = 25
	}
	if c.Search.MaxScanBatch <= 0 {
		c.Search.MaxScanBatch = 1000
	}
	if c.Search.CleanupDelaySec <= 0 {
		c.Search.CleanupDelaySec = 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Connections) == 0 {
		return fmt.Errorf("connections is required")
	}
	for platform, conn := range c.Connections {
		if len(conn.Addrs) == 0 {
			return fmt.Errorf("connections.%s.addrs is required", platform)
		}
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
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
