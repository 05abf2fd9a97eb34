package config

import (
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8085},
		Connections: map[string]ConnConfig{
			"default": {Addrs: []string{"http://localhost:9200"}},
		},
		Redis: RedisConfig{Addrs: []string{"localhost:6379"}},
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_BadPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing port")
	}
	cfg.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestValidate_MissingConnections(t *testing.T) {
	cfg := validConfig()
	cfg.Connections = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing connections")
	}

	cfg = validConfig()
	cfg.Connections["default"] = ConnConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for connection without addrs")
	}
}

func TestValidate_MissingRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addrs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.Sync.DebounceMs != 2000 || cfg.Sync.MaxBatch != 400 {
		t.Errorf("sync defaults = %d/%d", cfg.Sync.DebounceMs, cfg.Sync.MaxBatch)
	}
	if cfg.Watchdog.IntervalSec != 30 || cfg.Watchdog.LockTTLSec != 25 {
		t.Errorf("watchdog defaults = %d/%d", cfg.Watchdog.IntervalSec, cfg.Watchdog.LockTTLSec)
	}
	if cfg.Search.MaxScanBatch != 1000 || cfg.Search.CleanupDelaySec != 60 {
		t.Errorf("search defaults = %d/%d", cfg.Search.MaxScanBatch, cfg.Search.CleanupDelaySec)
	}
	if cfg.Availability.TimeoutSec != 5 || cfg.EntityStore.TimeoutSec != 5 {
		t.Errorf("client timeouts = %d/%d", cfg.Availability.TimeoutSec, cfg.EntityStore.TimeoutSec)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.DebounceMs = 500
	cfg.ApplyDefaults()
	if cfg.Sync.DebounceMs != 500 {
		t.Errorf("explicit debounce overwritten: %d", cfg.Sync.DebounceMs)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SEARCHSYNC_TEST_VAR", "secret")

	out := string(expandEnvVars([]byte("password: ${SEARCHSYNC_TEST_VAR}")))
	if out != "password: secret" {
		t.Errorf("out = %q", out)
	}

	out = string(expandEnvVars([]byte("url: ${SEARCHSYNC_UNSET_VAR:-fallback}")))
	if out != "url: fallback" {
		t.Errorf("out = %q", out)
	}

	out = string(expandEnvVars([]byte("url: ${SEARCHSYNC_UNSET_VAR}")))
	if out != "url: " {
		t.Errorf("out = %q", out)
	}
}
