package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}
}

func TestLoadWithoutConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), ".watercooler"))
	if err != nil {
		t.Fatalf("Load() without config file failed: %v", err)
	}

	if cfg.Sync.PushMode != PushModeSync {
		t.Errorf("PushMode = %q, want sync default", cfg.Sync.PushMode)
	}
	if cfg.Sync.MaxPushRetries != 3 {
		t.Errorf("MaxPushRetries = %d, want 3", cfg.Sync.MaxPushRetries)
	}
	if cfg.Lock.TTL != 60*time.Second {
		t.Errorf("Lock.TTL = %s, want 60s", cfg.Lock.TTL)
	}
	if !cfg.Sync.AutoRemediate {
		t.Error("AutoRemediate = false, want true by default")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".watercooler")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}

	yaml := `
threads:
  path: ../myproject-threads
  remote: git@example.com:org/myproject-threads.git
sync:
  push-mode: async
  max-push-retries: 5
  auto-remediate: false
lock:
  ttl: 2m
agent:
  name: reviewbot
  role: reviewer
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Threads.Path != "../myproject-threads" {
		t.Errorf("Threads.Path = %q", cfg.Threads.Path)
	}
	if cfg.Sync.PushMode != PushModeAsync {
		t.Errorf("PushMode = %q, want async", cfg.Sync.PushMode)
	}
	if cfg.Sync.MaxPushRetries != 5 {
		t.Errorf("MaxPushRetries = %d, want 5", cfg.Sync.MaxPushRetries)
	}
	if cfg.Sync.AutoRemediate {
		t.Error("AutoRemediate = true, want false from file")
	}
	if cfg.Lock.TTL != 2*time.Minute {
		t.Errorf("Lock.TTL = %s, want 2m", cfg.Lock.TTL)
	}
	if cfg.Agent.Name != "reviewbot" || cfg.Agent.Role != "reviewer" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}

	// Unset keys keep their defaults.
	if cfg.Threads.TopicsDir != "topics" {
		t.Errorf("TopicsDir = %q, want topics default", cfg.Threads.TopicsDir)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WATERCOOLER_SYNC_PUSH_MODE", "async")
	t.Setenv("WATERCOOLER_LOCK_TTL", "90s")

	cfg, err := Load(filepath.Join(t.TempDir(), ".watercooler"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Sync.PushMode != PushModeAsync {
		t.Errorf("PushMode = %q, want async from env", cfg.Sync.PushMode)
	}
	if cfg.Lock.TTL != 90*time.Second {
		t.Errorf("Lock.TTL = %s, want 90s from env", cfg.Lock.TTL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad push mode", func(c *Config) { c.Sync.PushMode = "eventually" }},
		{"zero retries", func(c *Config) { c.Sync.MaxPushRetries = 0 }},
		{"zero ttl", func(c *Config) { c.Lock.TTL = 0 }},
		{"zero acquire timeout", func(c *Config) { c.Lock.AcquireTimeout = 0 }},
		{"zero batch", func(c *Config) { c.Async.MaxBatch = 0 }},
		{"empty topics dir", func(c *Config) { c.Threads.TopicsDir = "" }},
		{"absolute topics dir", func(c *Config) { c.Threads.TopicsDir = "/etc" }},
		{"zero command timeout", func(c *Config) { c.Sync.CommandTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
