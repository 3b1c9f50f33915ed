// Package config loads and validates the watercooler configuration.
//
// Configuration is an explicit struct constructed once per process and
// passed by pointer into every component. Components never read
// environment variables or config files themselves; the lone ambient
// surface is this package's Load, which reads
// <code-root>/.watercooler/config.yaml and WATERCOOLER_* environment
// overrides through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PushMode selects which push worker publishes a write.
type PushMode string

const (
	// PushModeSync pushes inline with rebase-on-reject retries and
	// always updates the parity record afterward. Recommended for
	// high-stakes writes (ownership handoffs, closure entries).
	PushModeSync PushMode = "sync"

	// PushModeAsync commits locally and leaves publication to the
	// background worker. Recommended for high-frequency low-stakes
	// writes.
	PushModeAsync PushMode = "async"
)

// Config is the complete runtime configuration.
type Config struct {
	// Threads locates the companion threads repository.
	Threads ThreadsConfig `mapstructure:"threads"`

	// Sync controls the preflight state machine and push workers.
	Sync SyncConfig `mapstructure:"sync"`

	// Lock controls per-topic advisory locking.
	Lock LockConfig `mapstructure:"lock"`

	// Async controls the background push worker's batching.
	Async AsyncConfig `mapstructure:"async"`

	// Daemon controls the watch daemon.
	Daemon DaemonConfig `mapstructure:"daemon"`

	// Agent is the authoring identity stamped on entries.
	Agent AgentConfig `mapstructure:"agent"`

	// GitAuthor overrides the commit author in the threads repo
	// ("Name <email>"). Empty uses the clone's git config.
	GitAuthor string `mapstructure:"git-author"`
}

// ThreadsConfig locates the threads repository paired with the code repo.
type ThreadsConfig struct {
	// Path is the local threads clone, absolute or relative to the
	// code repo root. Default: ../<code-repo-name>-threads.
	Path string `mapstructure:"path"`

	// Remote is the threads remote URL, used for diagnostics and for
	// cloning when the local path does not exist yet.
	Remote string `mapstructure:"remote"`

	// TopicsDir is the directory of thread files inside the threads
	// repo. Default "topics".
	TopicsDir string `mapstructure:"topics-dir"`
}

// SyncConfig controls preflight and push behavior.
type SyncConfig struct {
	// AutoRemediate enables the remediation table. When false, every
	// non-clean parity state blocks.
	AutoRemediate bool `mapstructure:"auto-remediate"`

	// FetchBeforeCheck runs a fetch in the threads repo before each
	// parity evaluation, so classification never acts on stale
	// remote-tracking refs.
	FetchBeforeCheck bool `mapstructure:"fetch-before-check"`

	// PushMode selects sync or async publication.
	PushMode PushMode `mapstructure:"push-mode"`

	// MaxPushRetries bounds the synchronous rebase-and-retry loop.
	MaxPushRetries int `mapstructure:"max-push-retries"`

	// CommandTimeout bounds each individual git command.
	CommandTimeout time.Duration `mapstructure:"command-timeout"`
}

// LockConfig controls the topic lock lifecycle.
type LockConfig struct {
	// TTL is the age past which a lock is considered abandoned.
	TTL time.Duration `mapstructure:"ttl"`

	// AcquireTimeout bounds how long a writer waits for a busy lock.
	AcquireTimeout time.Duration `mapstructure:"acquire-timeout"`
}

// AsyncConfig controls the background push worker.
type AsyncConfig struct {
	// BatchWindow is how long the worker accumulates commits before
	// pushing.
	BatchWindow time.Duration `mapstructure:"batch-window"`

	// MaxBatch pushes immediately once this many commits are queued.
	MaxBatch int `mapstructure:"max-batch"`

	// MaxRetries bounds the worker's own push retry loop, independent
	// of the synchronous path's budget.
	MaxRetries int `mapstructure:"max-retries"`
}

// DaemonConfig controls the watch daemon.
type DaemonConfig struct {
	// DebounceInterval batches rapid file events before re-indexing.
	DebounceInterval time.Duration `mapstructure:"debounce-interval"`

	// ResyncInterval is how often a full index resync runs.
	ResyncInterval time.Duration `mapstructure:"resync-interval"`

	// LogMaxSizeMB and LogMaxBackups bound the rotating daemon log.
	LogMaxSizeMB  int `mapstructure:"log-max-size-mb"`
	LogMaxBackups int `mapstructure:"log-max-backups"`
}

// AgentConfig is the authoring identity for appended entries.
type AgentConfig struct {
	// Name identifies the writing agent (human or tool).
	Name string `mapstructure:"name"`

	// Role is the agent's role label (e.g. "reviewer", "owner").
	Role string `mapstructure:"role"`
}

// Default returns the configuration defaults, documented here rather
// than as ambient lookups at call sites.
func Default() *Config {
	return &Config{
		Threads: ThreadsConfig{
			TopicsDir: "topics",
		},
		Sync: SyncConfig{
			AutoRemediate:    true,
			FetchBeforeCheck: true,
			PushMode:         PushModeSync,
			MaxPushRetries:   3,
			CommandTimeout:   30 * time.Second,
		},
		Lock: LockConfig{
			TTL:            60 * time.Second,
			AcquireTimeout: 30 * time.Second,
		},
		Async: AsyncConfig{
			BatchWindow: 5 * time.Second,
			MaxBatch:    20,
			MaxRetries:  3,
		},
		Daemon: DaemonConfig{
			DebounceInterval: 200 * time.Millisecond,
			ResyncInterval:   5 * time.Minute,
			LogMaxSizeMB:     10,
			LogMaxBackups:    3,
		},
	}
}

// ConfigFileName is the file read from <code-root>/.watercooler.
const ConfigFileName = "config.yaml"

// Load reads config.yaml under the given .watercooler directory (which
// may not exist yet) and applies WATERCOOLER_* environment overrides on
// top of the defaults. The result is validated.
func Load(watercoolerDir string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(filepath.Join(watercoolerDir, ConfigFileName))
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WATERCOOLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
			return nil, fmt.Errorf("reading %s: %w", v.ConfigFileUsed(), err)
		}
		// No config file is fine; defaults plus env apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every default so viper merges partial files and
// env overrides correctly.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("threads.path", cfg.Threads.Path)
	v.SetDefault("threads.remote", cfg.Threads.Remote)
	v.SetDefault("threads.topics-dir", cfg.Threads.TopicsDir)
	v.SetDefault("sync.auto-remediate", cfg.Sync.AutoRemediate)
	v.SetDefault("sync.fetch-before-check", cfg.Sync.FetchBeforeCheck)
	v.SetDefault("sync.push-mode", string(cfg.Sync.PushMode))
	v.SetDefault("sync.max-push-retries", cfg.Sync.MaxPushRetries)
	v.SetDefault("sync.command-timeout", cfg.Sync.CommandTimeout.String())
	v.SetDefault("lock.ttl", cfg.Lock.TTL.String())
	v.SetDefault("lock.acquire-timeout", cfg.Lock.AcquireTimeout.String())
	v.SetDefault("async.batch-window", cfg.Async.BatchWindow.String())
	v.SetDefault("async.max-batch", cfg.Async.MaxBatch)
	v.SetDefault("async.max-retries", cfg.Async.MaxRetries)
	v.SetDefault("daemon.debounce-interval", cfg.Daemon.DebounceInterval.String())
	v.SetDefault("daemon.resync-interval", cfg.Daemon.ResyncInterval.String())
	v.SetDefault("daemon.log-max-size-mb", cfg.Daemon.LogMaxSizeMB)
	v.SetDefault("daemon.log-max-backups", cfg.Daemon.LogMaxBackups)
	v.SetDefault("agent.name", cfg.Agent.Name)
	v.SetDefault("agent.role", cfg.Agent.Role)
	v.SetDefault("git-author", cfg.GitAuthor)
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior deep inside the sync core.
func (c *Config) Validate() error {
	switch c.Sync.PushMode {
	case PushModeSync, PushModeAsync:
	default:
		return fmt.Errorf("sync.push-mode must be %q or %q, got %q",
			PushModeSync, PushModeAsync, c.Sync.PushMode)
	}

	if c.Sync.MaxPushRetries < 1 {
		return fmt.Errorf("sync.max-push-retries must be >= 1, got %d", c.Sync.MaxPushRetries)
	}
	if c.Sync.CommandTimeout <= 0 {
		return fmt.Errorf("sync.command-timeout must be positive, got %s", c.Sync.CommandTimeout)
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %s", c.Lock.TTL)
	}
	if c.Lock.AcquireTimeout <= 0 {
		return fmt.Errorf("lock.acquire-timeout must be positive, got %s", c.Lock.AcquireTimeout)
	}
	if c.Async.MaxBatch < 1 {
		return fmt.Errorf("async.max-batch must be >= 1, got %d", c.Async.MaxBatch)
	}
	if c.Async.MaxRetries < 1 {
		return fmt.Errorf("async.max-retries must be >= 1, got %d", c.Async.MaxRetries)
	}
	if c.Threads.TopicsDir == "" {
		return fmt.Errorf("threads.topics-dir must not be empty")
	}
	if filepath.IsAbs(c.Threads.TopicsDir) {
		return fmt.Errorf("threads.topics-dir must be relative to the threads repo, got %q", c.Threads.TopicsDir)
	}

	return nil
}
