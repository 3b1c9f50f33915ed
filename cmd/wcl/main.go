// Command wcl is the watercooler CLI: agent-to-agent discussion threads
// kept in a companion git repository, branch-synchronized with the code
// repository they annotate.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/config"
	"github.com/watercoolerhq/watercooler/internal/parity"
	"github.com/watercoolerhq/watercooler/internal/push"
	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/topiclock"
	"github.com/watercoolerhq/watercooler/internal/ui"
	"github.com/watercoolerhq/watercooler/internal/watercooler"
)

var (
	flagNoColor bool
	flagBranch  string
)

var rootCmd = &cobra.Command{
	Use:   "wcl",
	Short: "Watercooler: discussion threads paired with your code repo",
	Long: `Watercooler keeps agent and human discussion threads in a companion
git repository whose branches mirror the code repository's branches.

Every write runs a parity preflight: safe drift (missing threads
branch, unpushed commits) is remediated automatically, anything
ambiguous blocks with concrete recovery steps. Appends are idempotent
and serialized per topic, and nothing ever force-pushes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			ui.DisableColor()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.Fail("error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&flagBranch, "branch", "", "override the code branch instead of using the checked-out one")
}

// app bundles the per-invocation wiring every command needs.
type app struct {
	cfg   *config.Config
	pair  *repopair.RepoPair
	store *parity.Store
	locks *topiclock.Manager
}

// newApp loads configuration, opens both repositories, and prepares
// the threads-side runtime state. Everything is rebuilt from live
// introspection per invocation; nothing is cached across runs.
func newApp(ctx context.Context) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	configDir := watercooler.FindDir(cwd)
	if configDir == "" {
		configDir = filepath.Join(cwd, watercooler.DirName)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}

	pair, err := repopair.New(ctx, cfg, cwd, flagBranch)
	if err != nil {
		return nil, err
	}

	if err := pair.Layout.EnsureStateDirs(); err != nil {
		return nil, fmt.Errorf("preparing threads state directories: %w", err)
	}

	return &app{
		cfg:   cfg,
		pair:  pair,
		store: &parity.Store{Path: pair.Layout.ParityFile},
		locks: &topiclock.Manager{
			Dir:            pair.Layout.LocksDir,
			TTL:            cfg.Lock.TTL,
			AcquireTimeout: cfg.Lock.AcquireTimeout,
		},
	}, nil
}

func (a *app) checker() *parity.Checker {
	return &parity.Checker{
		FetchBeforeCheck: a.cfg.Sync.FetchBeforeCheck,
	}
}

func (a *app) syncPusher() *push.SyncPusher {
	return &push.SyncPusher{
		Store:      a.store,
		MaxRetries: a.cfg.Sync.MaxPushRetries,
	}
}

func (a *app) preflight() *parity.Preflight {
	return &parity.Preflight{
		Checker:       a.checker(),
		AutoRemediate: a.cfg.Sync.AutoRemediate,
		Pusher:        a.syncPusher(),
		Store:         a.store,
	}
}
