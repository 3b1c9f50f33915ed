package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/watercoolerhq/watercooler/internal/config"
	"github.com/watercoolerhq/watercooler/internal/daemon"
	"github.com/watercoolerhq/watercooler/internal/index"
	"github.com/watercoolerhq/watercooler/internal/push"
	"github.com/watercoolerhq/watercooler/internal/ui"
)

var daemonForeground bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch thread files, maintain the index, and push in the background",
	Long: `Run the watch daemon for this repo pair. It keeps the SQLite thread
index current as thread files change, periodically resyncs, and (in
async push mode) batches and publishes unpushed threads commits.

The daemon runs until interrupted. Logs rotate under
<threads>/.watercooler/log/.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		var out io.Writer = &lumberjack.Logger{
			Filename:   filepath.Join(a.pair.Layout.LogDir, "daemon.log"),
			MaxSize:    a.cfg.Daemon.LogMaxSizeMB,
			MaxBackups: a.cfg.Daemon.LogMaxBackups,
		}
		if daemonForeground {
			out = io.MultiWriter(out, os.Stderr)
		}
		logger := log.New(out, "[wcl] ", log.LstdFlags)

		db, err := index.Open(a.pair.Layout.IndexFile)
		if err != nil {
			return fmt.Errorf("opening thread index: %w", err)
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			return err
		}

		// Background publishing only applies in async push mode; in
		// sync mode every write already pushed inline.
		var pusher *push.AsyncPusher
		if a.cfg.Sync.PushMode == config.PushModeAsync {
			pusher = &push.AsyncPusher{
				BatchWindow: a.cfg.Async.BatchWindow,
				MaxBatch:    a.cfg.Async.MaxBatch,
				MaxRetries:  a.cfg.Async.MaxRetries,
				Logger:      logger,
			}
		}

		d, err := daemon.New(db, a.pair, pusher, &daemon.Config{
			DebounceInterval: a.cfg.Daemon.DebounceInterval,
			ResyncInterval:   a.cfg.Daemon.ResyncInterval,
			Logger:           logger,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s watching %s (pid %d)\n", ui.Pass(ui.IconPass),
			ui.Accent(a.pair.Layout.TopicsDir), os.Getpid())

		// Start blocks until the signal context is cancelled and the
		// daemon has drained its pending pushes.
		if err := d.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		fmt.Println(ui.Muted("stopped"))
		return nil
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "also log to stderr")
	rootCmd.AddCommand(daemonCmd)
}
