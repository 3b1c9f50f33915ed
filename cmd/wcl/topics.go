package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/index"
	"github.com/watercoolerhq/watercooler/internal/ui"
)

var topicsStatus string

// openIndex opens the SQLite thread index and resyncs it from the
// thread files so one-shot commands see current state even when the
// daemon is not running.
func openIndex(ctx context.Context, a *app) (*index.DB, error) {
	db, err := index.Open(a.pair.Layout.IndexFile)
	if err != nil {
		return nil, fmt.Errorf("opening thread index: %w", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Resync(ctx, a.pair.Layout.TopicsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("resyncing thread index: %w", err)
	}
	return db, nil
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List discussion topics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		db, err := openIndex(ctx, a)
		if err != nil {
			return err
		}
		defer db.Close()

		topics, err := db.ListTopics(ctx, topicsStatus)
		if err != nil {
			return err
		}
		if len(topics) == 0 {
			fmt.Println(ui.Muted("no topics yet; start one with 'wcl say <topic> <message>'"))
			return nil
		}

		for _, t := range topics {
			icon := ui.Pass("●")
			if t.Status == "resolved" {
				icon = ui.Muted("○")
			}
			line := fmt.Sprintf("%s %s %s", icon, ui.Accent(t.Topic),
				ui.Muted(fmt.Sprintf("(%d entries, %s)", t.EntryCount, t.UpdatedAt.Local().Format(time.DateTime))))
			if t.Ball != "" {
				line += " " + ui.Warn("ball: "+t.Ball)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	topicsCmd.Flags().StringVar(&topicsStatus, "status", "", "filter by status (open, resolved)")
	rootCmd.AddCommand(topicsCmd)
}
