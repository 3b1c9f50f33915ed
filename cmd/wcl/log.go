package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/topiclock"
	"github.com/watercoolerhq/watercooler/internal/ui"
)

var logCount int

var logCmd = &cobra.Command{
	Use:   "log <topic>",
	Short: "Show the most recent entries of a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		topic := args[0]

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		db, err := openIndex(ctx, a)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.TailEntries(ctx, topiclock.SanitizeTopic(topic), logCount)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("%s no entries for topic %q\n", ui.Muted("empty:"), topic)
			return nil
		}

		for i, e := range entries {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("%s %s %s %s\n", ui.Muted(e.Time.Local().Format(time.DateTime)),
				ui.Accent(e.Agent), ui.Muted("("+e.Role+")"), ui.Title(string(e.Type)))
			fmt.Println(e.Body)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().IntVarP(&logCount, "count", "n", 20, "number of entries to show")
	rootCmd.AddCommand(logCmd)
}
