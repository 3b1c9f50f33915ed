package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/config"
	"github.com/watercoolerhq/watercooler/internal/thread"
	"github.com/watercoolerhq/watercooler/internal/topiclock"
	"github.com/watercoolerhq/watercooler/internal/ui"
)

var (
	sayType   string
	sayBall   string
	sayAgent  string
	sayRole   string
	sayNoPush bool
)

var sayCmd = &cobra.Command{
	Use:   "say <topic> <message>",
	Short: "Append an entry to a topic thread",
	Long: `Append a new entry to the named topic's thread file in the threads
repository. The write runs the full pipeline: acquire the topic lock,
verify branch parity (remediating safe drift), append and commit the
entry, then push according to the configured push mode.

The message may also be piped on stdin by passing "-" as the message.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		topic, body := args[0], args[1]
		if body == "-" {
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading message from stdin: %w", err)
			}
			body = strings.TrimRight(string(raw), "\n")
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		agent, role := sayAgent, sayRole
		if agent == "" {
			agent = a.cfg.Agent.Name
		}
		if role == "" {
			role = a.cfg.Agent.Role
		}

		e := thread.New(topic, agent, role, thread.EntryType(sayType), body)
		e.Ball = sayBall
		if err := e.Validate(); err != nil {
			return err
		}

		return a.locks.With(ctx, topic, func(h *topiclock.Handle) error {
			st, err := a.preflight().EnsureClean(ctx, a.pair)
			if err != nil {
				return err
			}

			appender := &thread.Appender{Author: a.cfg.GitAuthor}
			outcome, commit, err := appender.Append(ctx, a.pair, h, e)
			if err != nil {
				return err
			}
			if outcome == thread.OutcomeAlreadyPresent {
				fmt.Printf("%s entry %s already present in %s\n",
					ui.Muted("unchanged:"), e.ID, ui.Accent(topic))
				return nil
			}

			fmt.Printf("%s %s %s %s\n", ui.Pass("✓"), ui.Accent(topic),
				ui.Muted(string(e.Type)), commit)
			if len(st.ActionsTaken) > 0 {
				fmt.Printf("  %s %s\n", ui.Muted("remediated:"),
					strings.Join(st.ActionsTaken, "; "))
			}

			if sayNoPush {
				fmt.Println(ui.Muted("  push skipped (--no-push); run 'wcl flush' to publish"))
				return a.store.WritePendingPush(true, nil)
			}

			if a.cfg.Sync.PushMode == config.PushModeAsync {
				// The watch daemon owns publication in async mode.
				fmt.Println(ui.Muted("  queued for background push"))
				return a.store.WritePendingPush(true, nil)
			}

			if err := a.syncPusher().Publish(ctx, a.pair, commit); err != nil {
				return fmt.Errorf("entry committed but not published: %w", err)
			}
			fmt.Printf("  %s\n", ui.Muted("pushed to origin/"+a.pair.CodeBranch))
			return nil
		})
	},
}

func init() {
	sayCmd.Flags().StringVarP(&sayType, "type", "t", string(thread.TypeNote), "entry type (note, question, answer, handoff, resolve, reopen)")
	sayCmd.Flags().StringVar(&sayBall, "ball", "", "hand the ball to the named agent")
	sayCmd.Flags().StringVar(&sayAgent, "agent", "", "author agent name (defaults to agent.name from config)")
	sayCmd.Flags().StringVar(&sayRole, "role", "", "author role (defaults to agent.role from config)")
	sayCmd.Flags().BoolVar(&sayNoPush, "no-push", false, "commit locally without pushing")
	rootCmd.AddCommand(sayCmd)
}
