package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/ui"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Push unpublished threads commits now",
	Long: `Push any local threads commits that have not reached the remote,
using the same bounded push-with-rebase retry as the write path. Useful
after --no-push writes, async-mode writes when the daemon is not
running, or a push failure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		ab, err := a.pair.Threads.AheadBehind(ctx, "origin", a.pair.CodeBranch)
		if err != nil {
			return fmt.Errorf("checking threads divergence: %w", err)
		}
		if ab.Ahead == 0 {
			fmt.Println(ui.Muted("nothing to push"))
			return a.store.WritePendingPush(false, nil)
		}

		commit, err := a.pair.Threads.HeadCommit(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("pushing %d commit(s) on %s\n", ab.Ahead, ui.Accent(a.pair.CodeBranch))
		if err := a.syncPusher().Publish(ctx, a.pair, commit); err != nil {
			return err
		}
		fmt.Printf("%s pushed\n", ui.Pass(ui.IconPass))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flushCmd)
}
