package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Evaluate parity and remediate safe drift",
	Long: `Run the parity preflight without writing an entry: evaluate the repo
pair, apply the remediation table (push pending commits, create the
matching threads branch), and persist the result.

Blocked states exit non-zero with recovery guidance.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		st, err := a.preflight().EnsureClean(ctx, a.pair)
		if err != nil {
			return err
		}

		printState(&st)
		if len(st.ActionsTaken) == 0 {
			fmt.Println(ui.Muted("  nothing to do"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
