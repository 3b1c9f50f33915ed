package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/audit"
	"github.com/watercoolerhq/watercooler/internal/ui"
)

var (
	doctorFix  bool
	doctorJSON bool
	doctorLive bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Audit the repo pair's health",
	Long: `Run the health audit: stale topic locks, parity record freshness,
in-progress rebases and detached HEADs in either repo, and orphan
threads branches.

With --live the audit also re-runs the full parity evaluation. With
--fix stale locks are broken; nothing else is ever changed, and
branches are never deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		doc := &audit.Doctor{
			Pair:  a.pair,
			Locks: a.locks,
			Store: a.store,
		}
		if doctorLive {
			doc.Checker = a.checker()
		}

		if doctorFix {
			broken, err := doc.BreakStaleLocks()
			if err != nil {
				return fmt.Errorf("breaking stale locks: %w", err)
			}
			if broken > 0 {
				fmt.Printf("%s broke %d stale lock(s)\n", ui.Pass(ui.IconPass), broken)
			}
		}

		result := doc.Run(ctx)

		if doctorJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			fmt.Println(ui.Title("watercooler doctor"))
			for _, c := range result.Checks {
				fmt.Printf("%s %s: %s\n", ui.StatusIcon(string(c.Status)), c.Name, c.Message)
				if c.Fix != "" {
					fmt.Printf("  %s %s\n", ui.Muted("fix:"), c.Fix)
				}
			}
		}

		if !result.OverallOK {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "break stale topic locks before auditing")
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "emit the audit result as JSON")
	doctorCmd.Flags().BoolVar(&doctorLive, "live", false, "include a live parity evaluation in the audit")
	rootCmd.AddCommand(doctorCmd)
}
