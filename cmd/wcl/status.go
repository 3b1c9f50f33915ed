package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/parity"
	"github.com/watercoolerhq/watercooler/internal/ui"
)

var (
	statusLive bool
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show branch parity between the code and threads repos",
	Long: `Show the current parity classification of the repo pair.

By default this reads the persisted record from the last evaluation.
With --live it re-runs the full git introspection, which is slower but
authoritative.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		if statusLive {
			st := a.checker().Evaluate(ctx, a.pair)
			if err := a.store.Write(st); err != nil {
				return err
			}
			printState(&st)
			return nil
		}

		rec, err := a.store.Read()
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println(ui.Muted("no parity record yet; run 'wcl sync' or 'wcl status --live'"))
				return nil
			}
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		printRecord(rec)
		return nil
	},
}

// parityIcon picks a glyph by severity: clean passes, auto-remediable
// drift warns, blocking states fail.
func parityIcon(status parity.Status) string {
	switch {
	case status == parity.StatusClean:
		return ui.Pass(ui.IconPass)
	case !status.Blocking():
		return ui.Warn(ui.IconWarn)
	default:
		return ui.Fail(ui.IconFail)
	}
}

func printState(st *parity.State) {
	fmt.Printf("%s %s\n", parityIcon(st.Status), ui.Title(string(st.Status)))
	fmt.Printf("  code:    %s\n", ui.Accent(st.CodeBranch))
	fmt.Printf("  threads: %s", ui.Accent(st.ThreadsBranch))
	if st.Ahead > 0 || st.Behind > 0 {
		fmt.Printf(" %s", ui.Muted(fmt.Sprintf("(ahead %d, behind %d)", st.Ahead, st.Behind)))
	}
	fmt.Println()
	for _, action := range st.ActionsTaken {
		fmt.Printf("  %s %s\n", ui.Muted("did:"), action)
	}
	for _, g := range st.Guidance() {
		fmt.Printf("  %s %s\n", ui.Warn("→"), g)
	}
}

func printRecord(rec *parity.Record) {
	fmt.Printf("%s %s %s\n", parityIcon(rec.Status), ui.Title(string(rec.Status)),
		ui.Muted("(checked "+rec.LastCheckAt.Local().Format(time.RFC3339)+")"))
	fmt.Printf("  code:    %s\n", ui.Accent(rec.CodeBranch))
	fmt.Printf("  threads: %s\n", ui.Accent(rec.ThreadsBranch))
	if rec.PendingPush {
		fmt.Printf("  %s local threads commits await push; run 'wcl flush'\n", ui.Warn("pending:"))
	}
	for _, action := range rec.ActionsTaken {
		fmt.Printf("  %s %s\n", ui.Muted("did:"), action)
	}
	if rec.LastError != nil {
		fmt.Printf("  %s %s\n", ui.Fail("last error:"), *rec.LastError)
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusLive, "live", false, "re-run git introspection instead of reading the cached record")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit the cached record as JSON")
	rootCmd.AddCommand(statusCmd)
}
