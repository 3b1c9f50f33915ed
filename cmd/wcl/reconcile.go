package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/ui"
	"github.com/watercoolerhq/watercooler/internal/vcs"
)

var reconcileRebase bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a diverged threads branch with its origin",
	Long: `Reconcile the threads repository with its remote after another writer
pushed first. By default this prints the steps without running them;
--rebase performs them: fetch, rebase local commits on top of origin,
and push.

Only the threads repository is touched. The code repository is never
mutated, and nothing is ever force-pushed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		branch := a.pair.CodeBranch
		threads := a.pair.Threads

		if !reconcileRebase {
			fmt.Printf("would run in %s:\n", ui.Accent(threads.Root()))
			fmt.Println("  git fetch origin")
			fmt.Printf("  git pull --rebase origin %s\n", branch)
			fmt.Printf("  git push origin %s\n", branch)
			fmt.Println(ui.Muted("re-run with --rebase to perform these steps"))
			return nil
		}

		fmt.Printf("reconciling threads branch %s\n", ui.Accent(branch))

		if err := threads.Fetch(ctx, "origin"); err != nil {
			return fmt.Errorf("fetching threads remote: %w", err)
		}

		err = threads.PullRebase(ctx, vcs.PullRebaseOptions{Remote: "origin", Branch: branch})
		if err != nil {
			if errors.Is(err, vcs.ErrRebaseConflict) {
				return fmt.Errorf("rebase hit conflicts; resolve them in %s and run 'git rebase --continue', then 'wcl flush': %w",
					threads.Root(), err)
			}
			return fmt.Errorf("rebasing threads branch: %w", err)
		}

		if err := threads.Push(ctx, vcs.PushOptions{Remote: "origin", Branch: branch}); err != nil {
			return fmt.Errorf("pushing reconciled branch: %w", err)
		}

		st := a.checker().Evaluate(ctx, a.pair)
		if err := a.store.Write(st); err != nil {
			return err
		}
		fmt.Printf("%s reconciled; parity is now %s\n", ui.Pass(ui.IconPass), ui.Title(string(st.Status)))
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileRebase, "rebase", false, "perform the fetch, rebase, and push")
	rootCmd.AddCommand(reconcileCmd)
}
