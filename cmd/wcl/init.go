package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/watercoolerhq/watercooler/internal/config"
	"github.com/watercoolerhq/watercooler/internal/ui"
	"github.com/watercoolerhq/watercooler/internal/watercooler"
)

const configTemplate = `# Watercooler configuration.
# Environment variables override any key: WATERCOOLER_SYNC_PUSH_MODE=async

threads:
  # Path to the companion threads clone. Empty defaults to
  # ../<code-repo-name>-threads.
  path: ""
  # Remote URL used in commit footers and doctor output.
  remote: ""
  topics-dir: topics

sync:
  auto-remediate: true
  fetch-before-check: true
  # sync pushes inline; async leaves publication to 'wcl daemon'.
  push-mode: sync
  max-push-retries: 3
  command-timeout: 30s

lock:
  ttl: 60s
  acquire-timeout: 30s

async:
  batch-window: 5s
  max-batch: 20
  max-retries: 3

daemon:
  debounce-interval: 200ms
  resync-interval: 5m
  log-max-size-mb: 10
  log-max-backups: 3

agent:
  name: ""
  role: ""

# git-author: "Your Name <you@example.com>"
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .watercooler configuration in this repo",
	Long: `Create .watercooler/config.yaml in the current repository with
documented defaults. Existing configuration is left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		dir := filepath.Join(cwd, watercooler.DirName)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}

		path := filepath.Join(dir, config.ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("%s %s already exists\n", ui.Muted("unchanged:"), path)
			return nil
		}

		if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
			return err
		}

		fmt.Printf("%s wrote %s\n", ui.Pass(ui.IconPass), ui.Accent(path))
		fmt.Println(ui.Muted("next: clone or create the companion threads repo, then run 'wcl sync'"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
