package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// Status returns a snapshot of branch, detached-HEAD, rebase, and
// divergence state for the current branch.
func (g *Git) Status(ctx context.Context) (vcs.RepoStatus, error) {
	st := vcs.RepoStatus{}

	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		return st, err
	}

	st.Branch = branch
	st.DetachedHead = branch == ""
	st.RebaseInProgress = g.isInRebaseOrMerge()

	// Divergence only makes sense on a named branch with an upstream
	if branch != "" {
		st.HasUpstream = g.runQuiet(ctx, "rev-parse", "--verify", "--quiet", branch+"@{upstream}")
		if st.HasUpstream {
			ab, err := g.AheadBehind(ctx, "", branch)
			if err != nil {
				return st, err
			}
			st.AheadBehind = ab
		}
	}

	return st, nil
}

// isInRebaseOrMerge reports whether a rebase or merge is underway, by
// probing the marker paths git leaves in the git dir.
func (g *Git) isInRebaseOrMerge() bool {
	// rebase-merge: interactive rebase, rebase-apply: am/non-interactive
	for _, marker := range []string{"rebase-merge", "rebase-apply", "MERGE_HEAD"} {
		if _, err := os.Stat(filepath.Join(g.gitDir, marker)); err == nil {
			return true
		}
	}
	return false
}

// HasChanges reports whether the working tree has uncommitted changes.
// If paths are specified, only those paths are checked.
func (g *Git) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	args := []string{"status", "--porcelain"}
	args = append(args, paths...)

	output, err := g.run(ctx, args...)
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}

	return len(strings.TrimSpace(string(output))) > 0, nil
}
