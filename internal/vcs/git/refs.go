package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// CurrentBranch returns the current branch name.
// Returns empty string (nil error) when HEAD is detached.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	output, err := g.run(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		// symbolic-ref fails on a detached HEAD
		if strings.Contains(string(output), "not a symbolic ref") ||
			strings.Contains(err.Error(), "not a symbolic ref") {
			return "", nil
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// HeadCommit returns the short hash of HEAD.
func (g *Git) HeadCommit(ctx context.Context) (string, error) {
	output, err := g.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// BranchExists reports whether the named local branch exists.
func (g *Git) BranchExists(ctx context.Context, name string) (bool, error) {
	return g.runQuiet(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name), nil
}

// ListBranches returns the names of all local branches.
func (g *Git) ListBranches(ctx context.Context) ([]string, error) {
	output, err := g.run(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref failed: %w", err)
	}

	var branches []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			branches = append(branches, line)
		}
	}

	return branches, nil
}

// Checkout switches to the named branch. When create is true and the
// branch does not exist, it is created at the current position.
func (g *Git) Checkout(ctx context.Context, branch string, create bool) error {
	exists, err := g.BranchExists(ctx, branch)
	if err != nil {
		return err
	}

	args := []string{"checkout", branch}
	if !exists {
		if !create {
			return fmt.Errorf("checkout %q: %w", branch, vcs.ErrBranchNotFound)
		}
		args = []string{"checkout", "-b", branch}
	}

	if output, err := g.run(ctx, args...); err != nil {
		if strings.Contains(string(output), "would be overwritten") {
			return fmt.Errorf("checkout %q: %w", branch, vcs.ErrDirtyTree)
		}
		return fmt.Errorf("checkout %q: %w", branch, err)
	}

	return nil
}

// AheadBehind returns divergence counts of the named branch against its
// remote-tracking branch on the given remote. Both counts are zero when
// no remote-tracking branch exists.
func (g *Git) AheadBehind(ctx context.Context, remote, branch string) (vcs.AheadBehind, error) {
	ab := vcs.AheadBehind{}

	if remote == "" {
		remote = "origin"
	}

	upstream := remote + "/" + branch
	if !g.runQuiet(ctx, "show-ref", "--verify", "--quiet", "refs/remotes/"+upstream) {
		return ab, nil
	}

	// Single rev-list call yields "ahead<TAB>behind"
	output, err := g.run(ctx, "rev-list", "--left-right", "--count", branch+"..."+upstream)
	if err != nil {
		return ab, fmt.Errorf("failed to count divergence of %s against %s: %w", branch, upstream, err)
	}

	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%d\t%d", &ab.Ahead, &ab.Behind); err != nil {
		return ab, fmt.Errorf("unexpected rev-list output %q: %w", strings.TrimSpace(string(output)), err)
	}

	return ab, nil
}
