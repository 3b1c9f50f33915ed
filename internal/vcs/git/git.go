// Package git provides the git implementation of the vcs.Repo adapter.
//
// Every operation shells out to the git binary with a bounded execution
// timeout and classifies failures into the sentinel errors defined in
// internal/vcs. The adapter never constructs a forced push, a reset, or
// any other history-rewriting command.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// Options configures a Git adapter.
type Options struct {
	// Timeout bounds each git command. Zero means vcs.DefaultTimeout.
	Timeout time.Duration
}

// Git implements vcs.Repo for a single local clone.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// gitDir is the .git directory path (may differ for worktrees)
	gitDir string

	// timeout bounds each git command
	timeout time.Duration
}

// New creates a Git adapter for the repository containing path.
func New(path string, opts Options) (*Git, error) {
	g := &Git{timeout: opts.Timeout}
	if g.timeout <= 0 {
		g.timeout = vcs.DefaultTimeout
	}

	if err := g.detect(path); err != nil {
		return nil, err
	}

	return g, nil
}

// detect populates repository root and git dir information.
func (g *Git) detect(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// One rev-parse call for both pieces of information. The repo root
	// is not known yet, so this cannot go through run; it is bounded by
	// the same timeout all the same.
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--git-dir", "--show-toplevel")
	cmd.Dir = absPath

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return vcs.ErrGitNotAvailable
		}
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("git rev-parse: %w", vcs.ErrTimeout)
		}
		return vcs.ErrNotARepo
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) < 2 {
		return fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 2", len(lines))
	}

	gitDir := strings.TrimSpace(lines[0])
	repoRoot := strings.TrimSpace(lines[1])

	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absPath, gitDir)
	}

	g.gitDir = gitDir
	g.repoRoot = normalizeRepoRoot(repoRoot)

	return nil
}

// normalizeRepoRoot resolves symlinks and canonicalizes the root path.
func normalizeRepoRoot(path string) string {
	path = filepath.FromSlash(path)

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return path
}

// Root returns the repository root directory path.
func (g *Git) Root() string {
	return g.repoRoot
}

// run executes a git command in the repo root with the bounded timeout.
// Returns combined output; a deadline hit is classified as vcs.ErrTimeout.
func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = g.repoRoot

	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("git %s: %w", args[0], vcs.ErrTimeout)
		}
		return output, fmt.Errorf("git %s failed: %w\n%s",
			strings.Join(args, " "), err, string(output))
	}

	return output, nil
}

// runQuiet executes a git command and reports only success or failure.
func (g *Git) runQuiet(ctx context.Context, args ...string) bool {
	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = g.repoRoot
	return cmd.Run() == nil
}
