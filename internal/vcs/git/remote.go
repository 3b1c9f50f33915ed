package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// unreachableMarkers are output fragments that indicate the remote could
// not be contacted rather than a protocol-level rejection.
var unreachableMarkers = []string{
	"Could not resolve host",
	"Could not read from remote repository",
	"Connection refused",
	"Connection timed out",
	"Operation timed out",
	"unable to access",
	"Network is unreachable",
}

func isUnreachableOutput(output string) bool {
	for _, marker := range unreachableMarkers {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// Fetch updates remote-tracking refs from the named remote.
// Timeouts and network failures are classified as vcs.ErrRemoteUnreachable.
func (g *Git) Fetch(ctx context.Context, remote string) error {
	if !g.HasRemote(ctx) {
		return vcs.ErrNoRemote
	}

	if remote == "" {
		remote = "origin"
	}

	output, err := g.run(ctx, "fetch", remote)
	if err != nil {
		if errors.Is(err, vcs.ErrTimeout) || isUnreachableOutput(string(output)) {
			return fmt.Errorf("fetch %s: %w", remote, vcs.ErrRemoteUnreachable)
		}
		return fmt.Errorf("fetch %s: %w", remote, err)
	}

	return nil
}

// HasRemote reports whether any remote is configured.
func (g *Git) HasRemote(ctx context.Context) bool {
	output, err := g.run(ctx, "remote")
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// RemoteURL returns the fetch URL of the named remote.
func (g *Git) RemoteURL(ctx context.Context, remote string) (string, error) {
	if remote == "" {
		remote = "origin"
	}

	output, err := g.run(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("remote %q: %w", remote, vcs.ErrNoRemote)
	}

	return strings.TrimSpace(string(output)), nil
}

// Push publishes the branch to the remote. A non-fast-forward rejection
// surfaces as vcs.ErrPushRejected so the caller can rebase and retry;
// watercooler never resolves a rejection with a forced update.
func (g *Git) Push(ctx context.Context, opts vcs.PushOptions) error {
	if !g.HasRemote(ctx) {
		return vcs.ErrNoRemote
	}

	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}

	branch := opts.Branch
	if branch == "" {
		var err error
		branch, err = g.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		if branch == "" {
			return vcs.ErrDetached
		}
	}

	args := []string{"push"}
	if opts.SetUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, branch)

	output, err := g.run(ctx, args...)
	if err != nil {
		outputStr := string(output)

		if strings.Contains(outputStr, "rejected") || strings.Contains(outputStr, "non-fast-forward") ||
			strings.Contains(outputStr, "fetch first") {
			return fmt.Errorf("push %s to %s: %w", branch, remote, vcs.ErrPushRejected)
		}
		if errors.Is(err, vcs.ErrTimeout) || isUnreachableOutput(outputStr) {
			return fmt.Errorf("push %s to %s: %w", branch, remote, vcs.ErrRemoteUnreachable)
		}

		return fmt.Errorf("push %s to %s: %w", branch, remote, err)
	}

	return nil
}

// PullRebase replays local commits on top of the remote branch.
// Conflicts surface as vcs.ErrRebaseConflict and leave the repository in
// a rebase-in-progress state for the caller to resolve or abort.
func (g *Git) PullRebase(ctx context.Context, opts vcs.PullRebaseOptions) error {
	if !g.HasRemote(ctx) {
		return vcs.ErrNoRemote
	}

	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}

	branch := opts.Branch
	if branch == "" {
		var err error
		branch, err = g.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		if branch == "" {
			return vcs.ErrDetached
		}
	}

	output, err := g.run(ctx, "pull", "--rebase", remote, branch)
	if err != nil {
		outputStr := string(output)

		if strings.Contains(outputStr, "CONFLICT") || strings.Contains(outputStr, "could not apply") {
			return fmt.Errorf("pull --rebase %s from %s: %w", branch, remote, vcs.ErrRebaseConflict)
		}
		if errors.Is(err, vcs.ErrTimeout) || isUnreachableOutput(outputStr) {
			return fmt.Errorf("pull --rebase %s from %s: %w", branch, remote, vcs.ErrRemoteUnreachable)
		}

		return fmt.Errorf("pull --rebase %s from %s: %w", branch, remote, err)
	}

	return nil
}
