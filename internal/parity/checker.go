package parity

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// DefaultMainBranch is the protected branch name the main-protection
// rules key on.
const DefaultMainBranch = "main"

// Checker classifies the drift between a code repo and its threads repo.
type Checker struct {
	// FetchBeforeCheck runs a fetch in the threads repo before
	// evaluating, so remote-tracking refs are not stale.
	FetchBeforeCheck bool

	// MainBranch is the protected branch name. Empty means
	// DefaultMainBranch.
	MainBranch string

	// Logger receives evaluation diagnostics. Nil gets a default
	// stderr logger.
	Logger *log.Logger
}

func (c *Checker) logger() *log.Logger {
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "[parity] ", log.LstdFlags)
	}
	return c.Logger
}

func (c *Checker) mainBranch() string {
	if c.MainBranch == "" {
		return DefaultMainBranch
	}
	return c.MainBranch
}

// Evaluate recomputes the parity state for the pair from live git
// introspection. Checks run in a fixed order and short-circuit on the
// first fatal condition; exactly one status results.
func (c *Checker) Evaluate(ctx context.Context, pair *repopair.RepoPair) State {
	st := State{CodeBranch: pair.CodeBranch}

	// Code repo first: detached HEAD and in-progress rebase are fatal
	// before anything else is worth looking at.
	codeStatus, err := pair.Code.Status(ctx)
	if err != nil {
		return c.errorState(st, "inspecting code repo", err)
	}
	if codeStatus.DetachedHead {
		st.Status = StatusDetachedHead
		return st
	}
	if codeStatus.RebaseInProgress {
		st.Status = StatusRebaseInProgress
		return st
	}

	// The code repo is never mutated by this system, so being behind
	// origin can only be fixed by the user pulling.
	if codeStatus.HasUpstream && codeStatus.AheadBehind.Behind > 0 {
		st.Status = StatusCodeBehindOrigin
		st.Behind = codeStatus.AheadBehind.Behind
		return st
	}

	// Threads repo next. A fetch keeps the divergence counts honest;
	// an unreachable remote blocks without touching local state.
	if c.FetchBeforeCheck && pair.Threads.HasRemote(ctx) {
		if err := pair.Threads.Fetch(ctx, "origin"); err != nil {
			if errors.Is(err, vcs.ErrRemoteUnreachable) {
				st.Status = StatusRemoteUnreachable
				st.LastError = err.Error()
				return st
			}
			return c.errorState(st, "fetching threads remote", err)
		}
	}

	threadsStatus, err := pair.Threads.Status(ctx)
	if err != nil {
		return c.errorState(st, "inspecting threads repo", err)
	}
	st.ThreadsBranch = threadsStatus.Branch
	st.Ahead = threadsStatus.AheadBehind.Ahead
	st.Behind = threadsStatus.AheadBehind.Behind

	// A threads clone mid-rebase or detached is a composite state the
	// remediation table refuses to guess about.
	if threadsStatus.RebaseInProgress || threadsStatus.DetachedHead {
		st.Status = StatusNeedsManualRecover
		return st
	}

	// Behind its origin means another writer pushed since our last
	// fetch; reconciliation is always explicit, never auto-pulled.
	if threadsStatus.AheadBehind.Behind > 0 {
		st.Status = StatusDiverged
		return st
	}

	// Branch parity.
	if threadsStatus.Branch != pair.CodeBranch {
		main := c.mainBranch()
		switch {
		case threadsStatus.Branch == main && pair.CodeBranch != main:
			st.Status = StatusMainProtectionForward
		case pair.CodeBranch == main && threadsStatus.Branch != main:
			st.Status = StatusMainProtectionInverse
		default:
			st.Status = StatusBranchMismatch
		}
		return st
	}

	// Aligned branches with unpushed local commits.
	if threadsStatus.AheadBehind.Ahead > 0 {
		st.Status = StatusPendingPush
		return st
	}

	st.Status = StatusClean
	return st
}

func (c *Checker) errorState(st State, what string, err error) State {
	c.logger().Printf("%s: %v", what, err)
	st.Status = StatusError
	st.LastError = what + ": " + err.Error()
	return st
}

// FindOrphanBranches lists threads branches that have no corresponding
// code branch. This is an audit surface: orphans are reported, never
// deleted automatically.
func FindOrphanBranches(ctx context.Context, pair *repopair.RepoPair, threadsBranches []string) ([]string, error) {
	var orphans []string

	for _, branch := range threadsBranches {
		exists, err := pair.Code.BranchExists(ctx, branch)
		if err != nil {
			return nil, err
		}
		if !exists {
			orphans = append(orphans, branch)
		}
	}

	return orphans, nil
}
