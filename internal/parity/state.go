// Package parity classifies and remediates drift between a code
// repository and its paired threads repository.
//
// The checker recomputes a ParityState from live git introspection on
// every evaluation; the persisted record (store.go) is advisory
// output, never an input to a classification decision. The preflight
// state machine applies the remediation table to reach Clean or returns
// a BlockedError naming the condition, the git-level facts behind it,
// and at least one concrete recovery action.
package parity

import "fmt"

// Status is the parity classification of a repo pair. Exactly one
// status is active per evaluation.
type Status string

const (
	// StatusClean: branches aligned, nothing pending. Writes proceed.
	StatusClean Status = "clean"

	// StatusPendingPush: local threads commits not yet on the remote.
	// Auto-remediated by the bounded push-with-rebase retry.
	StatusPendingPush Status = "pending_push"

	// StatusBranchMismatch: threads repo is on a different non-main
	// branch than the code repo. Auto-remediated by checking out (or
	// creating) the matching threads branch.
	StatusBranchMismatch Status = "branch_mismatch"

	// StatusMainProtectionForward: code is on a feature branch while
	// threads sits on main. Auto-remediated by creating the matching
	// feature branch in the threads repo, keeping main untouched.
	StatusMainProtectionForward Status = "main_protection_forward"

	// StatusMainProtectionInverse: code is on main while threads is on
	// a feature branch. Blocked: intent is ambiguous until the threads
	// branch is reconciled with main or explicitly abandoned.
	StatusMainProtectionInverse Status = "main_protection_inverse"

	// StatusCodeBehindOrigin: the code repo is behind its origin. The
	// sync core never mutates the code repo, so this always blocks.
	StatusCodeBehindOrigin Status = "code_behind_origin"

	// StatusRemoteUnreachable: the threads remote cannot be contacted.
	// Blocked; retry later, no local state is touched.
	StatusRemoteUnreachable Status = "remote_unreachable"

	// StatusRebaseInProgress: a rebase or merge is underway in the
	// code repo. Blocked until aborted or completed manually.
	StatusRebaseInProgress Status = "rebase_in_progress"

	// StatusDetachedHead: the code repo HEAD is detached. Blocked
	// until a named branch is checked out.
	StatusDetachedHead Status = "detached_head"

	// StatusDiverged: the threads repo is behind its origin, meaning another
	// writer pushed since our last fetch. Blocked; reconciliation
	// (fetch + rebase + push) is always an explicit user action.
	StatusDiverged Status = "diverged"

	// StatusNeedsManualRecover: the threads repo is in a composite
	// state (mid-rebase, detached) the remediation table refuses to
	// guess about.
	StatusNeedsManualRecover Status = "needs_manual_recover"

	// StatusOrphanBranch: a threads branch has no corresponding code
	// branch. Surfaced by the doctor audit, never auto-deleted.
	StatusOrphanBranch Status = "orphan_branch"

	// StatusError: an unexpected failure during evaluation; the full
	// diagnostic is carried in LastError.
	StatusError Status = "error"
)

// Blocking reports whether the status halts a write even with
// auto-remediation enabled.
func (s Status) Blocking() bool {
	switch s {
	case StatusClean, StatusPendingPush, StatusBranchMismatch, StatusMainProtectionForward:
		return false
	}
	return true
}

// State is the result of one parity evaluation. It is recomputed, never
// incrementally mutated, each time the checker runs, and is owned by
// the single in-flight operation that requested it.
type State struct {
	// Status is the single active classification.
	Status Status

	// CodeBranch and ThreadsBranch are the branch names observed.
	CodeBranch    string
	ThreadsBranch string

	// Ahead and Behind are the threads repo's divergence against its
	// origin at evaluation time.
	Ahead  int
	Behind int

	// ActionsTaken lists remediation steps already applied during this
	// preflight (free text, newest last).
	ActionsTaken []string

	// LastError carries the diagnostic for StatusError and push
	// failures.
	LastError string
}

// Guidance returns the concrete recovery actions for a blocking state.
// Every blocking state names at least one action; a bare "something
// went wrong" is never surfaced.
func (s *State) Guidance() []string {
	switch s.Status {
	case StatusMainProtectionInverse:
		return []string{
			fmt.Sprintf("reconcile the threads branch %q into main (wcl reconcile --rebase), then retry", s.ThreadsBranch),
			fmt.Sprintf("or check out the matching code branch %q in the code repo and retry", s.ThreadsBranch),
		}
	case StatusCodeBehindOrigin:
		return []string{
			fmt.Sprintf("pull the code repo (git pull) — it is %d commit(s) behind origin; watercooler never mutates the code repo", s.Behind),
		}
	case StatusRemoteUnreachable:
		return []string{
			"check network/credentials for the threads remote and retry; no local state was changed",
		}
	case StatusRebaseInProgress:
		return []string{
			"finish or abort the in-progress rebase in the code repo (git rebase --continue | --abort), then retry",
		}
	case StatusDetachedHead:
		return []string{
			"check out a named branch in the code repo (git checkout <branch>), then retry",
		}
	case StatusDiverged:
		return []string{
			fmt.Sprintf("another writer pushed first: threads branch %q is %d commit(s) behind origin", s.ThreadsBranch, s.Behind),
			"run 'wcl reconcile --rebase' to fetch, rebase, and push the threads repo, then retry",
		}
	case StatusNeedsManualRecover:
		return []string{
			"the threads clone is mid-rebase or on a detached HEAD; run 'wcl doctor' and resolve it in the threads repo before retrying",
		}
	case StatusOrphanBranch:
		return []string{
			fmt.Sprintf("threads branch %q has no matching code branch; keep it, or delete it manually after review", s.ThreadsBranch),
		}
	case StatusError:
		return []string{
			"unexpected failure; full diagnostic: " + s.LastError,
		}
	}
	return nil
}

// addAction appends a remediation note.
func (s *State) addAction(format string, args ...any) {
	s.ActionsTaken = append(s.ActionsTaken, fmt.Sprintf(format, args...))
}
