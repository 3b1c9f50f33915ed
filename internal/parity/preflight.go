package parity

import (
	"context"
	"fmt"
	"strings"

	"github.com/watercoolerhq/watercooler/internal/repopair"
)

// PendingPusher publishes local threads commits that have not reached
// the remote yet. The preflight uses it to resolve PendingPush; the
// synchronous push worker satisfies this interface.
type PendingPusher interface {
	// PushPending pushes the current threads branch with the bounded
	// rebase-on-reject retry policy.
	PushPending(ctx context.Context, pair *repopair.RepoPair) error
}

// BlockedError is returned when preflight cannot reach Clean. It names
// the condition, the git-level facts behind it, and the concrete
// recovery actions.
type BlockedError struct {
	// State is the evaluation that blocked, including any remediation
	// actions taken before the block.
	State State
}

func (e *BlockedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "write blocked: %s (code branch %q, threads branch %q",
		e.State.Status, e.State.CodeBranch, e.State.ThreadsBranch)
	if e.State.Ahead > 0 || e.State.Behind > 0 {
		fmt.Fprintf(&b, ", ahead %d / behind %d", e.State.Ahead, e.State.Behind)
	}
	b.WriteString(")")

	for _, g := range e.State.Guidance() {
		b.WriteString("\n  → ")
		b.WriteString(g)
	}

	return b.String()
}

// Preflight applies the remediation table to reach Clean before a write.
type Preflight struct {
	Checker *Checker

	// AutoRemediate enables the safe-case auto-fixes. When false,
	// every non-clean state blocks.
	AutoRemediate bool

	// Pusher resolves PendingPush. Nil treats PendingPush as blocking,
	// which only read-only callers should do.
	Pusher PendingPusher

	// Store receives the final state of every evaluation. Nil skips
	// persistence.
	Store *Store
}

// maxRemediationRounds bounds remediate-and-reevaluate cycling; the
// table's safe cases each converge in one round.
const maxRemediationRounds = 3

// EnsureClean evaluates the pair and applies the remediation table
// until the state is Clean or a blocking condition is reached. The
// returned state carries the actions taken either way; the error is a
// *BlockedError (or context/store failure) when the write must not
// proceed.
func (p *Preflight) EnsureClean(ctx context.Context, pair *repopair.RepoPair) (State, error) {
	var actions []string

	st := p.Checker.Evaluate(ctx, pair)
	for round := 0; round < maxRemediationRounds; round++ {
		st.ActionsTaken = append(actions, st.ActionsTaken...)

		if st.Status == StatusClean {
			p.record(st)
			return st, nil
		}

		if !p.AutoRemediate || st.Status.Blocking() {
			p.record(st)
			return st, &BlockedError{State: st}
		}

		if err := p.remediate(ctx, pair, &st); err != nil {
			st.Status = StatusError
			st.LastError = err.Error()
			p.record(st)
			return st, &BlockedError{State: st}
		}

		actions = st.ActionsTaken
		st = p.Checker.Evaluate(ctx, pair)
	}

	// Remediation is cycling without converging; treat as composite.
	st.ActionsTaken = append(actions, st.ActionsTaken...)
	st.Status = StatusNeedsManualRecover
	st.LastError = "remediation did not converge"
	p.record(st)
	return st, &BlockedError{State: st}
}

// remediate applies the auto-fix for one non-blocking state.
func (p *Preflight) remediate(ctx context.Context, pair *repopair.RepoPair, st *State) error {
	switch st.Status {
	case StatusPendingPush:
		if p.Pusher == nil {
			return fmt.Errorf("pending push with no pusher configured")
		}
		if err := p.Pusher.PushPending(ctx, pair); err != nil {
			return fmt.Errorf("pushing pending threads commits: %w", err)
		}
		st.addAction("Pushed %d pending commit(s) on threads branch %q", st.Ahead, st.ThreadsBranch)

	case StatusBranchMismatch, StatusMainProtectionForward:
		// Checkout the matching threads branch, creating it from the
		// current position when it does not exist yet. Creation never
		// rewrites anything: main stays where it was.
		if err := pair.Threads.Checkout(ctx, pair.CodeBranch, true); err != nil {
			return fmt.Errorf("checking out threads branch %q: %w", pair.CodeBranch, err)
		}
		st.addAction("Checked out threads branch %q", pair.CodeBranch)

	default:
		return fmt.Errorf("no remediation for state %s", st.Status)
	}

	return nil
}

// record persists the state; persistence failures are advisory and
// logged, never allowed to fail a write that is otherwise fine.
func (p *Preflight) record(st State) {
	if p.Store == nil {
		return
	}
	if err := p.Store.Write(st); err != nil {
		p.Checker.logger().Printf("writing parity record: %v", err)
	}
}
