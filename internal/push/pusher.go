// Package push publishes threads commits to the remote.
//
// Two paths share one interface. The synchronous pusher runs inline
// after a write, retries rejected pushes after a rebase, and always
// updates the persisted parity record so callers can trust it the
// moment the call returns. The asynchronous pusher batches pushes in
// the background, keeps its own retry budget, and only logs failures;
// it never touches the parity record. That asymmetry is load-bearing
// for existing health-check consumers, so both paths keep it (see
// AsyncPusher for the observable gap it leaves).
package push

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/watercoolerhq/watercooler/internal/repolock"
	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/retry"
	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// DefaultMaxRetries bounds push attempts on both paths.
const DefaultMaxRetries = 3

// Pusher publishes the threads branch to its remote.
type Pusher interface {
	// Publish pushes the commits currently on the pair's threads
	// branch. commit is the hash that triggered the publish; the push
	// itself always carries the whole branch.
	Publish(ctx context.Context, pair *repopair.RepoPair, commit string) error
}

// Failure is a typed push failure carrying what a caller needs to
// report and retry.
type Failure struct {
	// Branch is the threads branch that failed to publish.
	Branch string

	// Attempts is the number of push attempts made.
	Attempts int

	// Err is the final underlying error.
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pushing threads branch %q failed after %d attempt(s): %v", f.Branch, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// pushWithRebase performs the push loop shared by both paths: push; on
// rejection fetch and rebase local commits onto the moved remote, then
// push again, bounded by the policy. A rebase conflict or any fatal
// error stops immediately. Returns the attempt count alongside the
// final error.
func pushWithRebase(ctx context.Context, pair *repopair.RepoPair, policy retry.Policy, logger *log.Logger) (int, error) {
	branch := pair.CodeBranch
	attempts := 0

	// Hold the repo lock across the whole push-rebase loop so a
	// concurrent append cannot land between rebase and retry.
	guard, err := repolock.Lock(ctx, pair.Layout.RepoLockFile)
	if err != nil {
		return 0, err
	}
	defer guard.Unlock()

	err = policy.Do(ctx, func() error {
		attempts++
		err := pair.Threads.Push(ctx, vcs.PushOptions{
			Remote:      "origin",
			Branch:      branch,
			SetUpstream: true,
		})
		switch {
		case err == nil:
			return nil

		case errors.Is(err, vcs.ErrPushRejected):
			// The remote moved under us. Replay our commits on top and
			// let the next attempt push the rebased branch.
			logger.Printf("push of %q rejected, rebasing onto origin/%s", branch, branch)
			if ferr := pair.Threads.Fetch(ctx, "origin"); ferr != nil {
				if vcs.IsRetryable(ferr) {
					return ferr
				}
				return retry.Permanent(ferr)
			}
			if rerr := pair.Threads.PullRebase(ctx, vcs.PullRebaseOptions{Remote: "origin", Branch: branch}); rerr != nil {
				return retry.Permanent(fmt.Errorf("rebasing onto origin/%s: %w", branch, rerr))
			}
			return err

		case vcs.IsRetryable(err):
			return err

		default:
			return retry.Permanent(err)
		}
	})

	return attempts, err
}
