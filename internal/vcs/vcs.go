// Package vcs defines the git adapter contract used by the parity
// synchronization core.
//
// Watercooler drives two repositories through this interface: the code
// repository (read-only, introspection only) and the threads repository
// (the sole write target). The interface is deliberately narrow: fetch,
// checkout, commit, push, pull-with-rebase, and status introspection.
// By construction it exposes no forced or history-rewriting operation.
//
// # Usage
//
//	repo, err := git.New(path, git.Options{Timeout: 30 * time.Second})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	st, err := repo.Status(ctx)
//	if st.DetachedHead {
//	    // refuse to write
//	}
//
// The implementation lives in internal/vcs/git.
package vcs

import (
	"context"
	"time"
)

// AheadBehind holds divergence counts between a local branch and its
// remote-tracking counterpart.
type AheadBehind struct {
	// Ahead is the number of local commits not present on the remote.
	Ahead int

	// Behind is the number of remote commits not present locally.
	Behind int
}

// Diverged reports whether both sides have commits the other lacks.
func (ab AheadBehind) Diverged() bool {
	return ab.Ahead > 0 && ab.Behind > 0
}

// RepoStatus is a snapshot of repository state used by preflight checks.
type RepoStatus struct {
	// Branch is the current branch name, empty when HEAD is detached.
	Branch string

	// DetachedHead is true when HEAD does not point at a named branch.
	DetachedHead bool

	// RebaseInProgress is true when a rebase or merge is underway.
	RebaseInProgress bool

	// AheadBehind is the divergence of the current branch against its
	// remote-tracking branch. Zero values when no upstream exists.
	AheadBehind AheadBehind

	// HasUpstream is true when the current branch has a remote-tracking
	// branch to compare against.
	HasUpstream bool
}

// CommitOptions controls commit creation in the threads repository.
type CommitOptions struct {
	// Message is the commit subject and body. Required.
	Message string

	// Footers are trailer lines appended after a blank line, in the
	// "Key: value" git trailer format. Keys are emitted sorted so the
	// message is stable across runs.
	Footers map[string]string

	// Paths limits the commit to the given paths (staged first).
	Paths []string

	// Author overrides the commit author ("Name <email>").
	Author string

	// AllowEmpty permits a commit with no staged changes.
	AllowEmpty bool
}

// PushOptions controls a push to the threads remote.
//
// There is intentionally no force flag: watercooler never rewrites
// remote history.
type PushOptions struct {
	// Remote names the remote, defaulting to origin.
	Remote string

	// Branch is the branch to push; defaults to the current branch.
	Branch string

	// SetUpstream configures the upstream tracking ref (-u).
	SetUpstream bool
}

// PullRebaseOptions controls a pull --rebase from the threads remote.
type PullRebaseOptions struct {
	// Remote names the remote, defaulting to origin.
	Remote string

	// Branch is the branch to pull; defaults to the current branch.
	Branch string
}

// Repo is the git adapter consumed by the synchronization core.
//
// All mutating and network operations take a context and are bounded by
// the adapter's per-command timeout. Implementations classify failures
// into the sentinel errors in errors.go so callers can route on
// errors.Is rather than parsing output.
type Repo interface {
	// Root returns the repository root directory.
	Root() string

	// CurrentBranch returns the checked-out branch name, or "" with a
	// nil error when HEAD is detached.
	CurrentBranch(ctx context.Context) (string, error)

	// HeadCommit returns the short hash of HEAD.
	HeadCommit(ctx context.Context) (string, error)

	// BranchExists reports whether the named local branch exists.
	BranchExists(ctx context.Context, name string) (bool, error)

	// ListBranches returns the names of all local branches.
	ListBranches(ctx context.Context) ([]string, error)

	// Checkout switches to the named branch, creating it at the current
	// position when create is true and it does not yet exist.
	Checkout(ctx context.Context, branch string, create bool) error

	// Status returns a snapshot of branch, detached-HEAD, rebase, and
	// divergence state.
	Status(ctx context.Context) (RepoStatus, error)

	// AheadBehind returns divergence counts of the named branch against
	// its remote-tracking branch on the given remote.
	AheadBehind(ctx context.Context, remote, branch string) (AheadBehind, error)

	// Fetch updates remote-tracking refs. Unreachable remotes and
	// timeouts surface as ErrRemoteUnreachable.
	Fetch(ctx context.Context, remote string) error

	// HasRemote reports whether any remote is configured.
	HasRemote(ctx context.Context) bool

	// RemoteURL returns the fetch URL of the named remote.
	RemoteURL(ctx context.Context, remote string) (string, error)

	// HasChanges reports whether the working tree has uncommitted
	// changes, optionally limited to the given paths.
	HasChanges(ctx context.Context, paths ...string) (bool, error)

	// Commit stages the given paths and creates a commit, returning the
	// short hash of the new commit.
	Commit(ctx context.Context, opts CommitOptions) (string, error)

	// Push publishes the branch. A non-fast-forward rejection surfaces
	// as ErrPushRejected; unreachable remotes as ErrRemoteUnreachable.
	Push(ctx context.Context, opts PushOptions) error

	// PullRebase replays local commits on top of the remote branch.
	// Conflicts surface as ErrRebaseConflict and leave the repository
	// in a rebase-in-progress state the caller must resolve.
	PullRebase(ctx context.Context, opts PullRebaseOptions) error
}

// DefaultTimeout bounds a single git command when no explicit timeout
// is configured.
const DefaultTimeout = 30 * time.Second
