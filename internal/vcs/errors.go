package vcs

import "errors"

// Common errors returned by repository operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, vcs.ErrPushRejected) {
//	    // rebase and retry
//	}
var (
	// ErrNotARepo is returned when the operation requires being inside
	// a git repository but none was found.
	ErrNotARepo = errors.New("not a git repository")

	// ErrGitNotAvailable is returned when the git binary is not
	// installed or not in PATH.
	ErrGitNotAvailable = errors.New("git binary not available")

	// ErrNoRemote is returned when an operation requires a remote
	// but none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrBranchExists is returned when attempting to create a branch
	// that already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrBranchNotFound is returned when attempting to operate on
	// a branch that doesn't exist.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrDetached is returned when an operation requires being on a
	// named branch but HEAD is detached.
	ErrDetached = errors.New("not on a named branch")

	// ErrRebaseInProgress is returned when an operation cannot proceed
	// because a rebase or merge is already underway. It is never
	// resolved automatically.
	ErrRebaseInProgress = errors.New("rebase in progress")

	// ErrRebaseConflict is returned when a pull --rebase stops on
	// conflicting changes that require manual resolution.
	ErrRebaseConflict = errors.New("rebase conflict")

	// ErrPushRejected is returned when a push is rejected by the remote,
	// typically a non-fast-forward update because another writer
	// committed first.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrRemoteUnreachable is returned when the remote cannot be
	// contacted: DNS failure, auth failure, network down, or a command
	// timeout on a network operation.
	ErrRemoteUnreachable = errors.New("remote unreachable")

	// ErrTimeout is returned when a local git operation exceeds its
	// bounded execution timeout.
	ErrTimeout = errors.New("git operation timed out")

	// ErrDirtyTree is returned when an operation requires a clean
	// working tree but there are uncommitted changes.
	ErrDirtyTree = errors.New("working tree has uncommitted changes")
)

// IsRetryable returns true if the error is likely to succeed on a later
// retry without manual intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Network blips and timeouts are transient.
	if errors.Is(err, ErrRemoteUnreachable) || errors.Is(err, ErrTimeout) {
		return true
	}

	// Push rejections succeed after a rebase.
	if errors.Is(err, ErrPushRejected) {
		return true
	}

	return false
}

// IsUserActionRequired returns true if the error requires manual
// intervention to resolve.
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRebaseConflict) || errors.Is(err, ErrRebaseInProgress) {
		return true
	}

	if errors.Is(err, ErrDetached) || errors.Is(err, ErrDirtyTree) {
		return true
	}

	return false
}

// IsFatal returns true if the error indicates a non-recoverable state:
// no amount of retrying or rebasing will help.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotARepo) {
		return true
	}

	if errors.Is(err, ErrGitNotAvailable) {
		return true
	}

	return false
}
