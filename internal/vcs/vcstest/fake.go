// Package vcstest provides a scriptable in-memory vcs.Repo for tests.
//
// The fake records every operation it performs, so tests can assert
// both ordering and the absence of destructive operations. The vcs.Repo
// interface cannot express a forced push at all; the op log lets tests
// additionally verify that no remediation path invents one by shelling
// out around the adapter.
package vcstest

import (
	"context"
	"sync"

	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// FakeRepo is a scriptable vcs.Repo. Fields are read and mutated under
// an internal mutex so concurrent tests stay race-clean.
type FakeRepo struct {
	mu sync.Mutex

	// RootDir is returned by Root.
	RootDir string

	// Branch is the current branch; empty means detached HEAD.
	Branch string

	// Rebasing marks an in-progress rebase.
	Rebasing bool

	// HasUpstream and AB script the divergence snapshot.
	HasUpstream bool
	AB          vcs.AheadBehind

	// Branches is the set of local branches.
	Branches map[string]bool

	// Remote scripts remote presence and URL.
	Remote bool
	URL    string

	// Dirty scripts uncommitted changes.
	Dirty bool

	// Head is the short hash returned by HeadCommit and Commit.
	Head string

	// FetchErr, PushErrs, PullErr script failures. PushErrs is consumed
	// one per Push call; when exhausted, pushes succeed.
	FetchErr error
	PushErrs []error
	PullErr  error

	// Commits records the options of every Commit call.
	Commits []vcs.CommitOptions

	// ops is the recorded operation log.
	ops []string
}

// NewFakeRepo returns a clean-state fake on the given branch with a
// reachable remote.
func NewFakeRepo(branch string) *FakeRepo {
	return &FakeRepo{
		RootDir:     "/fake/" + branch,
		Branch:      branch,
		Branches:    map[string]bool{branch: true},
		Remote:      true,
		URL:         "git@example.com:acme/fake.git",
		Head:        "abc1234",
		HasUpstream: true,
	}
}

// Ops returns a copy of the recorded operation log.
func (f *FakeRepo) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *FakeRepo) record(op string) {
	f.ops = append(f.ops, op)
}

func (f *FakeRepo) Root() string { return f.RootDir }

func (f *FakeRepo) CurrentBranch(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Branch, nil
}

func (f *FakeRepo) HeadCommit(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Head, nil
}

func (f *FakeRepo) BranchExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Branches[name], nil
}

func (f *FakeRepo) ListBranches(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.Branches {
		names = append(names, name)
	}
	return names, nil
}

func (f *FakeRepo) Checkout(ctx context.Context, branch string, create bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.Branches[branch] {
		if !create {
			return vcs.ErrBranchNotFound
		}
		f.record("checkout -b " + branch)
		f.Branches[branch] = true
	} else {
		f.record("checkout " + branch)
	}
	f.Branch = branch
	return nil
}

func (f *FakeRepo) Status(ctx context.Context) (vcs.RepoStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := vcs.RepoStatus{
		Branch:           f.Branch,
		DetachedHead:     f.Branch == "",
		RebaseInProgress: f.Rebasing,
		HasUpstream:      f.HasUpstream,
	}
	if f.HasUpstream {
		st.AheadBehind = f.AB
	}
	return st, nil
}

func (f *FakeRepo) AheadBehind(ctx context.Context, remote, branch string) (vcs.AheadBehind, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AB, nil
}

func (f *FakeRepo) Fetch(ctx context.Context, remote string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("fetch " + remote)
	return f.FetchErr
}

func (f *FakeRepo) HasRemote(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Remote
}

func (f *FakeRepo) RemoteURL(ctx context.Context, remote string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Remote {
		return "", vcs.ErrNoRemote
	}
	return f.URL, nil
}

func (f *FakeRepo) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Dirty, nil
}

func (f *FakeRepo) Commit(ctx context.Context, opts vcs.CommitOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("commit: " + opts.Message)
	f.Commits = append(f.Commits, opts)
	f.Dirty = false
	f.AB.Ahead++
	return f.Head, nil
}

func (f *FakeRepo) Push(ctx context.Context, opts vcs.PushOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("push " + opts.Branch)

	if len(f.PushErrs) > 0 {
		err := f.PushErrs[0]
		f.PushErrs = f.PushErrs[1:]
		if err != nil {
			return err
		}
	}

	f.AB.Ahead = 0
	return nil
}

func (f *FakeRepo) PullRebase(ctx context.Context, opts vcs.PullRebaseOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("pull --rebase " + opts.Branch)

	if f.PullErr != nil {
		return f.PullErr
	}

	// A successful rebase replays local commits on top of the remote.
	f.AB.Behind = 0
	return nil
}

var _ vcs.Repo = (*FakeRepo)(nil)
