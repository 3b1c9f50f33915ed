// Package repopair builds the immutable per-operation context pairing a
// code repository with its threads repository.
//
// A RepoPair is constructed fresh from live git introspection at the
// start of each operation and owned exclusively by that operation; it
// is never cached across calls, so a branch switch between two writes
// is always observed.
package repopair

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/watercoolerhq/watercooler/internal/config"
	"github.com/watercoolerhq/watercooler/internal/vcs"
	"github.com/watercoolerhq/watercooler/internal/vcs/git"
	"github.com/watercoolerhq/watercooler/internal/watercooler"
)

// RepoPair is the per-operation context: one code repo, one threads
// repo, and the code branch the write is bound to.
type RepoPair struct {
	// Code is the adapter for the code repository. Read-only: the sync
	// core never mutates the code repo.
	Code vcs.Repo

	// Threads is the adapter for the threads repository, the sole
	// write target.
	Threads vcs.Repo

	// CodeSlug is the "<org>/<repo>" form of the code remote, used in
	// commit footers. Empty when the code repo has no remote.
	CodeSlug string

	// CodeBranch is the code branch resolved at construction time.
	// Empty when the code repo is on a detached HEAD (preflight then
	// blocks before any write).
	CodeBranch string

	// CodeCommit is the short hash of the code repo HEAD, recorded in
	// commit footers as provenance.
	CodeCommit string

	// ThreadsRemote is the threads remote URL, for diagnostics.
	ThreadsRemote string

	// Layout holds the runtime paths inside the threads clone.
	Layout watercooler.Layout
}

// New constructs a RepoPair from live introspection of both clones.
// codeRoot is any path inside the code repository; branchOverride, when
// non-empty, pins the pair to that branch instead of the checked-out one.
func New(ctx context.Context, cfg *config.Config, codeRoot, branchOverride string) (*RepoPair, error) {
	codeRepo, err := git.New(codeRoot, git.Options{Timeout: cfg.Sync.CommandTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening code repo at %s: %w", codeRoot, err)
	}

	threadsPath := cfg.Threads.Path
	if threadsPath == "" {
		threadsPath = "../" + filepath.Base(codeRepo.Root()) + "-threads"
	}
	if !filepath.IsAbs(threadsPath) {
		threadsPath = filepath.Join(codeRepo.Root(), threadsPath)
	}

	threadsRepo, err := git.New(threadsPath, git.Options{Timeout: cfg.Sync.CommandTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening threads repo at %s: %w", threadsPath, err)
	}

	pair := &RepoPair{
		Code:    codeRepo,
		Threads: threadsRepo,
		Layout:  watercooler.NewLayout(threadsRepo.Root(), cfg.Threads.TopicsDir),
	}

	branch := branchOverride
	if branch == "" {
		branch, err = codeRepo.CurrentBranch(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving code branch: %w", err)
		}
	}
	pair.CodeBranch = branch

	if commit, err := codeRepo.HeadCommit(ctx); err == nil {
		pair.CodeCommit = commit
	}

	if url, err := codeRepo.RemoteURL(ctx, "origin"); err == nil {
		pair.CodeSlug = SlugFromRemoteURL(url)
	}
	if url, err := threadsRepo.RemoteURL(ctx, "origin"); err == nil {
		pair.ThreadsRemote = url
	}

	return pair, nil
}

// SlugFromRemoteURL extracts "<org>/<repo>" from common git remote URL
// shapes (ssh scp-like, ssh://, https://, local paths). Returns "" when
// no org/repo pair can be derived.
func SlugFromRemoteURL(url string) string {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")
	url = strings.TrimSuffix(url, ".git")
	if url == "" {
		return ""
	}

	// scp-like: git@host:org/repo
	if at := strings.Index(url, "@"); at >= 0 && !strings.Contains(url, "://") {
		if colon := strings.Index(url[at:], ":"); colon >= 0 {
			url = url[at+colon+1:]
		}
	}

	// scheme://host/org/repo
	if idx := strings.Index(url, "://"); idx >= 0 {
		url = url[idx+3:]
		if slash := strings.Index(url, "/"); slash >= 0 {
			url = url[slash+1:]
		} else {
			return ""
		}
	}

	parts := strings.Split(strings.Trim(url, "/"), "/")
	if len(parts) < 2 {
		return ""
	}

	org := parts[len(parts)-2]
	repo := parts[len(parts)-1]
	if org == "" || repo == "" {
		return ""
	}

	return org + "/" + repo
}
