// Package repolock provides a coarse cross-process mutex over a threads
// clone, serializing checkout, commit, and push so two wcl processes
// never interleave git mutations. It complements the per-topic advisory
// locks: topic locks serialize writers of one thread, the repo lock
// serializes the git-level critical sections underneath them.
package repolock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// errLocked reports a lock held by another process.
var errLocked = errors.New("repo lock held by another process")

// pollInterval is how often a blocked acquirer re-tries the lock.
const pollInterval = 50 * time.Millisecond

// Guard is a held repo lock. Unlock releases it; double Unlock is safe.
type Guard struct {
	f *os.File
}

// Lock acquires the repo lock at path, polling until it is free or ctx
// expires. The lock file is created on first use and never removed;
// only the flock on it matters.
func Lock(ctx context.Context, path string) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening repo lock: %w", err)
	}

	for {
		err := tryLock(f)
		if err == nil {
			return &Guard{f: f}, nil
		}
		if !errors.Is(err, errLocked) {
			f.Close()
			return nil, fmt.Errorf("acquiring repo lock: %w", err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("waiting for repo lock: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Unlock releases the lock.
func (g *Guard) Unlock() error {
	if g == nil || g.f == nil {
		return nil
	}
	err := unlock(g.f)
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	g.f = nil
	return err
}
