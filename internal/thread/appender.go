package thread

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/watercoolerhq/watercooler/internal/repolock"
	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/topiclock"
	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// Outcome is the result of an append.
type Outcome int

const (
	// OutcomeAppended means the entry was written and committed.
	OutcomeAppended Outcome = iota

	// OutcomeAlreadyPresent means the idempotency key was found in the
	// thread file and nothing was mutated. Retried writes land here.
	OutcomeAlreadyPresent
)

func (o Outcome) String() string {
	if o == OutcomeAlreadyPresent {
		return "already-present"
	}
	return "appended"
}

// Appender writes entries into thread files and commits them with
// provenance footers.
type Appender struct {
	// Author overrides the git commit author ("Name <email>").
	Author string

	// Logger receives append diagnostics. Nil gets a default stderr
	// logger.
	Logger *log.Logger
}

func (a *Appender) logger() *log.Logger {
	if a.Logger == nil {
		a.Logger = log.New(os.Stderr, "[thread] ", log.LstdFlags)
	}
	return a.Logger
}

// Path returns the thread file path for a topic within the pair's
// topics directory.
func Path(pair *repopair.RepoPair, topic string) string {
	return filepath.Join(pair.Layout.TopicsDir, topiclock.SanitizeTopic(topic)+".md")
}

// Append writes the entry to its topic's thread file and commits it in
// the threads repo. The caller must hold the topic's lock; requiring
// the handle by type makes an unlocked append impossible to express.
//
// Appending the same entry (same idempotency key) twice is safe: the
// second call returns OutcomeAlreadyPresent without touching the file.
// The commit hash is returned for OutcomeAppended, "" otherwise.
func (a *Appender) Append(ctx context.Context, pair *repopair.RepoPair, lock *topiclock.Handle, e Entry) (Outcome, string, error) {
	if lock == nil {
		return 0, "", fmt.Errorf("append requires a held topic lock")
	}
	if lock.Topic() != e.Topic {
		return 0, "", fmt.Errorf("lock is for topic %q, entry is for %q", lock.Topic(), e.Topic)
	}
	if err := e.Validate(); err != nil {
		return 0, "", err
	}

	// Serialize the read-modify-commit against other wcl processes
	// touching the same clone.
	guard, err := repolock.Lock(ctx, pair.Layout.RepoLockFile)
	if err != nil {
		return 0, "", err
	}
	defer guard.Unlock()

	path := Path(pair, e.Topic)

	f, err := Parse(path)
	switch {
	case os.IsNotExist(err):
		f = newFile(e)
	case err != nil:
		return 0, "", fmt.Errorf("reading thread file: %w", err)
	case f.HasEntry(e.ID):
		a.logger().Printf("entry %s already present in topic %q, skipping", e.ID, e.Topic)
		return OutcomeAlreadyPresent, "", nil
	}

	f.apply(e)
	if err := f.writeTo(path); err != nil {
		return 0, "", err
	}

	rel, err := filepath.Rel(pair.Threads.Root(), path)
	if err != nil {
		return 0, "", fmt.Errorf("resolving thread file path: %w", err)
	}

	hash, err := pair.Threads.Commit(ctx, vcs.CommitOptions{
		Message: fmt.Sprintf("watercooler: %s on %s by %s", e.Type, e.Topic, e.Agent),
		Footers: commitFooters(pair, e),
		Paths:   []string{rel},
		Author:  a.Author,
	})
	if err != nil {
		return 0, "", fmt.Errorf("committing entry %s: %w", e.ID, err)
	}

	return OutcomeAppended, hash, nil
}

// commitFooters builds the provenance trailers. The idempotency key
// appears here and in the entry footer, so either surface can detect a
// replayed write.
func commitFooters(pair *repopair.RepoPair, e Entry) map[string]string {
	return map[string]string{
		"Code-Repo":            pair.CodeSlug,
		"Code-Branch":          pair.CodeBranch,
		"Code-Commit":          pair.CodeCommit,
		"Watercooler-Entry-ID": e.ID,
		"Watercooler-Topic":    e.Topic,
	}
}
