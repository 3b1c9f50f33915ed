// Package thread reads and appends watercooler thread files.
//
// A thread file is <topics-dir>/<topic>.md: a YAML header (topic,
// status, ball owner, timestamps) followed by append-only entry blocks.
// Each entry carries a ULID idempotency key in an HTML-comment footer;
// the same key is duplicated into the git commit footers so either
// surface can detect a retried write.
package thread

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EntryType labels what an entry does to the conversation.
type EntryType string

const (
	// TypeNote adds information without changing thread state.
	TypeNote EntryType = "note"

	// TypeQuestion asks something and passes the ball to the addressee.
	TypeQuestion EntryType = "question"

	// TypeAnswer responds to an open question.
	TypeAnswer EntryType = "answer"

	// TypeHandoff explicitly passes the ball.
	TypeHandoff EntryType = "handoff"

	// TypeResolve closes the thread.
	TypeResolve EntryType = "resolve"

	// TypeReopen reopens a resolved thread.
	TypeReopen EntryType = "reopen"
)

// Entry is one appended unit. It is created once by the caller and
// never mutated after append.
type Entry struct {
	// ID is the ULID idempotency key, unique per logical write.
	ID string

	// Topic names the thread.
	Topic string

	// Agent and Role identify the author.
	Agent string
	Role  string

	// Type is the entry semantics label.
	Type EntryType

	// Time is the authoring timestamp.
	Time time.Time

	// Body is the markdown content.
	Body string

	// Ball, when non-empty, names the next actor; the appender writes
	// it into the thread header.
	Ball string
}

// New constructs an entry with a fresh idempotency key and the current
// time. The caller holds the result across retries so a replayed write
// reuses the same key.
func New(topic, agent, role string, typ EntryType, body string) Entry {
	now := time.Now().UTC()
	return Entry{
		ID:    NewID(now),
		Topic: topic,
		Agent: agent,
		Role:  role,
		Type:  typ,
		Time:  now,
		Body:  body,
	}
}

// Validate reports whether the entry can be appended.
func (e *Entry) Validate() error {
	if e.Topic == "" {
		return fmt.Errorf("entry has no topic")
	}
	if e.Agent == "" {
		return fmt.Errorf("entry has no agent")
	}
	if _, err := ulid.ParseStrict(e.ID); err != nil {
		return fmt.Errorf("entry id %q is not a valid ULID: %w", e.ID, err)
	}
	switch e.Type {
	case TypeNote, TypeQuestion, TypeAnswer, TypeHandoff, TypeResolve, TypeReopen:
	default:
		return fmt.Errorf("unknown entry type %q", e.Type)
	}
	if strings.Contains(e.Body, entryFooterPrefix) {
		return fmt.Errorf("entry body contains a reserved footer marker")
	}
	return nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID for the given time. IDs from one process are
// monotonic, so entries sort by creation order even within one
// millisecond.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}
