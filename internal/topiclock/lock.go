// Package topiclock serializes concurrent appends to the same thread
// file with an advisory, TTL-bounded lock per topic.
//
// A lock is a file under the locks directory whose content is a JSON
// diagnostics payload (pid, user, working directory, acquisition time).
// The content is never parsed for correctness decisions; existence of
// the file is the lock; the payload exists so a human or doctor check
// can identify the owner of a stale lock after a crash.
//
// Locks older than their TTL are considered abandoned and are broken by
// the next acquirer, after logging the prior owner's diagnostics.
package topiclock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watercoolerhq/watercooler/internal/repolock"
	"github.com/watercoolerhq/watercooler/internal/retry"
)

// Defaults for lock lifecycle when the config leaves them zero.
const (
	DefaultTTL            = 60 * time.Second
	DefaultAcquireTimeout = 30 * time.Second

	// pollInterval is the wait between acquisition attempts while
	// another writer holds the lock.
	pollInterval = 250 * time.Millisecond
)

// ErrAcquireTimeout is returned when the lock could not be acquired
// within the acquire timeout.
var ErrAcquireTimeout = errors.New("timed out waiting for topic lock")

// lockInfo is the diagnostics payload written into the lock file.
type lockInfo struct {
	Topic      string    `json:"topic"`
	PID        int       `json:"pid"`
	User       string    `json:"user"`
	WorkingDir string    `json:"working_dir"`
	AcquiredAt time.Time `json:"acquired_at"`
	Token      string    `json:"token"`
}

// Handle represents a held topic lock. It is returned by Acquire and
// required (by type) by the entry appender, so an append cannot be
// attempted without the lock.
type Handle struct {
	topic    string
	path     string
	token    string
	acquired time.Time
	released bool
}

// Topic returns the topic this handle locks.
func (h *Handle) Topic() string {
	return h.topic
}

// Manager acquires and releases per-topic locks in one locks directory.
type Manager struct {
	// Dir is the directory holding lock files, typically
	// <threads>/.watercooler/locks. Created on first acquire.
	Dir string

	// TTL is the age past which an existing lock is considered
	// abandoned and breakable. Zero means DefaultTTL.
	TTL time.Duration

	// AcquireTimeout bounds how long Acquire waits for a busy lock.
	// Zero means DefaultAcquireTimeout.
	AcquireTimeout time.Duration

	// Logger receives stale-break diagnostics. Nil gets a default
	// stderr logger.
	Logger *log.Logger
}

func (m *Manager) logger() *log.Logger {
	if m.Logger == nil {
		m.Logger = log.New(os.Stderr, "[topiclock] ", log.LstdFlags)
	}
	return m.Logger
}

func (m *Manager) ttl() time.Duration {
	if m.TTL <= 0 {
		return DefaultTTL
	}
	return m.TTL
}

func (m *Manager) acquireTimeout() time.Duration {
	if m.AcquireTimeout <= 0 {
		return DefaultAcquireTimeout
	}
	return m.AcquireTimeout
}

// lockPath returns the lock file path for a topic.
func (m *Manager) lockPath(topic string) string {
	return filepath.Join(m.Dir, SanitizeTopic(topic)+".lock")
}

// Acquire obtains the lock for topic, waiting up to the acquire timeout
// (bounded further by ctx). A lock older than the TTL is broken after
// its diagnostics are logged for post-mortem.
func (m *Manager) Acquire(ctx context.Context, topic string) (*Handle, error) {
	if err := os.MkdirAll(m.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating locks directory: %w", err)
	}

	path := m.lockPath(topic)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, m.acquireTimeout())
	defer cancel()

	err := retry.PollPolicy(pollInterval).Do(waitCtx, func() error {
		return m.tryAcquire(waitCtx, topic, path, token)
	})
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: topic %q held by another writer for over %s",
				ErrAcquireTimeout, topic, m.acquireTimeout())
		}
		return nil, err
	}

	return &Handle{
		topic:    topic,
		path:     path,
		token:    token,
		acquired: time.Now(),
	}, nil
}

// tryAcquire attempts a single O_EXCL creation, breaking a stale lock
// first when the existing one has outlived its TTL.
//
// Every lock-file transition runs under a per-topic flock guard, so the
// read-check-remove-create sequence of a stale break is atomic against
// other acquirers and releasers. Without the guard, two breakers can
// interleave such that one removes the lock the other just re-created
// and both walk away holding handles.
func (m *Manager) tryAcquire(ctx context.Context, topic, path, token string) error {
	guard, err := repolock.Lock(ctx, path+".guard")
	if err != nil {
		return retry.Permanent(fmt.Errorf("guarding lock acquire: %w", err))
	}
	defer guard.Unlock()

	if info, err := m.readInfo(path); err == nil {
		age := time.Since(info.AcquiredAt)
		if age <= m.ttl() {
			return fmt.Errorf("lock busy (pid %d, age %s)", info.PID, age.Round(time.Millisecond))
		}

		// Abandoned lock: record the prior owner before breaking it.
		m.logger().Printf("breaking stale lock for topic %q: held by pid=%d user=%s cwd=%s for %s (ttl %s)",
			topic, info.PID, info.User, info.WorkingDir, age.Round(time.Second), m.ttl())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return retry.Permanent(fmt.Errorf("breaking stale lock: %w", err))
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if os.IsExist(err) {
			// Raced with another acquirer; keep polling.
			return fmt.Errorf("lock busy: %s", path)
		}
		return retry.Permanent(fmt.Errorf("creating lock file: %w", err))
	}

	now := time.Now().UTC()
	if err := json.NewEncoder(f).Encode(m.newInfo(topic, token, now)); err != nil {
		f.Close()
		os.Remove(path)
		return retry.Permanent(fmt.Errorf("writing lock file: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return retry.Permanent(fmt.Errorf("closing lock file: %w", err))
	}

	return nil
}

func (m *Manager) newInfo(topic, token string, now time.Time) lockInfo {
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	cwd, _ := os.Getwd()

	return lockInfo{
		Topic:      topic,
		PID:        os.Getpid(),
		User:       username,
		WorkingDir: cwd,
		AcquiredAt: now,
		Token:      token,
	}
}

func (m *Manager) readInfo(path string) (lockInfo, error) {
	var info lockInfo

	data, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}

	if err := json.Unmarshal(data, &info); err != nil {
		// Unparseable lock file: treat its mtime as the acquisition
		// time so the TTL can still break it.
		if st, serr := os.Stat(path); serr == nil {
			info.AcquiredAt = st.ModTime()
			return info, nil
		}
		return info, err
	}

	return info, nil
}

// Release removes the lock. It is idempotent: releasing twice, or
// releasing after another writer broke the lock, is a no-op. The lock
// is only removed when it still carries this handle's token.
func (m *Manager) Release(h *Handle) error {
	if h == nil || h.released {
		return nil
	}
	h.released = true

	// Past the TTL the lock is breakable by anyone; this handle has
	// forfeited ownership and must not touch the file, which may be
	// mid-break or already belong to a new owner.
	if time.Since(h.acquired) >= m.ttl() {
		m.logger().Printf("lock for topic %q outlived its TTL; leaving it to the stale-break path", h.topic)
		return nil
	}

	guard, err := repolock.Lock(context.Background(), h.path+".guard")
	if err != nil {
		return fmt.Errorf("guarding lock release: %w", err)
	}
	defer guard.Unlock()

	info, err := m.readInfo(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading lock for release: %w", err)
	}

	// A different token means the lock was broken and re-acquired by
	// someone else; removing it would steal their lock.
	if info.Token != h.token {
		m.logger().Printf("lock for topic %q was taken over (stale break); skipping removal", h.topic)
		return nil
	}

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}

	return nil
}

// With acquires the topic lock, runs fn, and releases on every exit
// path, including a panic inside fn.
func (m *Manager) With(ctx context.Context, topic string, fn func(*Handle) error) error {
	h, err := m.Acquire(ctx, topic)
	if err != nil {
		return err
	}
	defer m.Release(h)

	return fn(h)
}

// Info describes an on-disk lock file for audit surfaces.
type Info struct {
	// Topic is the locked topic, or the filename stem when the lock
	// file is unparseable.
	Topic string

	// Path is the lock file location.
	Path string

	// PID and User identify the holder, when known.
	PID  int
	User string

	// Age is how long the lock has been held.
	Age time.Duration

	// Stale is true when Age exceeds the manager's TTL.
	Stale bool
}

// List returns every lock file in the locks directory, stale or not.
func (m *Manager) List() ([]Info, error) {
	matches, err := filepath.Glob(filepath.Join(m.Dir, "*.lock"))
	if err != nil {
		return nil, fmt.Errorf("listing lock files: %w", err)
	}

	var locks []Info
	for _, path := range matches {
		info, err := m.readInfo(path)
		if err != nil {
			if os.IsNotExist(err) {
				// Released between glob and read.
				continue
			}
			return nil, fmt.Errorf("reading lock %s: %w", path, err)
		}

		topic := info.Topic
		if topic == "" {
			topic = strings.TrimSuffix(filepath.Base(path), ".lock")
		}
		age := time.Since(info.AcquiredAt)

		locks = append(locks, Info{
			Topic: topic,
			Path:  path,
			PID:   info.PID,
			User:  info.User,
			Age:   age,
			Stale: age > m.ttl(),
		})
	}
	return locks, nil
}

// BreakStale removes every lock older than the TTL and returns how
// many were broken. Live locks are never touched.
func (m *Manager) BreakStale() (int, error) {
	locks, err := m.List()
	if err != nil {
		return 0, err
	}

	broken := 0
	for _, l := range locks {
		if !l.Stale {
			continue
		}
		did, err := m.breakOne(l)
		if err != nil {
			return broken, err
		}
		if did {
			broken++
		}
	}
	return broken, nil
}

// breakOne removes a single stale lock under its guard, re-checking
// staleness first: the lock may have been broken and re-acquired by
// another writer between List and now.
func (m *Manager) breakOne(l Info) (bool, error) {
	guard, err := repolock.Lock(context.Background(), l.Path+".guard")
	if err != nil {
		return false, fmt.Errorf("guarding stale break: %w", err)
	}
	defer guard.Unlock()

	info, err := m.readInfo(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("re-reading lock %s: %w", l.Path, err)
	}
	if time.Since(info.AcquiredAt) <= m.ttl() {
		return false, nil
	}

	m.logger().Printf("breaking stale lock for topic %q: held by pid=%d user=%s for %s (ttl %s)",
		l.Topic, info.PID, info.User, time.Since(info.AcquiredAt).Round(time.Second), m.ttl())
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("breaking stale lock %s: %w", l.Path, err)
	}
	return true, nil
}
