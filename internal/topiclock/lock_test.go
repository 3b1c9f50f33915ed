package topiclock

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testManager(t *testing.T, ttl, timeout time.Duration) *Manager {
	t.Helper()
	return &Manager{
		Dir:            filepath.Join(t.TempDir(), "locks"),
		TTL:            ttl,
		AcquireTimeout: timeout,
	}
}

func TestAcquireRelease(t *testing.T) {
	m := testManager(t, time.Minute, time.Second)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "auth-design")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	if _, err := os.Stat(m.lockPath("auth-design")); err != nil {
		t.Fatalf("lock file missing after acquire: %v", err)
	}

	if err := m.Release(h); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	if _, err := os.Stat(m.lockPath("auth-design")); !os.IsNotExist(err) {
		t.Error("lock file still present after release")
	}

	// Release is idempotent
	if err := m.Release(h); err != nil {
		t.Errorf("second Release() failed: %v", err)
	}
}

func TestAcquireTimeout(t *testing.T) {
	m := testManager(t, time.Minute, 300*time.Millisecond)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "busy-topic")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer m.Release(h)

	_, err = m.Acquire(ctx, "busy-topic")
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("second Acquire() = %v, want ErrAcquireTimeout", err)
	}
}

func TestStaleLockBroken(t *testing.T) {
	m := testManager(t, 50*time.Millisecond, 2*time.Second)
	ctx := context.Background()

	h1, err := m.Acquire(ctx, "abandoned")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	// Let the first lock outlive its TTL; a new acquirer breaks it
	// without manual intervention.
	time.Sleep(100 * time.Millisecond)

	h2, err := m.Acquire(ctx, "abandoned")
	if err != nil {
		t.Fatalf("Acquire() after TTL expiry failed: %v", err)
	}
	defer m.Release(h2)

	// The stale handle's release must not remove the new owner's lock.
	if err := m.Release(h1); err != nil {
		t.Fatalf("Release() of broken handle failed: %v", err)
	}
	if _, err := os.Stat(m.lockPath("abandoned")); err != nil {
		t.Error("new owner's lock was removed by the stale handle's release")
	}
}

func TestMutualExclusion(t *testing.T) {
	m := testManager(t, time.Minute, 10*time.Second)
	ctx := context.Background()

	const writers = 8
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		order   []int
		wg      sync.WaitGroup
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			err := m.With(ctx, "shared-topic", func(h *Handle) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				order = append(order, id)
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("writer %d: %v", id, err)
			}
		}(i)
	}

	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("critical sections overlapped: max concurrent = %d, want 1", maxSeen)
	}
	if len(order) != writers {
		t.Errorf("completed writers = %d, want %d", len(order), writers)
	}
}

func TestDifferentTopicsDoNotContend(t *testing.T) {
	m := testManager(t, time.Minute, 500*time.Millisecond)
	ctx := context.Background()

	h1, err := m.Acquire(ctx, "topic-a")
	if err != nil {
		t.Fatalf("Acquire(topic-a) failed: %v", err)
	}
	defer m.Release(h1)

	// A different topic acquires immediately even while topic-a is held.
	start := time.Now()
	h2, err := m.Acquire(ctx, "topic-b")
	if err != nil {
		t.Fatalf("Acquire(topic-b) failed: %v", err)
	}
	defer m.Release(h2)

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Acquire(topic-b) waited %s while only topic-a was held", elapsed)
	}
}

func TestWithReleasesOnError(t *testing.T) {
	m := testManager(t, time.Minute, time.Second)
	ctx := context.Background()

	wantErr := errors.New("append failed")
	err := m.With(ctx, "failing", func(h *Handle) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("With() = %v, want %v", err, wantErr)
	}

	// Lock must be free again despite the error exit.
	h, err := m.Acquire(ctx, "failing")
	if err != nil {
		t.Fatalf("Acquire() after failed With(): %v", err)
	}
	m.Release(h)
}

func TestUnparseableLockTTLBreak(t *testing.T) {
	m := testManager(t, 50*time.Millisecond, 2*time.Second)
	ctx := context.Background()

	if err := os.MkdirAll(m.Dir, 0o750); err != nil {
		t.Fatal(err)
	}
	path := m.lockPath("garbled")
	if err := os.WriteFile(path, []byte("not json"), 0o640); err != nil {
		t.Fatal(err)
	}

	// An unparseable lock is aged by mtime and broken past the TTL.
	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	h, err := m.Acquire(ctx, "garbled")
	if err != nil {
		t.Fatalf("Acquire() over garbled stale lock failed: %v", err)
	}
	m.Release(h)
}

func TestListAndBreakStale(t *testing.T) {
	m := testManager(t, 50*time.Millisecond, time.Second)
	ctx := context.Background()

	stale, err := m.Acquire(ctx, "old-topic")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)

	live, err := m.Acquire(ctx, "live-topic")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Release(live)

	locks, err := m.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("locks = %d, want 2", len(locks))
	}

	byTopic := make(map[string]Info)
	for _, l := range locks {
		byTopic[l.Topic] = l
	}
	if !byTopic["old-topic"].Stale {
		t.Error("old-topic not reported stale")
	}
	if byTopic["live-topic"].Stale {
		t.Error("live-topic reported stale")
	}

	broken, err := m.BreakStale()
	if err != nil {
		t.Fatalf("BreakStale() failed: %v", err)
	}
	if broken != 1 {
		t.Errorf("broken = %d, want 1", broken)
	}

	locks, err = m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 1 || locks[0].Topic != "live-topic" {
		t.Errorf("remaining locks = %+v, want only live-topic", locks)
	}

	// The stale handle's release is still a safe no-op.
	if err := m.Release(stale); err != nil {
		t.Errorf("Release() of broken lock failed: %v", err)
	}
}

// seedStaleLock plants an on-disk lock file whose acquisition time is
// far past the TTL, as a crashed writer would leave behind.
func seedStaleLock(t *testing.T, m *Manager, topic string) {
	t.Helper()

	if err := os.MkdirAll(m.Dir, 0o750); err != nil {
		t.Fatalf("creating locks dir: %v", err)
	}
	info := m.newInfo(topic, uuid.NewString(), time.Now().Add(-5*time.Minute))
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshaling lock info: %v", err)
	}
	if err := os.WriteFile(m.lockPath(topic), data, 0o640); err != nil {
		t.Fatalf("writing lock file: %v", err)
	}
}

func TestConcurrentStaleBreakMutualExclusion(t *testing.T) {
	const (
		trials = 6
		racers = 4
	)

	for trial := 0; trial < trials; trial++ {
		m := testManager(t, time.Minute, 300*time.Millisecond)
		seedStaleLock(t, m, "contended")

		var (
			mu      sync.Mutex
			handles []*Handle
		)
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h, err := m.Acquire(context.Background(), "contended")
				if err != nil {
					return
				}
				mu.Lock()
				handles = append(handles, h)
				mu.Unlock()
			}()
		}
		wg.Wait()

		if len(handles) != 1 {
			t.Fatalf("trial %d: %d writers hold the lock at once, want exactly 1", trial, len(handles))
		}
		if err := m.Release(handles[0]); err != nil {
			t.Fatalf("trial %d: Release() failed: %v", trial, err)
		}
	}
}

func TestReleasePastTTLLeavesLock(t *testing.T) {
	m := testManager(t, 50*time.Millisecond, time.Second)

	h, err := m.Acquire(context.Background(), "expired")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	// The handle outlived its TTL and has forfeited ownership: the
	// file may already belong to a new owner, so release must not
	// remove it.
	if err := m.Release(h); err != nil {
		t.Fatalf("Release() after TTL failed: %v", err)
	}
	if _, err := os.Stat(m.lockPath("expired")); err != nil {
		t.Errorf("expired lock file removed by forfeited handle: %v", err)
	}
}
