package push

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/watercoolerhq/watercooler/internal/vcs"
	"github.com/watercoolerhq/watercooler/internal/vcs/vcstest"
)

func newAsyncPusher(t *testing.T, window time.Duration, maxBatch int) *AsyncPusher {
	t.Helper()
	p := &AsyncPusher{
		BatchWindow: window,
		MaxBatch:    maxBatch,
		Policy:      fastPolicy(3),
		Logger:      log.New(io.Discard, "", 0),
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Stop)
	return p
}

func waitForOutcome(t *testing.T, p *AsyncPusher) *Outcome {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if o := p.LastOutcome(); o != nil {
			return o
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no publish outcome before deadline")
	return nil
}

func TestAsyncSizeTriggeredBatch(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 3
	pair := pushPair(t, threads)

	// A window far beyond the test's patience proves the size trigger
	// fired, not the timer.
	p := newAsyncPusher(t, time.Hour, 3)
	for i := 0; i < 3; i++ {
		if err := p.Enqueue(pair, "abc1234"); err != nil {
			t.Fatal(err)
		}
	}

	o := waitForOutcome(t, p)
	if o.Err != nil {
		t.Fatalf("publish failed: %v", o.Err)
	}
	if o.Batch != 3 {
		t.Errorf("Batch = %d, want 3", o.Batch)
	}
	if got := threads.AB.Ahead; got != 0 {
		t.Errorf("Ahead = %d after publish, want 0", got)
	}

	// Three commits on one branch collapse into a single push.
	pushes := 0
	for _, op := range threads.Ops() {
		if op == "push feature-x" {
			pushes++
		}
	}
	if pushes != 1 {
		t.Errorf("pushes = %d, want 1", pushes)
	}
}

func TestAsyncWindowTriggeredBatch(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 1
	pair := pushPair(t, threads)

	p := newAsyncPusher(t, 30*time.Millisecond, 100)
	if err := p.Enqueue(pair, "abc1234"); err != nil {
		t.Fatal(err)
	}

	o := waitForOutcome(t, p)
	if o.Err != nil {
		t.Fatalf("publish failed: %v", o.Err)
	}
	if o.Batch != 1 {
		t.Errorf("Batch = %d, want 1", o.Batch)
	}
}

func TestAsyncFlush(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 2
	pair := pushPair(t, threads)

	p := newAsyncPusher(t, time.Hour, 100)
	if err := p.Enqueue(pair, "abc1234"); err != nil {
		t.Fatal(err)
	}
	if err := p.Enqueue(pair, "def5678"); err != nil {
		t.Fatal(err)
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if threads.AB.Ahead != 0 {
		t.Errorf("Ahead = %d after flush, want 0", threads.AB.Ahead)
	}

	// Flushing an empty queue is a no-op, not an error.
	if err := p.Flush(context.Background()); err != nil {
		t.Errorf("empty Flush() failed: %v", err)
	}
}

func TestAsyncFailureLoggedNotRaised(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 1
	threads.PushErrs = []error{
		vcs.ErrRemoteUnreachable, vcs.ErrRemoteUnreachable, vcs.ErrRemoteUnreachable,
	}
	pair := pushPair(t, threads)

	p := newAsyncPusher(t, time.Hour, 100)

	// The enqueueing call never sees the push failure.
	if err := p.Enqueue(pair, "abc1234"); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	// Flush surfaces it, and LastOutcome keeps it observable.
	err := p.Flush(context.Background())
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("Flush() err = %v, want *Failure", err)
	}

	o := p.LastOutcome()
	if o == nil || o.Err == nil {
		t.Fatal("LastOutcome does not carry the failure")
	}
	if !errors.Is(o.Err, vcs.ErrRemoteUnreachable) {
		t.Errorf("outcome err = %v, want wrapped ErrRemoteUnreachable", o.Err)
	}
}

func TestAsyncStopDrains(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 1
	pair := pushPair(t, threads)

	p := &AsyncPusher{
		BatchWindow: time.Hour,
		MaxBatch:    100,
		Policy:      fastPolicy(3),
		Logger:      log.New(io.Discard, "", 0),
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if err := p.Enqueue(pair, "abc1234"); err != nil {
		t.Fatal(err)
	}

	p.Stop()

	if threads.AB.Ahead != 0 {
		t.Errorf("Ahead = %d after Stop, want 0; pending batch was dropped", threads.AB.Ahead)
	}
}

func TestAsyncNotRunning(t *testing.T) {
	p := &AsyncPusher{}
	if err := p.Enqueue(pushPair(t, vcstest.NewFakeRepo("feature-x")), "abc1234"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Enqueue() err = %v, want ErrNotRunning", err)
	}
	if err := p.Flush(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Flush() err = %v, want ErrNotRunning", err)
	}

	// Stop before Start is a no-op.
	p.Stop()
}
