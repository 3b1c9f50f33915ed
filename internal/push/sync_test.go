package push

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/watercoolerhq/watercooler/internal/parity"
	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/retry"
	"github.com/watercoolerhq/watercooler/internal/vcs"
	"github.com/watercoolerhq/watercooler/internal/vcs/vcstest"
	"github.com/watercoolerhq/watercooler/internal/watercooler"
)

// fastPolicy keeps test retries down to milliseconds.
func fastPolicy(maxAttempts int) *retry.Policy {
	return &retry.Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1.0,
	}
}

func newSyncPusher(t *testing.T, maxAttempts int) (*SyncPusher, *parity.Store) {
	t.Helper()
	store := &parity.Store{Path: filepath.Join(t.TempDir(), "parity.json")}
	return &SyncPusher{
		Store:      store,
		MaxRetries: maxAttempts,
		Policy:     fastPolicy(maxAttempts),
		Logger:     log.New(io.Discard, "", 0),
	}, store
}

func pushPair(t *testing.T, threads *vcstest.FakeRepo) *repopair.RepoPair {
	t.Helper()
	return &repopair.RepoPair{
		Code:       vcstest.NewFakeRepo("feature-x"),
		Threads:    threads,
		CodeBranch: "feature-x",
		CodeCommit: "abc1234",
		CodeSlug:   "acme/widgets",
		Layout:     watercooler.NewLayout(t.TempDir(), "topics"),
	}
}

func TestSyncPublishSuccess(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 1

	pusher, store := newSyncPusher(t, 3)
	if err := pusher.Publish(context.Background(), pushPair(t, threads), "abc1234"); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	if threads.AB.Ahead != 0 {
		t.Errorf("Ahead = %d after publish, want 0", threads.AB.Ahead)
	}

	rec, err := store.Read()
	if err != nil {
		t.Fatalf("reading parity record: %v", err)
	}
	if rec.PendingPush {
		t.Error("PendingPush = true after successful publish")
	}
}

func TestSyncPublishRejectedThenRebased(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB = vcs.AheadBehind{Ahead: 1}
	threads.PushErrs = []error{vcs.ErrPushRejected}

	pusher, store := newSyncPusher(t, 3)
	if err := pusher.Publish(context.Background(), pushPair(t, threads), "abc1234"); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	// Rejection must trigger fetch + rebase + re-push, in that order.
	want := []string{"push feature-x", "fetch origin", "pull --rebase feature-x", "push feature-x"}
	got := threads.Ops()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ops[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	rec, err := store.Read()
	if err != nil {
		t.Fatal(err)
	}
	if rec.PendingPush {
		t.Error("PendingPush = true after recovered publish")
	}
}

func TestSyncPublishRetryBound(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 1
	threads.PushErrs = []error{
		vcs.ErrPushRejected, vcs.ErrPushRejected, vcs.ErrPushRejected,
		vcs.ErrPushRejected, vcs.ErrPushRejected,
	}

	pusher, store := newSyncPusher(t, 3)
	err := pusher.Publish(context.Background(), pushPair(t, threads), "abc1234")

	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want *Failure", err)
	}
	if failure.Attempts != 3 {
		t.Errorf("Attempts = %d, want exactly the configured bound 3", failure.Attempts)
	}
	if !errors.Is(err, vcs.ErrPushRejected) {
		t.Errorf("err = %v, want wrapped ErrPushRejected", err)
	}

	// Failure leaves pending_push recorded so the next operation
	// retries automatically.
	rec, rerr := store.Read()
	if rerr != nil {
		t.Fatal(rerr)
	}
	if !rec.PendingPush {
		t.Error("PendingPush = false after exhausted retries")
	}
	if rec.Status != parity.StatusPendingPush {
		t.Errorf("Status = %s, want pending_push", rec.Status)
	}
}

func TestSyncPublishRebaseConflictStops(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 1
	threads.PushErrs = []error{vcs.ErrPushRejected, vcs.ErrPushRejected}
	threads.PullErr = vcs.ErrRebaseConflict

	pusher, _ := newSyncPusher(t, 3)
	err := pusher.Publish(context.Background(), pushPair(t, threads), "abc1234")

	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want *Failure", err)
	}
	// A conflict can only be resolved by a human; no second attempt.
	if failure.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", failure.Attempts)
	}
	if !errors.Is(err, vcs.ErrRebaseConflict) {
		t.Errorf("err = %v, want wrapped ErrRebaseConflict", err)
	}
}

func TestSyncPublishFatalErrorStops(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.PushErrs = []error{vcs.ErrNoRemote, vcs.ErrNoRemote}

	pusher, _ := newSyncPusher(t, 3)
	err := pusher.Publish(context.Background(), pushPair(t, threads), "abc1234")

	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want *Failure", err)
	}
	if failure.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", failure.Attempts)
	}
}

func TestSyncPublishNeverForces(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 1
	threads.PushErrs = []error{vcs.ErrPushRejected, vcs.ErrPushRejected}

	pusher, _ := newSyncPusher(t, 3)
	pusher.Publish(context.Background(), pushPair(t, threads), "abc1234")

	for _, op := range threads.Ops() {
		if strings.Contains(op, "force") {
			t.Errorf("destructive operation recorded: %q", op)
		}
	}
}

func TestPushPendingSkipsRecord(t *testing.T) {
	threads := vcstest.NewFakeRepo("feature-x")
	threads.AB.Ahead = 2

	pusher, store := newSyncPusher(t, 3)
	if err := pusher.PushPending(context.Background(), pushPair(t, threads)); err != nil {
		t.Fatalf("PushPending() failed: %v", err)
	}
	if threads.AB.Ahead != 0 {
		t.Errorf("Ahead = %d, want 0", threads.AB.Ahead)
	}

	// The preflight that invoked the remediation records the state
	// itself afterward.
	if _, err := os.Stat(store.Path); !os.IsNotExist(err) {
		t.Error("PushPending wrote the parity record")
	}
}
