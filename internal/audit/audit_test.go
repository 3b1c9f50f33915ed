package audit

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/watercoolerhq/watercooler/internal/parity"
	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/topiclock"
	"github.com/watercoolerhq/watercooler/internal/vcs/vcstest"
	"github.com/watercoolerhq/watercooler/internal/watercooler"
)

func setupDoctor(t *testing.T) (*Doctor, *vcstest.FakeRepo, *vcstest.FakeRepo) {
	t.Helper()

	layout := watercooler.NewLayout(t.TempDir(), "topics")
	if err := layout.EnsureStateDirs(); err != nil {
		t.Fatal(err)
	}

	code := vcstest.NewFakeRepo("feature-x")
	threads := vcstest.NewFakeRepo("feature-x")
	pair := &repopair.RepoPair{
		Code:       code,
		Threads:    threads,
		CodeBranch: "feature-x",
		CodeSlug:   "acme/widgets",
		Layout:     layout,
	}

	quiet := log.New(io.Discard, "", 0)
	return &Doctor{
		Pair:    pair,
		Locks:   &topiclock.Manager{Dir: layout.LocksDir, TTL: 50 * time.Millisecond, Logger: quiet},
		Store:   &parity.Store{Path: layout.ParityFile},
		Checker: &parity.Checker{Logger: quiet},
	}, code, threads
}

func findCheck(t *testing.T, res Result, name string) Check {
	t.Helper()
	for _, c := range res.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no check named %q in %+v", name, res.Checks)
	return Check{}
}

func TestDoctorHealthy(t *testing.T) {
	d, _, _ := setupDoctor(t)

	if err := d.Store.Write(parity.State{Status: parity.StatusClean, CodeBranch: "feature-x", ThreadsBranch: "feature-x"}); err != nil {
		t.Fatal(err)
	}

	res := d.Run(context.Background())
	if !res.OverallOK {
		t.Errorf("OverallOK = false for healthy pair: %+v", res.Checks)
	}
	for _, name := range []string{"topic locks", "parity record", "repo state", "orphan branches", "live parity"} {
		if c := findCheck(t, res, name); c.Status != StatusOK {
			t.Errorf("%s = %s (%s), want ok", name, c.Status, c.Message)
		}
	}
}

func TestDoctorStaleLocks(t *testing.T) {
	d, _, _ := setupDoctor(t)
	ctx := context.Background()

	if _, err := d.Locks.Acquire(ctx, "abandoned"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)

	res := d.Run(ctx)
	c := findCheck(t, res, "topic locks")
	if c.Status != StatusWarning {
		t.Errorf("Status = %s, want warning", c.Status)
	}
	if !strings.Contains(c.Message, "abandoned") {
		t.Errorf("Message = %q, want the stale topic named", c.Message)
	}

	// Warnings do not fail the run; stale locks self-heal on acquire.
	if !res.OverallOK {
		t.Error("OverallOK = false on warning-only run")
	}

	n, err := d.BreakStaleLocks()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("BreakStaleLocks() = %d, want 1", n)
	}

	res = d.Run(ctx)
	if c := findCheck(t, res, "topic locks"); c.Status != StatusOK {
		t.Errorf("after fix: %s (%s)", c.Status, c.Message)
	}
}

func TestDoctorMissingParityRecord(t *testing.T) {
	d, _, _ := setupDoctor(t)

	res := d.Run(context.Background())
	c := findCheck(t, res, "parity record")
	if c.Status != StatusWarning {
		t.Errorf("Status = %s, want warning", c.Status)
	}
	if c.Fix == "" {
		t.Error("missing-record check has no fix hint")
	}
}

func TestDoctorRepoStateErrors(t *testing.T) {
	d, code, threads := setupDoctor(t)
	code.Rebasing = true
	threads.Branch = ""

	res := d.Run(context.Background())
	c := findCheck(t, res, "repo state")
	if c.Status != StatusError {
		t.Errorf("Status = %s, want error", c.Status)
	}
	if !strings.Contains(c.Message, "rebase in progress") || !strings.Contains(c.Message, "detached HEAD") {
		t.Errorf("Message = %q, want both problems named", c.Message)
	}
	if res.OverallOK {
		t.Error("OverallOK = true with repo state errors")
	}
}

func TestDoctorOrphanBranches(t *testing.T) {
	d, _, threads := setupDoctor(t)
	threads.Branches["feature-gone"] = true

	res := d.Run(context.Background())
	c := findCheck(t, res, "orphan branches")
	if c.Status != StatusWarning {
		t.Errorf("Status = %s, want warning", c.Status)
	}
	if !strings.Contains(c.Message, "feature-gone") {
		t.Errorf("Message = %q, want orphan named", c.Message)
	}
	// Reported, never deleted.
	if !threads.Branches["feature-gone"] {
		t.Error("doctor deleted the orphan branch")
	}
}

func TestDoctorLiveParityBlocking(t *testing.T) {
	d, _, threads := setupDoctor(t)
	threads.AB.Behind = 2

	res := d.Run(context.Background())
	c := findCheck(t, res, "live parity")
	if c.Status != StatusError {
		t.Errorf("Status = %s, want error", c.Status)
	}
	if c.Fix == "" {
		t.Error("blocking parity check has no recovery guidance")
	}
}
