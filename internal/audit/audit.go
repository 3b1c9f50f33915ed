// Package audit implements the doctor health checks.
//
// Checks report; they never mutate. The lone fix surface is breaking
// stale topic locks, and even that runs only when explicitly requested.
package audit

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/watercoolerhq/watercooler/internal/parity"
	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/topiclock"
)

// Status constants for checks.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Check is one health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

// Result is a full doctor run.
type Result struct {
	Path      string    `json:"path"`
	Checks    []Check   `json:"checks"`
	OverallOK bool      `json:"overall_ok"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultRecordMaxAge is how stale the parity record may be before the
// doctor flags it.
const DefaultRecordMaxAge = 24 * time.Hour

// Doctor runs the health checks for one repo pair.
type Doctor struct {
	Pair  *repopair.RepoPair
	Locks *topiclock.Manager
	Store *parity.Store

	// Checker evaluates live parity. Nil skips the live check.
	Checker *parity.Checker

	// RecordMaxAge flags an older parity record. Zero means
	// DefaultRecordMaxAge.
	RecordMaxAge time.Duration
}

func (d *Doctor) recordMaxAge() time.Duration {
	if d.RecordMaxAge <= 0 {
		return DefaultRecordMaxAge
	}
	return d.RecordMaxAge
}

// Run executes every check and aggregates the result.
func (d *Doctor) Run(ctx context.Context) Result {
	res := Result{
		Path:      d.Pair.Layout.ThreadsRoot,
		Timestamp: time.Now().UTC(),
	}

	res.Checks = append(res.Checks, d.checkStaleLocks())
	res.Checks = append(res.Checks, d.checkParityRecord())
	res.Checks = append(res.Checks, d.checkRepoState(ctx))
	res.Checks = append(res.Checks, d.checkOrphanBranches(ctx))
	if d.Checker != nil {
		res.Checks = append(res.Checks, d.checkLiveParity(ctx))
	}

	res.OverallOK = true
	for _, c := range res.Checks {
		if c.Status == StatusError {
			res.OverallOK = false
		}
	}
	return res
}

// BreakStaleLocks is the doctor's only fix: remove locks past their
// TTL. Returns how many were broken.
func (d *Doctor) BreakStaleLocks() (int, error) {
	return d.Locks.BreakStale()
}

func (d *Doctor) checkStaleLocks() Check {
	c := Check{Name: "topic locks"}

	locks, err := d.Locks.List()
	if err != nil {
		c.Status = StatusError
		c.Message = fmt.Sprintf("cannot read locks directory: %v", err)
		return c
	}

	var stale []string
	for _, l := range locks {
		if l.Stale {
			stale = append(stale, fmt.Sprintf("%s (pid %d, held %s)", l.Topic, l.PID, l.Age.Round(time.Second)))
		}
	}
	sort.Strings(stale)

	switch {
	case len(stale) > 0:
		c.Status = StatusWarning
		c.Message = fmt.Sprintf("%d stale lock(s): %s", len(stale), strings.Join(stale, ", "))
		c.Fix = "run 'wcl doctor --fix' to break stale locks"
	case len(locks) > 0:
		c.Status = StatusOK
		c.Message = fmt.Sprintf("%d lock(s) held, none stale", len(locks))
	default:
		c.Status = StatusOK
		c.Message = "no locks held"
	}
	return c
}

func (d *Doctor) checkParityRecord() Check {
	c := Check{Name: "parity record"}

	rec, err := d.Store.Read()
	switch {
	case os.IsNotExist(err):
		c.Status = StatusWarning
		c.Message = "no parity record yet; nothing has run a preflight"
		c.Fix = "run 'wcl sync' to evaluate and record parity"
		return c
	case err != nil:
		c.Status = StatusError
		c.Message = fmt.Sprintf("parity record unreadable: %v", err)
		c.Fix = "run 'wcl sync' to rewrite the record"
		return c
	}

	age := time.Since(rec.LastCheckAt)
	switch {
	case age > d.recordMaxAge():
		c.Status = StatusWarning
		c.Message = fmt.Sprintf("parity record is %s old (status %s)", age.Round(time.Minute), rec.Status)
		c.Fix = "run 'wcl sync' to refresh"
	case rec.Status.Blocking():
		c.Status = StatusWarning
		c.Message = fmt.Sprintf("last evaluation was %s", rec.Status)
		c.Fix = "run 'wcl status' for recovery guidance"
	case rec.PendingPush:
		c.Status = StatusWarning
		c.Message = "threads commits are pending push"
		c.Fix = "run 'wcl flush' to publish now"
	default:
		c.Status = StatusOK
		c.Message = fmt.Sprintf("status %s, checked %s ago", rec.Status, age.Round(time.Second))
	}
	return c
}

func (d *Doctor) checkRepoState(ctx context.Context) Check {
	c := Check{Name: "repo state"}

	codeStatus, err := d.Pair.Code.Status(ctx)
	if err != nil {
		c.Status = StatusError
		c.Message = fmt.Sprintf("cannot inspect code repo: %v", err)
		return c
	}
	threadsStatus, err := d.Pair.Threads.Status(ctx)
	if err != nil {
		c.Status = StatusError
		c.Message = fmt.Sprintf("cannot inspect threads repo: %v", err)
		return c
	}

	var problems []string
	if codeStatus.RebaseInProgress {
		problems = append(problems, "code repo has a rebase in progress")
	}
	if codeStatus.DetachedHead {
		problems = append(problems, "code repo is on a detached HEAD")
	}
	if threadsStatus.RebaseInProgress {
		problems = append(problems, "threads repo has a rebase in progress")
	}
	if threadsStatus.DetachedHead {
		problems = append(problems, "threads repo is on a detached HEAD")
	}

	if len(problems) > 0 {
		c.Status = StatusError
		c.Message = strings.Join(problems, "; ")
		c.Fix = "finish or abort the operation in the repo, then re-run 'wcl doctor'"
		return c
	}

	c.Status = StatusOK
	c.Message = fmt.Sprintf("code on %q, threads on %q", codeStatus.Branch, threadsStatus.Branch)
	return c
}

func (d *Doctor) checkOrphanBranches(ctx context.Context) Check {
	c := Check{Name: "orphan branches"}

	branches, err := d.Pair.Threads.ListBranches(ctx)
	if err != nil {
		c.Status = StatusError
		c.Message = fmt.Sprintf("cannot list threads branches: %v", err)
		return c
	}

	orphans, err := parity.FindOrphanBranches(ctx, d.Pair, branches)
	if err != nil {
		c.Status = StatusError
		c.Message = fmt.Sprintf("cannot check for orphans: %v", err)
		return c
	}
	sort.Strings(orphans)

	if len(orphans) > 0 {
		c.Status = StatusWarning
		c.Message = fmt.Sprintf("%d threads branch(es) with no matching code branch: %s",
			len(orphans), strings.Join(orphans, ", "))
		c.Fix = "keep them, or delete manually after review; watercooler never deletes branches"
		return c
	}

	c.Status = StatusOK
	c.Message = "every threads branch has a matching code branch"
	return c
}

func (d *Doctor) checkLiveParity(ctx context.Context) Check {
	c := Check{Name: "live parity"}

	st := d.Checker.Evaluate(ctx, d.Pair)
	switch {
	case st.Status == parity.StatusClean:
		c.Status = StatusOK
		c.Message = "clean"
	case !st.Status.Blocking():
		c.Status = StatusWarning
		c.Message = fmt.Sprintf("%s; auto-remediation will resolve this on the next write", st.Status)
	default:
		c.Status = StatusError
		c.Message = string(st.Status)
		if g := st.Guidance(); len(g) > 0 {
			c.Fix = g[0]
		}
	}
	return c
}
