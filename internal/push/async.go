package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/retry"
)

// Async batching defaults.
const (
	DefaultBatchWindow = 5 * time.Second
	DefaultMaxBatch    = 20
)

// ErrNotRunning is returned by Enqueue and Flush before Start or after
// Stop.
var ErrNotRunning = errors.New("async pusher is not running")

// Outcome is the result of the most recent background publish. It is
// the only visibility a caller has into the async path: failures are
// logged here, never raised to the write that enqueued them, and the
// parity record is never updated.
type Outcome struct {
	// Time is when the publish finished.
	Time time.Time

	// Batch is the number of enqueued commits the publish covered.
	Batch int

	// Err is the final error, nil on success.
	Err error
}

// AsyncPusher batches enqueued commits and pushes in the background.
// A batch publishes when it reaches MaxBatch or when BatchWindow has
// elapsed since its first commit, whichever comes first.
//
// Unlike SyncPusher, this path does not write the parity record on
// completion or failure. A failed background push therefore leaves the
// record stale until the next preflight runs. Health reporting bridges
// the gap by also showing LastOutcome.
type AsyncPusher struct {
	// BatchWindow is how long a batch may wait for more commits. Zero
	// means DefaultBatchWindow.
	BatchWindow time.Duration

	// MaxBatch publishes a batch early once it holds this many
	// commits. Zero means DefaultMaxBatch.
	MaxBatch int

	// MaxRetries bounds push attempts per batch, independent of the
	// synchronous path's budget. Zero means DefaultMaxRetries.
	MaxRetries int

	// Policy overrides the push backoff schedule. Nil uses
	// retry.PushPolicy(MaxRetries).
	Policy *retry.Policy

	// Logger receives publish results. Nil gets a default stderr
	// logger.
	Logger *log.Logger

	mu       sync.Mutex
	requests chan request
	flushes  chan chan error
	cancel   context.CancelFunc
	done     chan struct{}
	last     *Outcome
}

type request struct {
	pair   *repopair.RepoPair
	commit string
}

func (p *AsyncPusher) logger() *log.Logger {
	if p.Logger == nil {
		p.Logger = log.New(os.Stderr, "[push-async] ", log.LstdFlags)
	}
	return p.Logger
}

func (p *AsyncPusher) batchWindow() time.Duration {
	if p.BatchWindow <= 0 {
		return DefaultBatchWindow
	}
	return p.BatchWindow
}

func (p *AsyncPusher) maxBatch() int {
	if p.MaxBatch <= 0 {
		return DefaultMaxBatch
	}
	return p.MaxBatch
}

func (p *AsyncPusher) policy() retry.Policy {
	if p.Policy != nil {
		return *p.Policy
	}
	if p.MaxRetries > 0 {
		return retry.PushPolicy(p.MaxRetries)
	}
	return retry.PushPolicy(DefaultMaxRetries)
}

// Start launches the background worker. Calling Start on a running
// pusher is an error.
func (p *AsyncPusher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.requests != nil {
		return errors.New("async pusher already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.requests = make(chan request, 4*p.maxBatch())
	p.flushes = make(chan chan error)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx)
	return nil
}

// Stop drains the pending batch and shuts the worker down.
func (p *AsyncPusher) Stop() {
	p.mu.Lock()
	if p.requests == nil {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	p.requests = nil
	p.flushes = nil
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()
}

// Enqueue implements Pusher semantics for the background path: it
// hands the commit off and returns immediately. The error only covers
// enqueueing; push failures are logged by the worker.
func (p *AsyncPusher) Enqueue(pair *repopair.RepoPair, commit string) error {
	p.mu.Lock()
	requests := p.requests
	p.mu.Unlock()

	if requests == nil {
		return ErrNotRunning
	}

	select {
	case requests <- request{pair: pair, commit: commit}:
		return nil
	default:
		return fmt.Errorf("async push queue is full, commit %s not enqueued", commit)
	}
}

// Publish implements Pusher by enqueueing.
func (p *AsyncPusher) Publish(ctx context.Context, pair *repopair.RepoPair, commit string) error {
	return p.Enqueue(pair, commit)
}

// Flush publishes everything enqueued so far and waits for the result.
// Callers that need a delivery guarantee from the async path use this.
func (p *AsyncPusher) Flush(ctx context.Context) error {
	p.mu.Lock()
	flushes := p.flushes
	p.mu.Unlock()

	if flushes == nil {
		return ErrNotRunning
	}

	ack := make(chan error, 1)
	select {
	case flushes <- ack:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastOutcome returns the most recent publish result, or nil if the
// worker has not published yet.
func (p *AsyncPusher) LastOutcome() *Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	o := *p.last
	return &o
}

func (p *AsyncPusher) run(ctx context.Context) {
	defer close(p.done)

	var batch []request
	var window *time.Timer
	var windowC <-chan time.Time

	stopWindow := func() {
		if window != nil {
			window.Stop()
			window = nil
			windowC = nil
		}
	}

	publish := func(ctx context.Context) error {
		stopWindow()
		if len(batch) == 0 {
			return nil
		}
		err := p.publishBatch(ctx, batch)
		batch = nil
		return err
	}

	for {
		select {
		case <-ctx.Done():
			// Final drain gets its own deadline; the worker's context
			// is already cancelled.
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			p.drain(&batch)
			publish(drainCtx)
			cancel()
			return

		case req := <-p.requests:
			batch = append(batch, req)
			if len(batch) >= p.maxBatch() {
				publish(ctx)
			} else if windowC == nil {
				window = time.NewTimer(p.batchWindow())
				windowC = window.C
			}

		case <-windowC:
			windowC = nil
			window = nil
			publish(ctx)

		case ack := <-p.flushes:
			p.drain(&batch)
			ack <- publish(ctx)
		}
	}
}

// drain moves everything sitting in the queue into the batch without
// blocking.
func (p *AsyncPusher) drain(batch *[]request) {
	for {
		select {
		case req := <-p.requests:
			*batch = append(*batch, req)
		default:
			return
		}
	}
}

// publishBatch pushes once per distinct threads clone and branch; a
// single push carries every batched commit on that branch.
func (p *AsyncPusher) publishBatch(ctx context.Context, batch []request) error {
	type target struct{ root, branch string }
	seen := make(map[target]bool)

	var firstErr error
	for _, req := range batch {
		key := target{root: req.pair.Threads.Root(), branch: req.pair.CodeBranch}
		if seen[key] {
			continue
		}
		seen[key] = true

		attempts, err := pushWithRebase(ctx, req.pair, p.policy(), p.logger())
		if err != nil {
			// Logged, not raised: the enqueuing caller has long since
			// returned.
			p.logger().Printf("background push of %q failed after %d attempt(s): %v", req.pair.CodeBranch, attempts, err)
			if firstErr == nil {
				firstErr = &Failure{Branch: req.pair.CodeBranch, Attempts: attempts, Err: err}
			}
		} else {
			p.logger().Printf("background push of %q published %d commit(s)", req.pair.CodeBranch, len(batch))
		}
	}

	p.mu.Lock()
	p.last = &Outcome{Time: time.Now(), Batch: len(batch), Err: firstErr}
	p.mu.Unlock()

	return firstErr
}

var _ Pusher = (*AsyncPusher)(nil)
