package push

import (
	"context"
	"log"
	"os"

	"github.com/watercoolerhq/watercooler/internal/parity"
	"github.com/watercoolerhq/watercooler/internal/repopair"
	"github.com/watercoolerhq/watercooler/internal/retry"
)

// SyncPusher publishes inline, in the caller's call chain. After every
// attempt, success or failure, it updates the persisted parity record;
// a caller that gets an error back can rely on pending_push being
// recorded so the next operation retries automatically.
type SyncPusher struct {
	// Store receives the pending-push outcome. Nil skips persistence.
	Store *parity.Store

	// MaxRetries bounds push attempts. Zero means DefaultMaxRetries.
	MaxRetries int

	// Policy overrides the push backoff schedule. Nil uses
	// retry.PushPolicy(MaxRetries).
	Policy *retry.Policy

	// Logger receives push diagnostics. Nil gets a default stderr
	// logger.
	Logger *log.Logger
}

func (p *SyncPusher) logger() *log.Logger {
	if p.Logger == nil {
		p.Logger = log.New(os.Stderr, "[push] ", log.LstdFlags)
	}
	return p.Logger
}

func (p *SyncPusher) maxRetries() int {
	if p.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return p.MaxRetries
}

func (p *SyncPusher) policy() retry.Policy {
	if p.Policy != nil {
		return *p.Policy
	}
	return retry.PushPolicy(p.maxRetries())
}

// Publish implements Pusher.
func (p *SyncPusher) Publish(ctx context.Context, pair *repopair.RepoPair, commit string) error {
	attempts, err := pushWithRebase(ctx, pair, p.policy(), p.logger())

	// Record reality before reporting it: pending_push stays set on
	// failure so a later write finds PendingPush and retries.
	if p.Store != nil {
		if werr := p.Store.WritePendingPush(err != nil, err); werr != nil {
			p.logger().Printf("recording push outcome: %v", werr)
		}
	}

	if err != nil {
		return &Failure{Branch: pair.CodeBranch, Attempts: attempts, Err: err}
	}
	return nil
}

// PushPending implements parity.PendingPusher for preflight
// remediation. The preflight records the re-evaluated state itself, so
// no record is written here.
func (p *SyncPusher) PushPending(ctx context.Context, pair *repopair.RepoPair) error {
	attempts, err := pushWithRebase(ctx, pair, p.policy(), p.logger())
	if err != nil {
		return &Failure{Branch: pair.CodeBranch, Attempts: attempts, Err: err}
	}
	return nil
}

var _ Pusher = (*SyncPusher)(nil)
var _ parity.PendingPusher = (*SyncPusher)(nil)
