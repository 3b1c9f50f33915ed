// Package retry centralizes the bounded retry-with-backoff policy shared
// by the push workers and the topic lock acquisition wait.
//
// Both call sites previously need the same shape: a bounded number of
// attempts, a delay between them, and a way to stop immediately on
// errors that will never succeed. Policies are stateful; always build a
// fresh backoff per operation.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded retry schedule.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the delay between retries.
	MaxInterval time.Duration

	// Multiplier grows the interval after each retry. Values <= 1 give
	// a constant interval, which is what the lock poll loop wants.
	Multiplier float64
}

// PushPolicy returns the default schedule for push attempts: a short
// growing backoff bounded by maxAttempts.
func PushPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// PollPolicy returns a constant-interval schedule used for lock
// acquisition polling, bounded by the overall context deadline rather
// than an attempt count.
func PollPolicy(interval time.Duration) Policy {
	return Policy{
		MaxAttempts:     0, // unbounded; the caller's context bounds the wait
		InitialInterval: interval,
		MaxInterval:     interval,
		Multiplier:      1.0,
	}
}

// Permanent wraps err so Do stops immediately instead of retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// newBackoff builds a fresh backoff from the policy.
func (p Policy) newBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	if p.Multiplier > 1 {
		bo.Multiplier = p.Multiplier
	} else {
		bo.Multiplier = 1.0
		bo.RandomizationFactor = 0
	}
	bo.MaxElapsedTime = 0 // bounded by attempts or ctx, not wall clock

	var b backoff.BackOff = bo
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Do runs op under the policy until it succeeds, returns a permanent
// error, exhausts its attempts, or ctx is done. The last error is
// returned on exhaustion.
func (p Policy) Do(ctx context.Context, op func() error) error {
	err := backoff.Retry(op, p.newBackoff(ctx))

	// Context cancellation can surface either directly or as the last
	// operation error; normalize to the context error for callers.
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return ctx.Err()
	}
	return err
}
