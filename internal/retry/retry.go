// Package retry provides a reusable bounded-backoff policy for transient
// blob-store and subprocess failures. Components own their retry behavior by
// holding a Policy instead of scattering loops through the orchestrator.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Permanent marks an error as non-retryable. Do stops immediately and
// returns the wrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Policy describes a bounded exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts uint64
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the growth of the delay.
	MaxInterval time.Duration
}

// DefaultPolicy suits blob-store transfers: a handful of attempts with
// sub-second initial delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     3 * time.Second,
	}
}

// Do runs op, retrying transient failures per the policy. Errors wrapped
// with Permanent and context cancellation stop the retries immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall time

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx)
	err := backoff.Retry(op, wrapped)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
