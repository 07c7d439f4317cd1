// Package retryx retries transient storage operations with bounded
// exponential backoff.
package retryx

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy bounds retries. A zero Policy runs the operation exactly once.
type Policy struct {
	MaxRetries uint64
	Base       time.Duration
}

// Permanent marks an error as not worth retrying.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the context ends
// or MaxRetries is exhausted. Context errors are never retried.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	base := p.Base
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	b := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(base))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	})
	return err
}
