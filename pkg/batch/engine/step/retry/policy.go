// Package retry decides whether a failed read, process or chunk write is attempted again.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// RetryPolicy classifies failures and bounds the number of attempts.
type RetryPolicy interface {
	// ShouldRetry reports whether another attempt follows a failure on attempt (1-based).
	ShouldRetry(err error, attempt int) bool
	// BackoffInterval is the wait before the attempt following attempt.
	BackoffInterval(attempt int) time.Duration
	// MaxAttempts is the total number of attempts allowed.
	MaxAttempts() int
}

// NewItemRetryPolicy retries reads and transforms whose error is classified retryable:
// flagged retryable by its producer or matching one of the configured kinds.
func NewItemRetryPolicy(p model.FaultPolicy) RetryPolicy {
	return &policy{fault: p, classify: func(err error) bool {
		return exception.FlaggedRetryable(err) || exception.IsAnyErrorOfType(err, p.RetryableErrors)
	}}
}

// NewChunkRetryPolicy retries a failed chunk write for any sink error up to the attempt cap.
func NewChunkRetryPolicy(p model.FaultPolicy) RetryPolicy {
	return &policy{fault: p, classify: func(error) bool { return true }}
}

type policy struct {
	fault    model.FaultPolicy
	classify func(error) bool
}

func (p *policy) MaxAttempts() int { return p.fault.MaxAttempts() }

func (p *policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts() || neverRetry(err) {
		return false
	}
	return p.classify(err)
}

func (p *policy) BackoffInterval(attempt int) time.Duration {
	d := p.fault.RetryBackoff
	for i := 1; i < attempt && d > 0 && d < time.Minute; i++ {
		d *= 2
	}
	return d
}

// neverRetry covers cancellation, bookkeeping faults and malformed records. A reader has
// already consumed a malformed record, so a retry would read the next one in its place.
func neverRetry(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, exception.ErrDataConversion) ||
		exception.IsRepositoryError(err)
}

// Wait sleeps for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds or the policy gives up. onRetry, if set, runs before each retry.
func Do(ctx context.Context, p RetryPolicy, fn func(attempt int) error, onRetry func(attempt int, err error)) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || !p.ShouldRetry(err, attempt) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if werr := Wait(ctx, p.BackoffInterval(attempt)); werr != nil {
			return errors.Join(werr, err)
		}
	}
}
