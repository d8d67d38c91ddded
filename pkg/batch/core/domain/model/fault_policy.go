package model

import (
	"fmt"
	"time"
)

// FaultPolicy configures how a chunk step reacts to item and chunk failures.
// It is immutable once a step is built.
type FaultPolicy struct {
	// SkippableErrors lists the error kinds (see exception.RegisterErrorType) that may be skipped.
	// Errors flagged skippable by their producer are skippable regardless.
	SkippableErrors []string
	// SkipLimit caps the number of skipped items per step execution, counted across restarts.
	SkipLimit int
	// RetryableErrors lists the error kinds that are retried on read and process.
	// Errors flagged retryable by their producer are retried regardless.
	RetryableErrors []string
	// RetryLimit is the maximum number of attempts per item, and per chunk write.
	// Values below 1 mean a single attempt.
	RetryLimit int
	// RetryBackoff is the initial wait between attempts; it doubles on every retry.
	RetryBackoff time.Duration
}

// MaxAttempts returns RetryLimit clamped to at least one attempt.
func (p FaultPolicy) MaxAttempts() int {
	if p.RetryLimit < 1 {
		return 1
	}
	return p.RetryLimit
}

// Validate rejects negative limits.
func (p FaultPolicy) Validate() error {
	if p.SkipLimit < 0 {
		return fmt.Errorf("skip limit must not be negative, got %d", p.SkipLimit)
	}
	if p.RetryLimit < 0 {
		return fmt.Errorf("retry limit must not be negative, got %d", p.RetryLimit)
	}
	if p.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must not be negative, got %s", p.RetryBackoff)
	}
	return nil
}
