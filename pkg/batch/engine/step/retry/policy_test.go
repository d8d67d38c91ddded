package retry_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestItemRetryPolicy_Classification(t *testing.T) {
	p := retry.NewItemRetryPolicy(model.FaultPolicy{RetryLimit: 3, RetryableErrors: []string{"sql.ErrConnDone", "DataConversionError"}})

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"configured kind", exception.NewSourceError("read", sql.ErrConnDone, false, false), 1, true},
		{"flagged retryable", exception.NewTransformError("process", errors.New("busy"), false, true), 2, true},
		{"attempts exhausted", exception.NewTransformError("process", errors.New("busy"), false, true), 3, false},
		{"unclassified", errors.New("bad data"), 1, false},
		{"cancellation", exception.NewTransformError("process", context.Canceled, false, true), 1, false},
		{"malformed record", exception.NewSourceError("read", exception.ErrDataConversion, false, true), 1, false},
		{"repository fault", exception.NewRepositoryError("persist", errors.New("locked")), 1, false},
		{"nil", nil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestChunkRetryPolicy(t *testing.T) {
	p := retry.NewChunkRetryPolicy(model.FaultPolicy{RetryLimit: 2, RetryBackoff: 10 * time.Millisecond})
	assert.Equal(t, 2, p.MaxAttempts())
	assert.True(t, p.ShouldRetry(errors.New("deadlock"), 1))
	assert.False(t, p.ShouldRetry(errors.New("deadlock"), 2))
	assert.Equal(t, 10*time.Millisecond, p.BackoffInterval(1))
	assert.Equal(t, 40*time.Millisecond, p.BackoffInterval(3))

	single := retry.NewChunkRetryPolicy(model.FaultPolicy{})
	assert.Equal(t, 1, single.MaxAttempts())
	assert.False(t, single.ShouldRetry(errors.New("deadlock"), 1))
}

func TestDo(t *testing.T) {
	p := retry.NewChunkRetryPolicy(model.FaultPolicy{RetryLimit: 3})
	var retried []int
	calls := 0
	err := retry.Do(context.Background(), p, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error) { retried = append(retried, attempt) })

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)

	permanent := errors.New("permanent")
	calls = 0
	err = retry.Do(context.Background(), p, func(int) error { calls++; return permanent }, nil)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsWhenContextIsDone(t *testing.T) {
	p := retry.NewChunkRetryPolicy(model.FaultPolicy{RetryLimit: 5, RetryBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	failure := errors.New("transient")
	err := retry.Do(ctx, p, func(int) error { calls++; return failure }, nil)
	assert.ErrorIs(t, err, failure)
	assert.ErrorIs(t, err, context.Canceled, "the cancellation is reported with the failure")
	assert.Equal(t, 1, calls)
}
