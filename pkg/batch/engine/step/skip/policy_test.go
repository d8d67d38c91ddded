package skip_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestSkipPolicy(t *testing.T) {
	p := skip.NewSkipPolicy(model.FaultPolicy{SkipLimit: 2, SkippableErrors: []string{"DataConversionError"}})
	conversion := exception.NewSourceError("bad record", exception.ErrDataConversion, false, false)

	assert.Equal(t, 2, p.SkipLimit())
	assert.True(t, p.ShouldSkip(conversion, 0))
	assert.True(t, p.ShouldSkip(conversion, 1))
	assert.False(t, p.ShouldSkip(conversion, 2), "limit reached")

	assert.True(t, p.IsSkippable(exception.NewTransformError("flagged", errors.New("x"), true, false)))
	assert.False(t, p.IsSkippable(errors.New("unclassified")))
	assert.False(t, p.IsSkippable(exception.NewRepositoryError("persist", exception.ErrDataConversion)), "repository faults are never skipped")
	assert.False(t, p.IsSkippable(nil))
}

func TestSkipPolicy_ZeroLimit(t *testing.T) {
	p := skip.NewSkipPolicy(model.FaultPolicy{SkippableErrors: []string{"DataConversionError"}})
	assert.False(t, p.ShouldSkip(exception.NewSourceError("bad record", exception.ErrDataConversion, false, false), 0))
}
