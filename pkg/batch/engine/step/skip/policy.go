// Package skip decides whether a faulty item may be dropped instead of failing the step.
package skip

import (
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// SkipPolicy classifies item failures against a skip budget.
type SkipPolicy interface {
	// ShouldSkip reports whether err may be skipped given skipCount items already skipped.
	ShouldSkip(err error, skipCount int) bool
	// IsSkippable reports whether err is of a skippable kind, ignoring the limit.
	IsSkippable(err error) bool
	SkipLimit() int
}

// NewSkipPolicy builds a SkipPolicy from p.
func NewSkipPolicy(p model.FaultPolicy) SkipPolicy {
	return &limitedSkipPolicy{limit: p.SkipLimit, kinds: p.SkippableErrors}
}

type limitedSkipPolicy struct {
	limit int
	kinds []string
}

func (p *limitedSkipPolicy) SkipLimit() int { return p.limit }

func (p *limitedSkipPolicy) IsSkippable(err error) bool {
	if err == nil || exception.IsRepositoryError(err) {
		return false
	}
	return exception.FlaggedSkippable(err) || exception.IsAnyErrorOfType(err, p.kinds)
}

func (p *limitedSkipPolicy) ShouldSkip(err error, skipCount int) bool {
	return skipCount < p.limit && p.IsSkippable(err)
}
