// Package reader provides restartable item readers: flat files, SQL cursors and in-memory slices.
package reader

import "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"

const readCountSuffix = ".readCount"

// resumePosition returns the ordinal to resume reading from. The position committed by
// the chunk step wins over the reader's own counter.
func resumePosition(ec model.ExecutionContext, name string) int {
	if ec == nil {
		return 0
	}
	if pos, ok := ec.GetInt(model.ResumePositionKey); ok && pos > 0 {
		return pos
	}
	if pos, ok := ec.GetInt(name + readCountSuffix); ok && pos > 0 {
		return pos
	}
	return 0
}
