package incrementer

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// UUIDRunIDGenerator issues random run ids.
type UUIDRunIDGenerator struct{}

// NewUUIDRunIDGenerator creates a new instance of UUIDRunIDGenerator.
func NewUUIDRunIDGenerator() *UUIDRunIDGenerator {
	return &UUIDRunIDGenerator{}
}

// Next implements port.RunIDGenerator.
func (UUIDRunIDGenerator) Next(context.Context, string) (string, error) {
	return uuid.NewString(), nil
}

// TimestampRunIDGenerator issues the current Unix milliseconds. Two launches within the
// same millisecond collide, which the launcher reports as a configuration error.
type TimestampRunIDGenerator struct {
	now func() time.Time
}

// NewTimestampRunIDGenerator creates a new instance of TimestampRunIDGenerator.
func NewTimestampRunIDGenerator() *TimestampRunIDGenerator {
	return &TimestampRunIDGenerator{now: time.Now}
}

// Next implements port.RunIDGenerator.
func (g *TimestampRunIDGenerator) Next(context.Context, string) (string, error) {
	return strconv.FormatInt(g.now().UnixMilli(), 10), nil
}

var (
	_ port.RunIDGenerator = (*UUIDRunIDGenerator)(nil)
	_ port.RunIDGenerator = (*TimestampRunIDGenerator)(nil)
)
