package processor_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/processor"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

var upper = processor.FuncProcessor[string, string](func(ctx context.Context, s string) (string, error) {
	return strings.ToUpper(s), nil
})

func TestCompositeProcessor(t *testing.T) {
	ctx := context.Background()
	trim := processor.FuncProcessor[string, string](func(ctx context.Context, s string) (string, error) {
		return strings.TrimSpace(s), nil
	})
	p := processor.NewCompositeProcessor[string](trim, upper, processor.Filter(func(s string) bool { return s != "" }))

	out, err := p.Process(ctx, "  jill ")
	require.NoError(t, err)
	assert.Equal(t, "JILL", out)

	_, err = p.Process(ctx, "   ")
	assert.ErrorIs(t, err, port.ErrItemFiltered)

	out, err = processor.NewCompositeProcessor[string]().Process(ctx, "as is")
	require.NoError(t, err)
	assert.Equal(t, "as is", out)
}

func TestCompositeProcessor_StopsOnError(t *testing.T) {
	calls := 0
	failing := processor.FuncProcessor[string, string](func(ctx context.Context, s string) (string, error) {
		return "", errors.New("bad record")
	})
	counting := processor.FuncProcessor[string, string](func(ctx context.Context, s string) (string, error) {
		calls++
		return s, nil
	})
	_, err := processor.NewCompositeProcessor[string](failing, counting).Process(context.Background(), "x")
	assert.EqualError(t, err, "bad record")
	assert.Zero(t, calls)
}

func TestChain(t *testing.T) {
	parse := processor.FuncProcessor[string, int](func(ctx context.Context, s string) (int, error) {
		return strconv.Atoi(s)
	})
	double := processor.FuncProcessor[int, string](func(ctx context.Context, n int) (string, error) {
		return strconv.Itoa(n * 2), nil
	})
	p := processor.Chain[string, int, string](parse, double)

	out, err := p.Process(context.Background(), "21")
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	_, err = p.Process(context.Background(), "abc")
	assert.Error(t, err)
}

func TestPassThroughProcessor(t *testing.T) {
	out, err := processor.NewPassThroughProcessor[int]().Process(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, out)
}
