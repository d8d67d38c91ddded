package item_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/chunkbatch/pkg/batch/test"
)

// --- Fakes ---

// recordingWriter keeps every successfully written chunk. failOn, when set, decides per call
// whether the write fails; failed chunks are not recorded.
type recordingWriter[T any] struct {
	batches  [][]T
	calls    int
	failOn   func(call int, items []T) error
	closeErr error
	closed   bool
}

func (w *recordingWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error { return nil }

func (w *recordingWriter[T]) Write(ctx context.Context, items []T) error {
	w.calls++
	if w.failOn != nil {
		if err := w.failOn(w.calls, items); err != nil {
			return err
		}
	}
	w.batches = append(w.batches, append([]T(nil), items...))
	return nil
}

func (w *recordingWriter[T]) Close(ctx context.Context) error {
	w.closed = true
	return w.closeErr
}

func (w *recordingWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}

func (w *recordingWriter[T]) written() []T {
	var all []T
	for _, b := range w.batches {
		all = append(all, b...)
	}
	return all
}

func (w *recordingWriter[T]) sizes() []int {
	out := make([]int, 0, len(w.batches))
	for _, b := range w.batches {
		out = append(out, len(b))
	}
	return out
}

type upperProcessor struct {
	failOn map[string]error
}

func (p upperProcessor) Process(ctx context.Context, in string) (string, error) {
	if err, ok := p.failOn[in]; ok {
		return "", err
	}
	if strings.HasPrefix(in, "#") {
		return "", port.ErrItemFiltered
	}
	return strings.ToUpper(in), nil
}

// progressFailingRepository fails UpdateStepProgress after the given number of successful calls.
type progressFailingRepository struct {
	*inmemory.InMemoryJobRepository
	okCalls int
}

func (r *progressFailingRepository) UpdateStepProgress(ctx context.Context, se *model.StepExecution) error {
	if r.okCalls == 0 {
		return errors.New("database is gone")
	}
	r.okCalls--
	return r.InMemoryJobRepository.UpdateStepProgress(ctx, se)
}

// stopAfterFirstChunk requests a stop once the first chunk is committed.
type stopAfterFirstChunk struct {
	signal *port.StopSignal
}

func (l stopAfterFirstChunk) BeforeChunk(ctx context.Context, se *model.StepExecution) {}
func (l stopAfterFirstChunk) AfterChunk(ctx context.Context, se *model.StepExecution) {
	l.signal.Request()
}
func (l stopAfterFirstChunk) AfterChunkError(ctx context.Context, se *model.StepExecution, err error) {
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("name%02d", i+1)
	}
	return out
}

func newStep(t *testing.T, repo *inmemory.InMemoryJobRepository, items []string, w *recordingWriter[string], chunkSize int, fault model.FaultPolicy, deps ...func(*item.Dependencies)) *item.ChunkStep[string, string] {
	t.Helper()
	d := item.Dependencies{JobRepository: repo}
	for _, f := range deps {
		f(&d)
	}
	step, err := item.NewChunkStep[string, string](item.Config[string, string]{
		Name:      "uppercase",
		Reader:    reader.NewSliceReader("names", items),
		Processor: upperProcessor{},
		Writer:    w,
		ChunkSize: chunkSize,
		Fault:     fault,
	}, d)
	require.NoError(t, err)
	return step
}

func assertAccounted(t *testing.T, se *model.StepExecution) {
	t.Helper()
	assert.Equal(t, se.ReadCount, se.Accounted(), "write + skip + filter must equal read: %s", se)
	assert.LessOrEqual(t, se.WriteCount, se.ReadCount)
}

// --- Tests ---

func TestChunkStep_SingleChunk(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	w := &recordingWriter[string]{}

	err := newStep(t, repo, names(5), w, 10, model.FaultPolicy{}).Execute(context.Background(), se)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, []int{5}, w.sizes())
	assert.Equal(t, "NAME01", w.written()[0])
	assert.Equal(t, 5, se.ReadCount)
	assert.Equal(t, 5, se.WriteCount)
	assert.Equal(t, 0, se.SkipCount())
	assert.Equal(t, 5, se.CommittedPosition)
	assert.True(t, w.closed)
	assertAccounted(t, se)

	stored, err := repo.FindStepExecutionByID(context.Background(), se.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Equal(t, 5, stored.WriteCount)
}

func TestChunkStep_ChunkSizing(t *testing.T) {
	tests := []struct {
		name      string
		records   int
		chunkSize int
		sizes     []int
	}{
		{"12 records in chunks of 10", 12, 10, []int{10, 2}},
		{"exact multiple", 20, 10, []int{10, 10}},
		{"chunk size 1", 3, 1, []int{1, 1, 1}},
		{"empty source", 0, 10, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := inmemory.NewInMemoryJobRepository()
			_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
			w := &recordingWriter[string]{}

			err := newStep(t, repo, names(tt.records), w, tt.chunkSize, model.FaultPolicy{}).Execute(context.Background(), se)

			require.NoError(t, err)
			assert.Equal(t, model.BatchStatusCompleted, se.Status)
			assert.Equal(t, tt.sizes, w.sizes())
			assert.Equal(t, tt.records, se.ReadCount)
			assert.Equal(t, tt.records, se.WriteCount)
			assert.Equal(t, len(tt.sizes), se.CommitCount)
			assertAccounted(t, se)
		})
	}
}

func TestChunkStep_SkipsTransformFailure(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	w := &recordingWriter[string]{}
	items := names(10)
	step, err := item.NewChunkStep[string, string](item.Config[string, string]{
		Name:   "uppercase",
		Reader: reader.NewSliceReader("names", items),
		Processor: upperProcessor{failOn: map[string]error{
			items[6]: exception.NewTransformError("bad record", exception.ErrDataConversion, false, false),
		}},
		Writer:    w,
		ChunkSize: 10,
		Fault:     model.FaultPolicy{SkippableErrors: []string{"DataConversionError"}, SkipLimit: 1},
	}, item.Dependencies{JobRepository: repo})
	require.NoError(t, err)

	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 10, se.ReadCount)
	assert.Equal(t, 9, se.WriteCount)
	assert.Equal(t, 1, se.SkipCount())
	assert.Equal(t, 1, se.ProcessSkipCount)
	assert.NotContains(t, w.written(), "NAME07")
	assertAccounted(t, se)
}

func TestChunkStep_SkipLimitExceeded(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	w := &recordingWriter[string]{}
	items := names(10)
	bad := exception.NewTransformError("bad record", nil, true, false)
	step, err := item.NewChunkStep[string, string](item.Config[string, string]{
		Name:      "uppercase",
		Reader:    reader.NewSliceReader("names", items),
		Processor: upperProcessor{failOn: map[string]error{items[2]: bad, items[5]: bad}},
		Writer:    w,
		ChunkSize: 10,
		Fault:     model.FaultPolicy{SkipLimit: 1},
	}, item.Dependencies{JobRepository: repo})
	require.NoError(t, err)

	err = step.Execute(context.Background(), se)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "skip limit 1 exceeded")
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Empty(t, w.batches, "no partial commit of the failing chunk")
	assert.Equal(t, 0, se.ReadCount)
	assert.Equal(t, 0, se.CommittedPosition)
}

func TestChunkStep_FilteredItems(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	w := &recordingWriter[string]{}

	err := newStep(t, repo, []string{"#a", "b", "#c", "#d"}, w, 2, model.FaultPolicy{}).Execute(context.Background(), se)

	require.NoError(t, err)
	assert.Equal(t, 4, se.ReadCount)
	assert.Equal(t, 1, se.WriteCount)
	assert.Equal(t, 3, se.FilterCount)
	assert.Equal(t, 0, se.SkipCount())
	assert.Equal(t, []int{1}, w.sizes(), "a chunk with nothing left to write does not call the writer")
	assert.Equal(t, 2, se.CommitCount)
	assert.Equal(t, 4, se.CommittedPosition)
	assertAccounted(t, se)
}

func TestChunkStep_SinkFailureAndRestart(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	je, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	require.NoError(t, je.MarkAsStarted())
	items := names(12)

	failing := &recordingWriter[string]{failOn: func(call int, _ []string) error {
		if call == 2 {
			return errors.New("disk full")
		}
		return nil
	}}
	err := newStep(t, repo, items, failing, 10, model.FaultPolicy{}).Execute(ctx, se)

	require.Error(t, err)
	assert.Equal(t, exception.ModuleWriter, exception.ModuleOf(err))
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, []int{10}, failing.sizes(), "first chunk stays written, second is absent")
	assert.Equal(t, 10, se.ReadCount)
	assert.Equal(t, 10, se.WriteCount)
	assert.Equal(t, 10, se.CommittedPosition)
	assert.Equal(t, 1, se.RollbackCount)

	// Restart from the persisted record.
	require.NoError(t, repo.MarkTerminal(ctx, je, model.BatchStatusFailed, se.ExitDescription))
	previous, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	next := model.NewRestartExecution(previous)
	require.NoError(t, repo.SaveJobExecution(ctx, next))
	resumed, ok := next.StepExecution("uppercase")
	require.True(t, ok)
	assert.Equal(t, model.BatchStatusStarting, resumed.Status)

	w := &recordingWriter[string]{}
	require.NoError(t, newStep(t, repo, items, w, 10, model.FaultPolicy{}).Execute(ctx, resumed))

	assert.Equal(t, model.BatchStatusCompleted, resumed.Status)
	assert.Equal(t, [][]string{{"NAME11", "NAME12"}}, w.batches, "restart resumes at chunk 2 only")
	assert.Equal(t, 12, resumed.ReadCount, "counts are cumulative across attempts")
	assert.Equal(t, 12, resumed.WriteCount)
	assert.Equal(t, 12, resumed.CommittedPosition)
	assertAccounted(t, resumed)
}

func TestChunkStep_RetriesChunkWrite(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")

	mockTx := new(testutil.MockTx)
	txm := new(testutil.MockTxManager)
	txm.On("Begin", mock.Anything, mock.Anything).Return(mockTx, nil)
	txm.On("Commit", mockTx).Return(nil)
	txm.On("Rollback", mockTx).Return(nil)

	w := &recordingWriter[string]{failOn: func(call int, _ []string) error {
		if call == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	}}
	withTx := func(d *item.Dependencies) { d.TxManager = txm }

	step := newStep(t, repo, names(3), w, 10, model.FaultPolicy{RetryLimit: 3}, withTx)
	require.NoError(t, step.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 2, w.calls)
	assert.Equal(t, []int{3}, w.sizes())
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 1, se.RetryCount)
	txm.AssertNumberOfCalls(t, "Begin", 2)
	txm.AssertNumberOfCalls(t, "Rollback", 1)
	txm.AssertNumberOfCalls(t, "Commit", 1)
}

func TestChunkStep_WriterSeesTransaction(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	mockTx := new(testutil.MockTx)
	txm := new(testutil.MockTxManager)
	txm.On("Begin", mock.Anything, mock.Anything).Return(mockTx, nil)
	txm.On("Commit", mockTx).Return(nil)

	var got tx.Tx
	w := &txCapturingWriter{recordingWriter: &recordingWriter[string]{}, got: &got}
	step, err := item.NewChunkStep[string, string](item.Config[string, string]{
		Name:      "uppercase",
		Reader:    reader.NewSliceReader("names", names(2)),
		Processor: upperProcessor{},
		Writer:    w,
		ChunkSize: 5,
	}, item.Dependencies{JobRepository: repo, TxManager: txm})
	require.NoError(t, err)

	require.NoError(t, step.Execute(context.Background(), se))
	assert.Same(t, mockTx, got)
}

type txCapturingWriter struct {
	*recordingWriter[string]
	got *tx.Tx
}

func (w *txCapturingWriter) Write(ctx context.Context, items []string) error {
	if t, ok := tx.TxFromContext(ctx); ok {
		*w.got = t
	}
	return w.recordingWriter.Write(ctx, items)
}

func TestChunkStep_ProgressPersistenceFailure(t *testing.T) {
	repo := &progressFailingRepository{InMemoryJobRepository: inmemory.NewInMemoryJobRepository(), okCalls: 1}
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	w := &recordingWriter[string]{}
	step, err := item.NewChunkStep[string, string](item.Config[string, string]{
		Name:      "uppercase",
		Reader:    reader.NewSliceReader("names", names(4)),
		Processor: upperProcessor{},
		Writer:    w,
		ChunkSize: 2,
	}, item.Dependencies{JobRepository: repo})
	require.NoError(t, err)

	err = step.Execute(context.Background(), se)

	require.Error(t, err)
	assert.True(t, exception.IsRepositoryError(err))
	assert.Contains(t, se.ExitDescription, "data written, progress unknown")
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, []int{2, 2}, w.sizes(), "the second chunk was committed by the sink before the failure")
	assert.Equal(t, 2, w.calls, "no chunk is attempted after the failure")
}

func TestChunkStep_StopBetweenChunks(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	w := &recordingWriter[string]{}
	signal := &port.StopSignal{}
	step := newStep(t, repo, names(25), w, 10, model.FaultPolicy{}, func(d *item.Dependencies) {
		d.ChunkListeners = []port.ChunkListener{stopAfterFirstChunk{signal: signal}}
	})

	err := step.Execute(port.WithStopSignal(context.Background(), signal), se)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Equal(t, []int{10}, w.sizes())
	assert.Equal(t, 10, se.CommittedPosition)
}

func TestChunkStep_CancelledContext(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	ctx, cancel := context.WithCancel(context.Background())
	w := &recordingWriter[string]{failOn: func(call int, _ []string) error {
		cancel()
		return context.Canceled
	}}

	err := newStep(t, repo, names(5), w, 10, model.FaultPolicy{RetryLimit: 3}).Execute(ctx, se)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Empty(t, w.batches)
	assert.Equal(t, 1, w.calls, "cancellation is never retried")

	stored, err := repo.FindStepExecutionByID(context.Background(), se.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, stored.Status)
}

func TestChunkStep_CancelledDuringRetryBackoff(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &recordingWriter[string]{failOn: func(int, []string) error { return errors.New("deadlock") }}
	time.AfterFunc(50*time.Millisecond, cancel)

	started := time.Now()
	err := newStep(t, repo, names(5), w, 10, model.FaultPolicy{RetryLimit: 3, RetryBackoff: time.Second}).Execute(ctx, se)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Equal(t, 1, w.calls, "no retry after the context is done")
	assert.Less(t, time.Since(started), time.Second, "the backoff is cut short")
	assert.Equal(t, 0, se.CommittedPosition)
}

func TestChunkStep_WriterCloseFailure(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	w := &recordingWriter[string]{closeErr: errors.New("upload failed")}

	err := newStep(t, repo, names(3), w, 10, model.FaultPolicy{}).Execute(context.Background(), se)

	require.Error(t, err)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Contains(t, se.ExitDescription, "upload failed")
}

type flakyReader struct {
	*reader.SliceReader[string]
	failures int
}

func (r *flakyReader) Read(ctx context.Context) (string, error) {
	if r.failures > 0 {
		r.failures--
		return "", exception.NewSourceError("connection reset", nil, false, true)
	}
	return r.SliceReader.Read(ctx)
}

func TestChunkStep_RetriesRetryableRead(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	w := &recordingWriter[string]{}
	step, err := item.NewChunkStep[string, string](item.Config[string, string]{
		Name:      "uppercase",
		Reader:    &flakyReader{SliceReader: reader.NewSliceReader("names", names(3)), failures: 2},
		Processor: upperProcessor{},
		Writer:    w,
		ChunkSize: 10,
		Fault:     model.FaultPolicy{RetryLimit: 3},
	}, item.Dependencies{JobRepository: repo})
	require.NoError(t, err)

	require.NoError(t, step.Execute(context.Background(), se))
	assert.Equal(t, 3, se.WriteCount)
	assert.Equal(t, 2, se.RetryCount)
}

// malformedReader reports "bad" records as conversion errors after consuming them.
type malformedReader struct {
	*reader.SliceReader[string]
	reads int
}

func (r *malformedReader) Read(ctx context.Context) (string, error) {
	r.reads++
	v, err := r.SliceReader.Read(ctx)
	if err == nil && v == "bad" {
		return "", exception.NewSourceError("invalid record", exception.ErrDataConversion, false, true)
	}
	return v, err
}

func TestChunkStep_MalformedRecordIsNotRetried(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "uppercase")
	r := &malformedReader{SliceReader: reader.NewSliceReader("names", []string{"a", "bad", "c"})}
	w := &recordingWriter[string]{}
	step, err := item.NewChunkStep[string, string](item.Config[string, string]{
		Name:      "uppercase",
		Reader:    r,
		Processor: upperProcessor{},
		Writer:    w,
		ChunkSize: 10,
		Fault:     model.FaultPolicy{RetryLimit: 3, RetryableErrors: []string{"DataConversionError"}},
	}, item.Dependencies{JobRepository: repo})
	require.NoError(t, err)

	require.Error(t, step.Execute(context.Background(), se))
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, 2, r.reads, "the record after the malformed one is not read in its place")
	assert.Equal(t, 0, se.RetryCount)
	assert.Empty(t, w.batches)
}

func TestChunkStep_PassThroughWithoutProcessor(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	_, se := testutil.NewPersistedStepExecution(t, repo, "job", "copy")
	w := &recordingWriter[string]{}
	step, err := item.NewChunkStep[string, string](item.Config[string, string]{
		Name:      "copy",
		Reader:    reader.NewSliceReader("names", []string{"a", "b"}),
		Writer:    w,
		ChunkSize: 10,
	}, item.Dependencies{JobRepository: repo})
	require.NoError(t, err)

	require.NoError(t, step.Execute(context.Background(), se))
	assert.Equal(t, []string{"a", "b"}, w.written())
}

func TestNewChunkStep_Validation(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	valid := item.Config[string, string]{
		Name:      "s",
		Reader:    reader.NewSliceReader("r", []string{}),
		Writer:    &recordingWriter[string]{},
		ChunkSize: 1,
	}

	_, err := item.NewChunkStep(valid, item.Dependencies{JobRepository: repo})
	assert.NoError(t, err)

	noName := valid
	noName.Name = ""
	_, err = item.NewChunkStep(noName, item.Dependencies{JobRepository: repo})
	assert.Error(t, err)

	zeroChunk := valid
	zeroChunk.ChunkSize = 0
	_, err = item.NewChunkStep(zeroChunk, item.Dependencies{JobRepository: repo})
	assert.ErrorContains(t, err, "chunk size must be positive")

	negativeSkip := valid
	negativeSkip.Fault = model.FaultPolicy{SkipLimit: -1}
	_, err = item.NewChunkStep(negativeSkip, item.Dependencies{JobRepository: repo})
	assert.Error(t, err)

	_, err = item.NewChunkStep(valid, item.Dependencies{})
	assert.ErrorContains(t, err, "requires a job repository")

	_, err = item.NewChunkStep[string, int](item.Config[string, int]{
		Name:      "mismatch",
		Reader:    reader.NewSliceReader("r", []string{}),
		Writer:    &recordingWriter[int]{},
		ChunkSize: 1,
	}, item.Dependencies{JobRepository: repo})
	assert.ErrorContains(t, err, "not assignable")
}
