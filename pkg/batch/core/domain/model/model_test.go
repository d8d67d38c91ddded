package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func TestBatchStatus(t *testing.T) {
	assert.True(t, model.BatchStatusCompleted.IsTerminal())
	assert.False(t, model.BatchStatusStarted.IsTerminal())
	assert.True(t, model.BatchStatusStopped.IsRestartable())
	assert.False(t, model.BatchStatusCompleted.IsRestartable())
	assert.True(t, model.BatchStatusStarting.IsRunning())
	assert.Equal(t, model.BatchStatusStopped, model.ParseBatchStatus("STOPPED"))
	assert.Equal(t, model.BatchStatusFailed, model.ParseBatchStatus("ABANDONED"))
}

func TestJobExecution_Lifecycle(t *testing.T) {
	je := model.NewJobExecution("importUserJob", "1", nil)
	assert.Equal(t, model.BatchStatusStarting, je.Status)
	assert.NotEmpty(t, je.ID)
	assert.NotNil(t, je.Parameters)

	require.NoError(t, je.MarkAsStarted())
	require.NotNil(t, je.StartTime)
	assert.Error(t, je.MarkTerminal(model.BatchStatusStarted, ""), "not a terminal status")
	require.NoError(t, je.MarkTerminal(model.BatchStatusCompleted, "done"))
	require.NotNil(t, je.EndTime)
	assert.Equal(t, "done", je.ExitDescription)

	assert.Error(t, je.TransitionTo(model.BatchStatusFailed), "terminal executions are immutable")
}

func TestStepExecution_Transitions(t *testing.T) {
	se := model.NewStepExecution(model.NewJobExecution("job", "1", nil), "step1")
	assert.Error(t, se.TransitionTo(model.BatchStatusCompleted), "STARTING cannot complete")
	require.NoError(t, se.MarkAsStarted())
	require.NoError(t, se.MarkTerminal(model.BatchStatusFailed, "boom"))
	assert.Error(t, se.MarkAsStarted())
}

func TestStepExecution_Accounted(t *testing.T) {
	se := &model.StepExecution{ReadCount: 10, WriteCount: 6, FilterCount: 2, ReadSkipCount: 1, ProcessSkipCount: 1}
	assert.Equal(t, 2, se.SkipCount())
	assert.Equal(t, se.ReadCount, se.Accounted())
	assert.Contains(t, se.String(), "read=10 write=6 filter=2 skip=2")
}

func TestNewRestartExecution(t *testing.T) {
	prev := model.NewJobExecution("job", "7", model.JobParameters{"input.file": "people.csv"})
	prev.RestartCount = 1
	prev.ExecutionContext.Put("k", "v")

	done := model.NewStepExecution(prev, "step1")
	require.NoError(t, done.MarkAsStarted())
	done.ReadCount, done.WriteCount = 5, 5
	require.NoError(t, done.MarkTerminal(model.BatchStatusCompleted, ""))
	prev.AddStepExecution(done)

	failed := model.NewStepExecution(prev, "step2")
	require.NoError(t, failed.MarkAsStarted())
	failed.ReadCount, failed.WriteCount, failed.CommittedPosition = 12, 10, 10
	failed.ExecutionContext.Put(model.ResumePositionKey, 10)
	require.NoError(t, failed.MarkTerminal(model.BatchStatusFailed, "sink down"))
	prev.AddStepExecution(failed)
	require.NoError(t, prev.MarkAsStarted())
	require.NoError(t, prev.MarkTerminal(model.BatchStatusFailed, "step 'step2' failed: sink down"))

	next := model.NewRestartExecution(prev)
	assert.NotEqual(t, prev.ID, next.ID)
	assert.Equal(t, "7", next.RunID)
	assert.Equal(t, 2, next.RestartCount)
	assert.Equal(t, model.BatchStatusStarting, next.Status)
	assert.Equal(t, "people.csv", next.Parameters["input.file"])
	v, _ := next.ExecutionContext.GetString("k")
	assert.Equal(t, "v", v)

	s1, ok := next.StepExecution("step1")
	require.True(t, ok)
	assert.Equal(t, model.BatchStatusCompleted, s1.Status)
	assert.Equal(t, next.ID, s1.JobExecutionID)

	s2, ok := next.StepExecution("step2")
	require.True(t, ok)
	assert.Equal(t, model.BatchStatusStarting, s2.Status)
	assert.Equal(t, 10, s2.CommittedPosition)
	assert.Equal(t, 12, s2.ReadCount, "counters are cumulative across attempts")
	assert.Empty(t, s2.ExitDescription)
	assert.Nil(t, s2.EndTime)
	pos, ok := s2.ExecutionContext.GetInt(model.ResumePositionKey)
	require.True(t, ok)
	assert.Equal(t, 10, pos)

	s2.ExecutionContext.Put(model.ResumePositionKey, 11)
	pos, _ = failed.ExecutionContext.GetInt(model.ResumePositionKey)
	assert.Equal(t, 10, pos, "the restart copy does not share state")

	first, ok := prev.FirstFailedStep()
	require.True(t, ok)
	assert.Equal(t, "step2", first.StepName)
}

func TestJobExecution_CloneIsDeep(t *testing.T) {
	je := model.NewJobExecution("job", "1", nil)
	je.AddStepExecution(model.NewStepExecution(je, "step1"))
	start := time.Now()
	je.StartTime = &start

	c := je.Clone()
	c.StepExecutions[0].ReadCount = 99
	*c.StartTime = start.Add(time.Hour)
	assert.Equal(t, 0, je.StepExecutions[0].ReadCount)
	assert.Equal(t, start, *je.StartTime)

	je.AddStepExecution(&model.StepExecution{StepName: "step1", ReadCount: 3})
	assert.Len(t, je.StepExecutions, 1, "same step name replaces the entry")
}

func TestExecutionContext(t *testing.T) {
	ec := model.NewExecutionContext()
	ec.Put("count", 3)
	ec.Put("nested", map[string]interface{}{"a": 1})

	raw, err := ec.Value()
	require.NoError(t, err)

	var scanned model.ExecutionContext
	require.NoError(t, scanned.Scan(raw))
	n, ok := scanned.GetInt("count")
	require.True(t, ok)
	assert.Equal(t, 3, n)
	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
	assert.Error(t, scanned.Scan(42))

	c := ec.Copy()
	c["nested"].(map[string]interface{})["a"] = 2
	assert.Equal(t, 1, ec["nested"].(map[string]interface{})["a"])

	other := model.ExecutionContext{"count": 4, "extra": "x"}
	ec.Merge(other)
	n, _ = ec.GetInt("count")
	assert.Equal(t, 4, n)
	ec.Remove("extra")
	_, ok = ec.Get("extra")
	assert.False(t, ok)
	_, ok = ec.GetString("count")
	assert.False(t, ok)
}

func TestJobParameters(t *testing.T) {
	jp := model.NewJobParameters()
	jp.Put("user", "batch")
	jp.Put("password", "s3cret")
	jp.Put("limit", 10)

	assert.Equal(t, "{limit=10, password=******, user=batch}", jp.String("PASSWORD"))
	s, ok := jp.GetString("limit")
	require.True(t, ok)
	assert.Equal(t, "10", s)

	raw, err := jp.Value()
	require.NoError(t, err)
	var scanned model.JobParameters
	require.NoError(t, scanned.Scan(raw))
	assert.Equal(t, "batch", scanned["user"])
}

func TestFindTransition(t *testing.T) {
	transitions := []model.Transition{
		{On: "*", To: "next"},
		{On: "FAIL*", To: "recover"},
		{On: "COMPLETED", End: true},
	}
	tr, ok := model.FindTransition(transitions, model.BatchStatusCompleted)
	require.True(t, ok)
	assert.True(t, tr.End, "exact pattern wins over wildcards")

	tr, ok = model.FindTransition(transitions, model.BatchStatusFailed)
	require.True(t, ok)
	assert.Equal(t, "next", tr.To, "first matching wildcard wins")

	_, ok = model.FindTransition([]model.Transition{{On: "FAILED", Fail: true}}, model.BatchStatusStopped)
	assert.False(t, ok)
}

func TestFaultPolicy(t *testing.T) {
	assert.Equal(t, 1, model.FaultPolicy{}.MaxAttempts())
	assert.Equal(t, 3, model.FaultPolicy{RetryLimit: 3}.MaxAttempts())
	assert.NoError(t, model.FaultPolicy{SkipLimit: 1}.Validate())
	assert.Error(t, model.FaultPolicy{SkipLimit: -1}.Validate())
	assert.Error(t, model.FaultPolicy{RetryBackoff: -time.Second}.Validate())
}
