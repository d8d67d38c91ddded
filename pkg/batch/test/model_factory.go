package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// NewTestJobParameters creates JobParameters for testing.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	jp := model.NewJobParameters()
	for k, v := range params {
		jp.Put(k, v)
	}
	return jp
}

// NewTestExecutionContext creates an ExecutionContext for testing.
func NewTestExecutionContext(data map[string]interface{}) model.ExecutionContext {
	ec := model.NewExecutionContext()
	for k, v := range data {
		ec.Put(k, v)
	}
	return ec
}

// NewPersistedStepExecution creates a job execution and one STARTING step execution in repo,
// the state a job hands to a step before executing it.
func NewPersistedStepExecution(t testing.TB, repo repository.JobRepository, jobName, stepName string) (*model.JobExecution, *model.StepExecution) {
	t.Helper()
	ctx := context.Background()
	je, err := repo.CreateJobExecution(ctx, jobName, "1", model.NewJobParameters())
	require.NoError(t, err)
	se := model.NewStepExecution(je, stepName)
	require.NoError(t, repo.SaveStepExecution(ctx, se))
	je.AddStepExecution(se)
	return je, se
}
