package sql

import (
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:               je.ID,
		JobName:          je.JobName,
		RunID:            je.RunID,
		Parameters:       je.Parameters,
		Status:           string(je.Status),
		ExitDescription:  je.ExitDescription,
		CreateTime:       je.CreateTime,
		StartTime:        je.StartTime,
		EndTime:          je.EndTime,
		LastUpdated:      je.LastUpdated,
		Version:          je.Version,
		RestartCount:     je.RestartCount,
		ExecutionContext: je.ExecutionContext,
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	params := entity.Parameters
	if params == nil {
		params = model.NewJobParameters()
	}
	ec := entity.ExecutionContext
	if ec == nil {
		ec = model.NewExecutionContext()
	}
	return &model.JobExecution{
		ID:               entity.ID,
		JobName:          entity.JobName,
		RunID:            entity.RunID,
		Parameters:       params,
		Status:           model.BatchStatus(entity.Status),
		ExitDescription:  entity.ExitDescription,
		CreateTime:       entity.CreateTime,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		LastUpdated:      entity.LastUpdated,
		Version:          entity.Version,
		RestartCount:     entity.RestartCount,
		ExecutionContext: ec,
	}
}

// jobExecutionColumns lists the mutable columns of a job execution. A map keeps
// zero values such as an empty exit description in the UPDATE.
func jobExecutionColumns(je *model.JobExecution) map[string]interface{} {
	return map[string]interface{}{
		"status":            string(je.Status),
		"exit_description":  je.ExitDescription,
		"start_time":        je.StartTime,
		"end_time":          je.EndTime,
		"last_updated":      je.LastUpdated,
		"execution_context": je.ExecutionContext,
	}
}

func fromDomainStepExecution(se *model.StepExecution, order int) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:                se.ID,
		JobExecutionID:    se.JobExecutionID,
		JobName:           se.JobName,
		RunID:             se.RunID,
		StepName:          se.StepName,
		StepOrder:         order,
		Status:            string(se.Status),
		ExitDescription:   se.ExitDescription,
		StartTime:         se.StartTime,
		EndTime:           se.EndTime,
		LastUpdated:       se.LastUpdated,
		Version:           se.Version,
		ReadCount:         se.ReadCount,
		WriteCount:        se.WriteCount,
		FilterCount:       se.FilterCount,
		ReadSkipCount:     se.ReadSkipCount,
		ProcessSkipCount:  se.ProcessSkipCount,
		CommitCount:       se.CommitCount,
		RollbackCount:     se.RollbackCount,
		RetryCount:        se.RetryCount,
		CommittedPosition: se.CommittedPosition,
		ExecutionContext:  se.ExecutionContext,
	}
}

func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	ec := entity.ExecutionContext
	if ec == nil {
		ec = model.NewExecutionContext()
	}
	return &model.StepExecution{
		ID:                entity.ID,
		JobExecutionID:    entity.JobExecutionID,
		JobName:           entity.JobName,
		RunID:             entity.RunID,
		StepName:          entity.StepName,
		Status:            model.BatchStatus(entity.Status),
		ExitDescription:   entity.ExitDescription,
		StartTime:         entity.StartTime,
		EndTime:           entity.EndTime,
		LastUpdated:       entity.LastUpdated,
		Version:           entity.Version,
		ReadCount:         entity.ReadCount,
		WriteCount:        entity.WriteCount,
		FilterCount:       entity.FilterCount,
		ReadSkipCount:     entity.ReadSkipCount,
		ProcessSkipCount:  entity.ProcessSkipCount,
		CommitCount:       entity.CommitCount,
		RollbackCount:     entity.RollbackCount,
		RetryCount:        entity.RetryCount,
		CommittedPosition: entity.CommittedPosition,
		ExecutionContext:  ec,
	}
}

func stepExecutionColumns(se *model.StepExecution) map[string]interface{} {
	return map[string]interface{}{
		"status":             string(se.Status),
		"exit_description":   se.ExitDescription,
		"start_time":         se.StartTime,
		"end_time":           se.EndTime,
		"last_updated":       se.LastUpdated,
		"read_count":         se.ReadCount,
		"write_count":        se.WriteCount,
		"filter_count":       se.FilterCount,
		"read_skip_count":    se.ReadSkipCount,
		"process_skip_count": se.ProcessSkipCount,
		"commit_count":       se.CommitCount,
		"rollback_count":     se.RollbackCount,
		"retry_count":        se.RetryCount,
		"committed_position": se.CommittedPosition,
		"execution_context":  se.ExecutionContext,
	}
}
