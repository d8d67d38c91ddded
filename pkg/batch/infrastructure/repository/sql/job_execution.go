package sql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// CreateJobExecution inserts a fresh STARTING execution for runID.
// It returns ErrRunIDCollision if jobName already has an execution with that run id.
func (r *SQLJobRepository) CreateJobExecution(ctx context.Context, jobName, runID string, params model.JobParameters) (*model.JobExecution, error) {
	unlock := r.locks.Lock("run:" + jobName + "/" + runID)
	defer unlock()

	db, conn, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	taken, err := runIDTaken(db, jobName, runID)
	if err != nil {
		return nil, wrap(conn, fmt.Sprintf("failed to look up run '%s' of job '%s'", runID, jobName), err)
	}
	if taken {
		return nil, exception.NewBatchErrorf(exception.ModuleConfig, "job '%s' already has a run with id '%s'", jobName, runID, repository.ErrRunIDCollision)
	}

	je := model.NewJobExecution(jobName, runID, params)
	if err := db.Create(fromDomainJobExecution(je)).Error; err != nil {
		// Another process may have inserted the same run between the check and the insert.
		if taken, lookupErr := runIDTaken(db, jobName, runID); lookupErr == nil && taken {
			return nil, exception.NewBatchErrorf(exception.ModuleConfig, "job '%s' already has a run with id '%s'", jobName, runID, repository.ErrRunIDCollision)
		}
		return nil, wrap(conn, fmt.Sprintf("failed to create JobExecution for run '%s'", runID), err)
	}
	return je, nil
}

func runIDTaken(db *gorm.DB, jobName, runID string) (bool, error) {
	var n int64
	err := db.Model(&JobExecutionEntity{}).Where("job_name = ? AND run_id = ?", jobName, runID).Count(&n).Error
	return n > 0, err
}

// SaveJobExecution inserts a new JobExecution and the step executions it carries
// in one transaction.
func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	unlock := r.locks.Lock(jobExecution.ID)
	defer unlock()

	db, conn, err := r.session(ctx)
	if err != nil {
		return err
	}
	err = db.Transaction(func(txDB *gorm.DB) error {
		if err := txDB.Create(fromDomainJobExecution(jobExecution)).Error; err != nil {
			return err
		}
		for i, se := range jobExecution.StepExecutions {
			if err := txDB.Create(fromDomainStepExecution(se, i+1)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrap(conn, fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err)
	}
	return nil
}

// UpdateJobExecution updates an existing JobExecution.
// The stored version must match, otherwise ErrOptimisticLockingFailure is returned.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	unlock := r.locks.Lock(jobExecution.ID)
	defer unlock()
	return r.updateJob(ctx, jobExecution)
}

// MarkTerminal moves the execution to status and persists it.
func (r *SQLJobRepository) MarkTerminal(ctx context.Context, jobExecution *model.JobExecution, status model.BatchStatus, exitDescription string) error {
	unlock := r.locks.Lock(jobExecution.ID)
	defer unlock()

	if err := jobExecution.MarkTerminal(status, exitDescription); err != nil {
		return exception.NewRepositoryError("cannot mark job execution terminal", err)
	}
	return r.updateJob(ctx, jobExecution)
}

func (r *SQLJobRepository) updateJob(ctx context.Context, jobExecution *model.JobExecution) error {
	db, conn, err := r.session(ctx)
	if err != nil {
		return err
	}
	jobExecution.LastUpdated = time.Now()
	columns := jobExecutionColumns(jobExecution)
	columns["version"] = gorm.Expr("version + 1")

	result := db.Model(&JobExecutionEntity{}).
		Where("id = ? AND version = ?", jobExecution.ID, jobExecution.Version).
		Updates(columns)
	if result.Error != nil {
		return wrap(conn, fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), result.Error)
	}
	if result.RowsAffected == 0 {
		var n int64
		if err := db.Model(&JobExecutionEntity{}).Where("id = ?", jobExecution.ID).Count(&n).Error; err != nil {
			return wrap(conn, fmt.Sprintf("failed to look up JobExecution (ID: %s)", jobExecution.ID), err)
		}
		if n == 0 {
			return exception.NewRepositoryError(fmt.Sprintf("JobExecution with ID %s not found for update", jobExecution.ID), repository.ErrJobExecutionNotFound)
		}
		return exception.NewRepositoryError(
			fmt.Sprintf("JobExecution %s was modified concurrently (version %d is stale)", jobExecution.ID, jobExecution.Version),
			exception.ErrOptimisticLockingFailure)
	}
	jobExecution.Version++
	return nil
}

// FindJobExecutionByID loads a JobExecution and its StepExecutions.
func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	return r.findOne(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	})
}

// FindLastJobExecution returns the most recently created execution of jobName.
func (r *SQLJobRepository) FindLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	return r.findOne(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("job_name = ?", jobName).Order("create_time DESC").Order("restart_count DESC")
	})
}

// FindLastJobExecutionByRunID returns the latest attempt of runID.
func (r *SQLJobRepository) FindLastJobExecutionByRunID(ctx context.Context, jobName, runID string) (*model.JobExecution, error) {
	return r.findOne(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("job_name = ? AND run_id = ?", jobName, runID).Order("restart_count DESC")
	})
}

// FindRunIDs lists the run ids of jobName ordered by first creation.
func (r *SQLJobRepository) FindRunIDs(ctx context.Context, jobName string) ([]string, error) {
	db, conn, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	var runIDs []string
	err = db.Model(&JobExecutionEntity{}).
		Where("job_name = ?", jobName).
		Group("run_id").
		Order("MIN(create_time)").
		Pluck("run_id", &runIDs).Error
	if err != nil {
		return nil, wrap(conn, fmt.Sprintf("failed to list run ids of job '%s'", jobName), err)
	}
	return runIDs, nil
}

func (r *SQLJobRepository) findOne(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (*model.JobExecution, error) {
	db, conn, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	var entity JobExecutionEntity
	if err := scope(db.Model(&JobExecutionEntity{})).Take(&entity).Error; err != nil {
		if isNotFound(err) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, wrap(conn, "failed to load JobExecution", err)
	}

	var steps []StepExecutionEntity
	if err := db.Where("job_execution_id = ?", entity.ID).Order("step_order").Find(&steps).Error; err != nil {
		return nil, wrap(conn, fmt.Sprintf("failed to load StepExecutions of JobExecution (ID: %s)", entity.ID), err)
	}
	je := toDomainJobExecution(&entity)
	for i := range steps {
		je.StepExecutions = append(je.StepExecutions, toDomainStepExecution(&steps[i]))
	}
	return je, nil
}
