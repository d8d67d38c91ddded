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

// SaveStepExecution inserts a new StepExecution after the steps already recorded
// for its JobExecution.
func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	unlock := r.locks.Lock(stepExecution.JobExecutionID)
	defer unlock()

	db, conn, err := r.session(ctx)
	if err != nil {
		return err
	}
	err = db.Transaction(func(txDB *gorm.DB) error {
		var last int
		if err := txDB.Model(&StepExecutionEntity{}).
			Where("job_execution_id = ?", stepExecution.JobExecutionID).
			Select("COALESCE(MAX(step_order), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		return txDB.Create(fromDomainStepExecution(stepExecution, last+1)).Error
	})
	if err != nil {
		return wrap(conn, fmt.Sprintf("failed to save StepExecution (ID: %s)", stepExecution.ID), err)
	}
	return nil
}

// UpdateStepProgress persists counters, committed position and execution context after a chunk commit.
func (r *SQLJobRepository) UpdateStepProgress(ctx context.Context, stepExecution *model.StepExecution) error {
	return r.updateStep(ctx, stepExecution)
}

// UpdateStepExecution persists the status of a StepExecution.
func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	return r.updateStep(ctx, stepExecution)
}

func (r *SQLJobRepository) updateStep(ctx context.Context, stepExecution *model.StepExecution) error {
	unlock := r.locks.Lock(stepExecution.JobExecutionID)
	defer unlock()

	db, conn, err := r.session(ctx)
	if err != nil {
		return err
	}
	stepExecution.LastUpdated = time.Now()
	columns := stepExecutionColumns(stepExecution)
	columns["version"] = gorm.Expr("version + 1")

	result := db.Model(&StepExecutionEntity{}).
		Where("id = ? AND version = ?", stepExecution.ID, stepExecution.Version).
		Updates(columns)
	if result.Error != nil {
		return wrap(conn, fmt.Sprintf("failed to update StepExecution (ID: %s)", stepExecution.ID), result.Error)
	}
	if result.RowsAffected == 0 {
		var n int64
		if err := db.Model(&StepExecutionEntity{}).Where("id = ?", stepExecution.ID).Count(&n).Error; err != nil {
			return wrap(conn, fmt.Sprintf("failed to look up StepExecution (ID: %s)", stepExecution.ID), err)
		}
		if n == 0 {
			return exception.NewRepositoryError(fmt.Sprintf("StepExecution with ID %s not found for update", stepExecution.ID), repository.ErrStepExecutionNotFound)
		}
		return exception.NewRepositoryError(
			fmt.Sprintf("StepExecution %s was modified concurrently (version %d is stale)", stepExecution.ID, stepExecution.Version),
			exception.ErrOptimisticLockingFailure)
	}
	stepExecution.Version++
	return nil
}

// FindStepExecutionByID loads a StepExecution.
func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	db, conn, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	var entity StepExecutionEntity
	if err := db.Where("id = ?", id).Take(&entity).Error; err != nil {
		if isNotFound(err) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, wrap(conn, fmt.Sprintf("failed to load StepExecution (ID: %s)", id), err)
	}
	return toDomainStepExecution(&entity), nil
}
