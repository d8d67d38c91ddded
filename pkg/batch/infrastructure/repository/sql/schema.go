package sql

import (
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobExecutionEntity is the row of batch_job_execution.
type JobExecutionEntity struct {
	ID               string              `gorm:"primaryKey;type:varchar(36)"`
	JobName          string              `gorm:"type:varchar(255)"`
	RunID            string              `gorm:"column:run_id;type:varchar(255)"`
	Parameters       model.JobParameters `gorm:"type:text"`
	Status           string              `gorm:"type:varchar(20)"`
	ExitDescription  string
	CreateTime       time.Time
	StartTime        *time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	Version          int
	RestartCount     int
	ExecutionContext model.ExecutionContext `gorm:"type:text"`
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is the row of batch_step_execution.
// StepOrder keeps the order in which steps were added to their job execution.
type StepExecutionEntity struct {
	ID                string `gorm:"primaryKey;type:varchar(36)"`
	JobExecutionID    string `gorm:"type:varchar(36)"`
	JobName           string `gorm:"type:varchar(255)"`
	RunID             string `gorm:"column:run_id;type:varchar(255)"`
	StepName          string `gorm:"type:varchar(255)"`
	StepOrder         int
	Status            string `gorm:"type:varchar(20)"`
	ExitDescription   string
	StartTime         *time.Time
	EndTime           *time.Time
	LastUpdated       time.Time
	Version           int
	ReadCount         int
	WriteCount        int
	FilterCount       int
	ReadSkipCount     int
	ProcessSkipCount  int
	CommitCount       int
	RollbackCount     int
	RetryCount        int
	CommittedPosition int
	ExecutionContext  model.ExecutionContext `gorm:"type:text"`
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
