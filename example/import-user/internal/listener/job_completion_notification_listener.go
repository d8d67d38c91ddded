// Package listener holds the job listeners of the import-user application.
package listener

import (
	"context"

	"github.com/tigerroll/chunkbatch/example/import-user/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// JobCompletionNotificationListener logs every person in the database once a job has
// COMPLETED. Query failures are logged and never change the job outcome.
type JobCompletionNotificationListener struct {
	resolver database.DBConnectionResolver
	dbRef    string
}

var _ port.JobExecutionListener = (*JobCompletionNotificationListener)(nil)

// NewJobCompletionNotificationListener creates the listener for the database named dbRef.
func NewJobCompletionNotificationListener(resolver database.DBConnectionResolver, dbRef string) *JobCompletionNotificationListener {
	return &JobCompletionNotificationListener{resolver: resolver, dbRef: dbRef}
}

func (l *JobCompletionNotificationListener) BeforeJob(ctx context.Context, execution *model.JobExecution) error {
	return nil
}

func (l *JobCompletionNotificationListener) AfterJob(ctx context.Context, execution *model.JobExecution) error {
	if execution.Status != model.BatchStatusCompleted {
		return nil
	}
	logger.Infof("!!! JOB FINISHED! Time to verify the results")

	people, err := l.findPeople(ctx)
	if err != nil {
		logger.Errorf("Failed to query people after job '%s': %v", execution.JobName, err)
		return nil
	}
	for _, p := range people {
		logger.Infof("Found <%s> in the database.", p)
	}
	return nil
}

func (l *JobCompletionNotificationListener) findPeople(ctx context.Context) ([]domain.Person, error) {
	conn, err := l.resolver.ResolveDBConnection(ctx, l.dbRef)
	if err != nil {
		return nil, err
	}
	var people []domain.Person
	if err := conn.GormDB().WithContext(ctx).Select("first_name", "last_name").Order("id").Find(&people).Error; err != nil {
		return nil, err
	}
	return people, nil
}
