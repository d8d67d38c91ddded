// Package job assembles importUserJob: a CSV import into people followed by a pass that
// re-reads people and writes their lower-case names, and an optional parquet export.
package job

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/example/import-user/internal/domain"
	"github.com/tigerroll/chunkbatch/example/import-user/internal/step/processor"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	itemprocessor "github.com/tigerroll/chunkbatch/pkg/batch/component/step/processor"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener"
)

// Names of the job and its steps.
const (
	JobName              = "importUserJob"
	StepToUppercase      = "stepToUppercase"
	StepToLowercase      = "step2"
	StepExportPeople     = "exportPeople"
	defaultChunkSize     = 10
	queryFindPeople      = "SELECT first_name, last_name FROM people ORDER BY id"
	queryFindPeopleByIDs = "SELECT id, first_name, last_name FROM people ORDER BY id"
)

// Input locates the CSV file. FS is nil for a path on the local file system.
type Input struct {
	FS   fs.FS
	Path string
}

// Params are the Fx inputs of NewImportUserJob.
type Params struct {
	fx.In

	Config          *config.Config
	Repository      repository.JobRepository
	DBResolver      database.DBConnectionResolver
	StorageResolver storage.StorageConnectionResolver
	Recorder        metrics.MetricRecorder
	Tracer          metrics.Tracer
	Listeners       listener.StepListeners
	Input           Input
	DBRef           string `name:"peopleDBRef"`
}

// NewImportUserJob builds the flow stepToUppercase -> step2 [-> exportPeople].
func NewImportUserJob(ctx context.Context, p Params) (*runner.FlowJob, error) {
	deps := item.Dependencies{
		JobRepository:  p.Repository,
		TxManager:      gormadapter.NewGormTransactionManager(p.DBResolver, p.DBRef),
		MetricRecorder: p.Recorder,
		Tracer:         p.Tracer,
		StepListeners:  p.Listeners.Step,
		ChunkListeners: p.Listeners.Chunk,
		SkipListeners:  p.Listeners.Skip,
		RetryListeners: p.Listeners.Retry,
	}
	chunkSize := p.Config.Batch.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	fault := p.Config.Batch.FaultPolicy()

	toUpper, err := item.NewChunkStep(item.Config[domain.Person, domain.Person]{
		Name:      StepToUppercase,
		Reader:    NewPersonFileReader(p.Input),
		Processor: NewUppercaseProcessor(),
		Writer:    NewPeopleWriter(),
		ChunkSize: chunkSize,
		Fault:     fault,
	}, deps)
	if err != nil {
		return nil, err
	}

	conn, err := p.DBResolver.ResolveDBConnection(ctx, p.DBRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database '%s' for job '%s': %w", p.DBRef, JobName, err)
	}
	peopleReader, err := reader.NewSqlCursorReaderFromConnection(conn, "peopleReader", queryFindPeople, nil, scanPersonNames)
	if err != nil {
		return nil, err
	}
	toLower, err := item.NewChunkStep(item.Config[domain.Person, domain.Person]{
		Name:      StepToLowercase,
		Reader:    peopleReader,
		Processor: processor.PersonToLowercaseProcessor{},
		Writer:    NewPeopleWriter(),
		ChunkSize: chunkSize,
		Fault:     fault,
	}, deps)
	if err != nil {
		return nil, err
	}

	job := runner.NewFlowJob(JobName, p.Repository, p.Recorder, p.Tracer).
		Step(toUpper).
		Step(toLower)

	if export := p.Config.Export; export.Enabled {
		exportReader, err := reader.NewSqlCursorReaderFromConnection(conn, "exportReader", queryFindPeopleByIDs, nil, scanPerson)
		if err != nil {
			return nil, err
		}
		parquetWriter, err := writer.NewParquetWriter[domain.Person](writer.ParquetWriterConfig{
			Name:        "peopleExport",
			StorageRef:  export.StorageRef,
			OutputPath:  export.OutputPath,
			Compression: export.Compression,
		}, p.StorageResolver, nil)
		if err != nil {
			return nil, err
		}
		exportStep, err := item.NewChunkStep(item.Config[domain.Person, domain.Person]{
			Name:      StepExportPeople,
			Reader:    exportReader,
			Writer:    parquetWriter,
			ChunkSize: chunkSize,
			Fault:     fault,
		}, item.Dependencies{
			JobRepository:  deps.JobRepository,
			MetricRecorder: deps.MetricRecorder,
			Tracer:         deps.Tracer,
			StepListeners:  deps.StepListeners,
			ChunkListeners: deps.ChunkListeners,
		})
		if err != nil {
			return nil, err
		}
		job.Step(exportStep)
	}
	return job, job.Validate()
}

// NewUppercaseProcessor filters records with a blank name, then upper-cases the rest.
func NewUppercaseProcessor() port.ItemProcessor[domain.Person, domain.Person] {
	return itemprocessor.NewCompositeProcessor[domain.Person](
		itemprocessor.Filter(hasName),
		processor.PersonToUppercaseProcessor{},
	)
}

func hasName(p domain.Person) bool {
	return strings.TrimSpace(p.FirstName) != "" && strings.TrimSpace(p.LastName) != ""
}

// NewPersonFileReader reads firstName,lastName records without a header.
func NewPersonFileReader(in Input) *reader.FlatFileReader[domain.Person] {
	return reader.NewFlatFileReader(reader.FlatFileConfig[domain.Person]{
		Name:       "personFileReader",
		Path:       in.Path,
		FS:         in.FS,
		FieldNames: []string{"firstName", "lastName"},
		Mapper: func(fields reader.FieldSet) (domain.Person, error) {
			return domain.Person{FirstName: fields.Get("firstName"), LastName: fields.Get("lastName")}, nil
		},
	})
}

// NewPeopleWriter upserts people on their natural key, so a re-processed record
// does not create a second row.
func NewPeopleWriter() *writer.GormUpsertWriter[domain.Person] {
	return writer.NewGormUpsertWriter[domain.Person](writer.UpsertConfig{
		Name:            "peopleWriter",
		TableName:       "people",
		ConflictColumns: []string{"first_name", "last_name"},
	})
}

func scanPersonNames(rows *sql.Rows) (domain.Person, error) {
	var p domain.Person
	err := rows.Scan(&p.FirstName, &p.LastName)
	return p, err
}

func scanPerson(rows *sql.Rows) (domain.Person, error) {
	var p domain.Person
	err := rows.Scan(&p.ID, &p.FirstName, &p.LastName)
	return p, err
}
