package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tigerroll/chunkbatch/example/import-user/internal/app"
	"github.com/tigerroll/chunkbatch/example/import-user/internal/job"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// embeddedConfig is the application configuration; ${VAR} placeholders and
// environment variables are applied on load.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// migrationsFS holds the people table migrations, one directory per dialect.
//
//go:embed all:resources/migrations
var migrationsFS embed.FS

//go:embed resources/sample-data.csv
var sampleDataFS embed.FS

const startStopTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 iff the job execution COMPLETED.
func run() int {
	jobName := flag.String("job", job.JobName, "name of the job to run")
	runID := flag.String("run-id", "", "run to start or restart; empty starts a fresh run")
	input := flag.String("input", "", "CSV file of firstName,lastName records; the bundled sample-data.csv when empty")
	envFile := flag.String("env", os.Getenv("ENV_FILE_PATH"), "path of a .env file")
	flag.Parse()

	in := job.Input{FS: sampleDataFS, Path: "resources/sample-data.csv"}
	if *input != "" {
		in = job.Input{Path: *input}
	}

	application, err := app.New(app.Options{
		EnvFilePath:    *envFile,
		EmbeddedConfig: embeddedConfig,
		Migrations:     migrationsFS,
		MigrationsDir:  "resources/migrations",
		Input:          in,
	})
	if err != nil {
		logger.Errorf("Failed to build the application: %v", err)
		return 1
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), startStopTimeout)
	defer cancelStart()
	if err := application.Start(startCtx); err != nil {
		logger.Errorf("Failed to start the application: %v", err)
		return 1
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), startStopTimeout)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			logger.Warnf("Application shutdown reported an error: %v", err)
		}
	}()

	params := model.NewJobParameters()
	params["input.file"] = in.Path
	handle, err := application.StartJob(context.Background(), *jobName, *runID, params)
	if err != nil {
		logger.Errorf("Failed to launch job '%s': %v", *jobName, err)
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Warnf("Received signal '%v'. Stopping job '%s' after the current chunk...", sig, *jobName)
			handle.Stop()
		case <-handle.Done():
		}
	}()

	execution, err := handle.Wait(context.Background())
	if err != nil {
		logger.Errorf("Job '%s' returned an error: %v", *jobName, err)
	}
	if execution == nil {
		return 1
	}
	if execution.Status != model.BatchStatusCompleted {
		fmt.Fprintf(os.Stderr, "job %s run %s ended %s: %s\n", execution.JobName, execution.RunID, execution.Status, execution.ExitDescription)
		return 1
	}
	logger.Infof("Job '%s' run '%s' COMPLETED (execution %s).", execution.JobName, execution.RunID, execution.ID)
	return 0
}
