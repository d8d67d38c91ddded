// Package config provides structures and utilities for managing application configuration.
package config

import (
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelTrace  LogLevel = "TRACE"
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// Job repository types.
const (
	RepositoryTypeInMemory = "inmemory"
	RepositoryTypeSQL      = "sql"
)

// ItemRetryConfig holds item-level retry configuration.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // MaxAttempts is the maximum number of attempts per item and per chunk write.
	InitialInterval     int      `yaml:"initial_interval"`     // InitialInterval is the first backoff in milliseconds; it doubles per retry.
	RetryableExceptions []string `yaml:"retryable_exceptions"` // RetryableExceptions lists registered error kinds that are retried.
}

// ItemSkipConfig holds item-level skip configuration.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // SkipLimit is the maximum number of items to skip per step.
	SkippableExceptions []string `yaml:"skippable_exceptions"` // SkippableExceptions lists registered error kinds that may be skipped.
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys is a list of keys in JobParameters whose values should be masked in logs.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// BatchConfig holds configuration specific to the batch processing engine.
type BatchConfig struct {
	// JobName is the job launched when none is given on the command line.
	JobName string `yaml:"job_name"`
	// ChunkSize is the default chunk size for chunk-oriented steps.
	ChunkSize int `yaml:"chunk_size"`
	// RunIDStrategy selects how fresh run ids are minted: sequence, uuid or timestamp.
	RunIDStrategy string `yaml:"run_id_strategy"`
	// ItemRetry is the item-level retry configuration.
	ItemRetry ItemRetryConfig `yaml:"item_retry"`
	// ItemSkip is the item-level skip configuration.
	ItemSkip ItemSkipConfig `yaml:"item_skip"`
}

// FaultPolicy converts the retry and skip settings into the policy used by chunk steps.
func (b BatchConfig) FaultPolicy() model.FaultPolicy {
	return model.FaultPolicy{
		SkippableErrors: append([]string(nil), b.ItemSkip.SkippableExceptions...),
		SkipLimit:       b.ItemSkip.SkipLimit,
		RetryableErrors: append([]string(nil), b.ItemRetry.RetryableExceptions...),
		RetryLimit:      b.ItemRetry.MaxAttempts,
		RetryBackoff:    time.Duration(b.ItemRetry.InitialInterval) * time.Millisecond,
	}
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG", "TRACE").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// JobRepositoryConfig selects where execution metadata lives.
type JobRepositoryConfig struct {
	// Type is "inmemory" or "sql".
	Type string `yaml:"type"`
	// DBRef names the database connection used by the sql repository.
	DBRef string `yaml:"db_ref"`
	// Migrate applies the embedded metadata migrations at startup.
	Migrate bool `yaml:"migrate"`
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	JobRepository JobRepositoryConfig `yaml:"job_repository"`
}

// MetricsConfig configures the metric recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "prometheus" or "otlp".
	Exporter string `yaml:"exporter"`
	// ListenAddress is where the Prometheus /metrics endpoint is served.
	ListenAddress string `yaml:"listen_address"`
	// OTLPEndpoint and OTLPProtocol ("grpc" or "http") configure the OTLP metric exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPProtocol string `yaml:"otlp_protocol"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
}

// TelemetryConfig groups metrics and tracing.
type TelemetryConfig struct {
	ServiceName string        `yaml:"service_name"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// ExportConfig configures the optional parquet export step.
type ExportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	StorageRef  string `yaml:"storage_ref"`
	OutputPath  string `yaml:"output_path"`
	Compression string `yaml:"compression"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Security       SecurityConfig       `yaml:"security"`
	Export         ExportConfig         `yaml:"export"`
	// Database holds named database connection maps, decoded on demand into DatabaseConfig.
	Database map[string]interface{} `yaml:"database"`
	// Storage holds named storage connection maps, decoded on demand into StorageConfig.
	Storage map[string]interface{} `yaml:"storage"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
		},
		Batch: BatchConfig{
			ChunkSize:     10,
			RunIDStrategy: "sequence",
			ItemRetry: ItemRetryConfig{
				MaxAttempts:     1,
				InitialInterval: 100,
			},
		},
		Infrastructure: InfrastructureConfig{
			JobRepository: JobRepositoryConfig{Type: RepositoryTypeInMemory},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "chunkbatch",
			Metrics:     MetricsConfig{Exporter: "prometheus", ListenAddress: ":9090", OTLPProtocol: "grpc"},
			Tracing:     TracingConfig{Protocol: "grpc"},
		},
		Security: SecurityConfig{
			MaskedParameterKeys: []string{"password", "api_key", "secret"},
		},
		Export: ExportConfig{
			OutputPath:  "export/people.parquet",
			Compression: "SNAPPY",
		},
		Database: map[string]interface{}{},
		Storage:  map[string]interface{}{},
	}
}
