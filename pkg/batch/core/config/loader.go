package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      // EmbeddedConfig contains the raw bytes of the configuration file.
	EnvFilePath    string              `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
	Expander       EnvironmentExpander `optional:"true"`
}

// GlobalConfig is the configuration loaded by NewConfigProvider.
var GlobalConfig *Config

// GetMaskedParameterKeys returns the JobParameters keys whose values are masked in logs.
func GetMaskedParameterKeys() []string {
	if GlobalConfig == nil {
		return []string{}
	}
	return GlobalConfig.Security.MaskedParameterKeys
}

// LoadConfig loads configuration in four layers: defaults from NewConfig, the embedded YAML
// (with ${VAR} placeholders expanded), then environment variables named after the yaml path,
// e.g. BATCH_CHUNK_SIZE or DATABASE_METADATA_HOST. Variables from envFilePath (or ./.env)
// are loaded first and never override variables already set.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(exception.ModuleConfig, "failed to expand environment variables in embedded config", err, false, false)
	}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewBatchError(exception.ModuleConfig, "failed to unmarshal embedded config", err, false, false)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(exception.ModuleConfig, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads, validates and publishes *Config.
// It also applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, exception.NewBatchError(exception.ModuleConfig, "invalid configuration", err, false, false)
	}

	GlobalConfig = cfg

	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.System.Logging.Level)
	return cfg, nil
}

// Validate checks the settings that would otherwise fail late, in the middle of a run.
func Validate(cfg *Config) error {
	var result *multierror.Error

	if cfg.Batch.ChunkSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch.chunk_size must be positive, got %d", cfg.Batch.ChunkSize))
	}
	if cfg.Batch.ItemSkip.SkipLimit < 0 {
		result = multierror.Append(result, fmt.Errorf("batch.item_skip.skip_limit must not be negative, got %d", cfg.Batch.ItemSkip.SkipLimit))
	}
	if cfg.Batch.ItemRetry.MaxAttempts < 0 {
		result = multierror.Append(result, fmt.Errorf("batch.item_retry.max_attempts must not be negative, got %d", cfg.Batch.ItemRetry.MaxAttempts))
	}
	if err := checkExceptionClasses(cfg.Batch.ItemRetry.RetryableExceptions, "ItemRetry"); err != nil {
		result = multierror.Append(result, err)
	}
	if err := checkExceptionClasses(cfg.Batch.ItemSkip.SkippableExceptions, "ItemSkip"); err != nil {
		result = multierror.Append(result, err)
	}
	switch strings.ToLower(cfg.Batch.RunIDStrategy) {
	case "", "sequence", "uuid", "timestamp":
	default:
		result = multierror.Append(result, fmt.Errorf("batch.run_id_strategy '%s' is not one of sequence, uuid, timestamp", cfg.Batch.RunIDStrategy))
	}

	repo := cfg.Infrastructure.JobRepository
	switch repo.Type {
	case RepositoryTypeInMemory:
	case RepositoryTypeSQL:
		if _, err := cfg.DatabaseConfig(repo.DBRef); err != nil {
			result = multierror.Append(result, fmt.Errorf("infrastructure.job_repository.db_ref: %w", err))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("infrastructure.job_repository.type '%s' is not one of %s, %s", repo.Type, RepositoryTypeInMemory, RepositoryTypeSQL))
	}

	if m := cfg.Telemetry.Metrics; m.Enabled && m.Exporter != "prometheus" && m.Exporter != "otlp" {
		result = multierror.Append(result, fmt.Errorf("telemetry.metrics.exporter '%s' is not one of prometheus, otlp", m.Exporter))
	}
	if cfg.Export.Enabled {
		if _, err := cfg.StorageConfig(cfg.Export.StorageRef); err != nil {
			result = multierror.Append(result, fmt.Errorf("export.storage_ref: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// checkExceptionClasses validates that all exception class names in the provided list
// are registered in the exception registry.
func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown exception class: '%s'. Ensure it is registered", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map:
			loadConnectionMapsFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadConnectionMapsFromEnv overrides entries of a named connection map.
// DATABASE_METADATA_HOST=db sets field "host" of connection "metadata"; a connection
// that does not exist yet is created. Values stay strings and are converted on decode.
func loadConnectionMapsFromEnv(mapField reflect.Value, prefix string) {
	connections, ok := mapField.Interface().(map[string]interface{})
	if !ok {
		return
	}
	if connections == nil {
		connections = map[string]interface{}{}
		mapField.Set(reflect.ValueOf(connections))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		keyAndValue := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(keyAndValue) != 2 {
			continue
		}
		nameAndField := strings.SplitN(keyAndValue[0], "_", 2)
		if len(nameAndField) != 2 || nameAndField[0] == "" || nameAndField[1] == "" {
			continue
		}
		name, fieldName := strings.ToLower(nameAndField[0]), strings.ToLower(nameAndField[1])

		entry, ok := connections[name].(map[string]interface{})
		if !ok {
			entry = map[string]interface{}{}
			connections[name] = entry
		}
		entry[fieldName] = keyAndValue[1]
	}
}

// setField sets the value of a reflect.Value field based on its kind.
// Slices of strings are read as comma-separated lists.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
