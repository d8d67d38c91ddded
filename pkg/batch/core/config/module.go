package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts and provides *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.System.Logging
}

// NewBatchConfigProvider extracts and provides *BatchConfig from *Config.
func NewBatchConfigProvider(cfg *Config) *BatchConfig {
	return &cfg.Batch
}

// Module provides the loaded *Config and its sections to Fx.
// The application supplies EmbeddedConfig and, optionally, a string named "envFilePath".
var Module = fx.Options(
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewBatchConfigProvider),
)
