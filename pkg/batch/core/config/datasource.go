package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" mapstructure:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type" mapstructure:"type"`         // Database type ("sqlite", "mysql", "postgres").
	Host     string     `yaml:"host" mapstructure:"host"`         // Database host address.
	Port     int        `yaml:"port" mapstructure:"port"`         // Database port number.
	Database string     `yaml:"database" mapstructure:"database"` // Database name, or the file path for SQLite.
	User     string     `yaml:"user" mapstructure:"user"`
	Password string     `yaml:"password" mapstructure:"password"`
	Sslmode  string     `yaml:"sslmode" mapstructure:"sslmode"`
	Pool     PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type" mapstructure:"type"`                         // "local" or "gcs".
	BucketName      string `yaml:"bucket_name" mapstructure:"bucket_name"`           // Bucket for object storage.
	BaseDir         string `yaml:"base_dir" mapstructure:"base_dir"`                 // Root directory for local storage.
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`                 // Custom endpoint, e.g. a GCS emulator.
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"` // Service account key for GCS.
}

// DatabaseConfig decodes the database connection called name.
func (c *Config) DatabaseConfig(name string) (DatabaseConfig, error) {
	var dbConfig DatabaseConfig
	raw, ok := c.Database[name]
	if !ok {
		return dbConfig, fmt.Errorf("database configuration '%s' not found", name)
	}
	if err := decode(raw, &dbConfig); err != nil {
		return dbConfig, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}
	return dbConfig, nil
}

// StorageConfig decodes the storage connection called name.
func (c *Config) StorageConfig(name string) (StorageConfig, error) {
	var storageConfig StorageConfig
	raw, ok := c.Storage[name]
	if !ok {
		return storageConfig, fmt.Errorf("storage configuration '%s' not found", name)
	}
	if err := decode(raw, &storageConfig); err != nil {
		return storageConfig, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return storageConfig, nil
}

// decode accepts string values for numeric fields, as produced by environment overrides.
func decode(raw interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
