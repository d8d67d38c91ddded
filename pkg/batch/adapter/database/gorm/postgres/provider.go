// Package postgres registers the PostgreSQL dialect with the gorm adapter.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("postgres", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(DSN(cfg)), nil
	})
}

// DSN builds the key/value connection string expected by gorm.io/driver/postgres.
func DSN(c config.DatabaseConfig) string {
	port, sslmode := c.Port, c.Sslmode
	if port == 0 {
		port = 5432
	}
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslmode)
}
