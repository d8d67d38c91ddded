// Package sqlite registers the SQLite dialect with the gorm adapter.
package sqlite

import (
	"errors"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(DSN(cfg)), nil
	})
}

// DSN is the database file path with foreign keys enabled, WAL journaling so a cursor
// can stay open while chunks commit, and a busy timeout so concurrent writers wait for
// the write lock instead of failing.
func DSN(c config.DatabaseConfig) string {
	sep := "?"
	if strings.Contains(c.Database, "?") {
		sep = "&"
	}
	return c.Database + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}
