// Package mysql registers the MySQL dialect with the gorm adapter.
package mysql

import (
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(DSN(cfg)), nil
	})
}

// DSN builds the driver DSN for cfg: utf8mb4, parsed times in local time.
func DSN(cfg config.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	c := mysqldriver.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Loc = time.Local
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}
