// Package mysql implements the MySQL/MariaDB datasource adapter.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
)

const engineName = "mysql"

// Config contains MySQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "", "true", "skip-verify", "preferred"
}

// FromMap builds a Config from datasource parameters.
func FromMap(params map[string]any) (*Config, error) {
	cfg := &Config{
		Host:     datasource.StringParam(params, "host", ""),
		Port:     datasource.IntParam(params, "port", 3306),
		User:     datasource.StringParam(params, "user", ""),
		Password: datasource.StringParam(params, "password", ""),
		Database: datasource.StringParam(params, "database", ""),
		TLS:      datasource.StringParam(params, "ssl_mode", ""),
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	return cfg, nil
}

// DSN renders the driver DSN. Times are parsed into time.Time in UTC.
func (c *Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.TLSConfig = c.TLS
	return mc.FormatDSN()
}

// Adapter talks to MySQL through database/sql.
type Adapter struct {
	*datasource.SQLAdapter
}

// NewAdapter opens a pool for cfg.
func NewAdapter(cfg *Config) (*Adapter, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newAdapter(db), nil
}

func newAdapter(db *sql.DB) *Adapter {
	return &Adapter{SQLAdapter: &datasource.SQLAdapter{
		DB: db,
		Dialect: datasource.SQLDialect{
			Engine:      engineName,
			Quote:       quoteIdent,
			SampleQuery: datasource.LimitSample,
		},
	}}
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{Engine: engineName, DisplayName: "MySQL"},
		Factory: func(_ context.Context, params map[string]any) (datasource.Adapter, error) {
			cfg, err := FromMap(params)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg)
		},
	})
}

var _ datasource.Adapter = (*Adapter)(nil)
