// Package mssql implements the SQL Server datasource adapter on go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
)

const engineName = "mssql"

// Config contains SQL Server connection options (SQL authentication).
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Encrypt maps ssl_mode: "disable" turns encryption off, "trust" keeps it
	// on without verifying the certificate.
	Encrypt                string
	TrustServerCertificate bool
}

// FromMap builds a Config from datasource parameters.
func FromMap(params map[string]any) (*Config, error) {
	cfg := &Config{
		Host:     datasource.StringParam(params, "host", ""),
		Port:     datasource.IntParam(params, "port", 1433),
		User:     datasource.StringParam(params, "user", ""),
		Password: datasource.StringParam(params, "password", ""),
		Database: datasource.StringParam(params, "database", ""),
		Encrypt:  "true",
	}
	switch datasource.StringParam(params, "ssl_mode", "") {
	case "disable":
		cfg.Encrypt = "disable"
	case "trust":
		cfg.TrustServerCertificate = true
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

// ConnectionString renders a sqlserver:// URL with escaped credentials.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Set("database", c.Database)
	query.Set("encrypt", c.Encrypt)
	if c.TrustServerCertificate {
		query.Set("TrustServerCertificate", "true")
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Adapter talks to SQL Server through database/sql.
type Adapter struct {
	*datasource.SQLAdapter
}

// NewAdapter opens a pool for cfg.
func NewAdapter(cfg *Config) (*Adapter, error) {
	db, err := sql.Open("sqlserver", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	db.SetMaxOpenConns(5)
	return newAdapter(db), nil
}

func newAdapter(db *sql.DB) *Adapter {
	return &Adapter{SQLAdapter: &datasource.SQLAdapter{
		DB: db,
		Dialect: datasource.SQLDialect{
			Engine:      engineName,
			Quote:       quoteName,
			SampleQuery: topSample,
			Convert:     convertValue,
		},
	}}
}

// quoteName mirrors QUOTENAME: brackets with ] doubled.
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

func topSample(quoted string, limit int) string {
	return fmt.Sprintf("SELECT TOP (%d) * FROM %s", limit, quoted)
}

// convertValue renders UNIQUEIDENTIFIER columns, which the driver returns as
// mixed-endian bytes, in their canonical form.
func convertValue(dbType string, v any) (any, bool) {
	raw, ok := v.([]byte)
	if !ok || !strings.EqualFold(dbType, "UNIQUEIDENTIFIER") {
		return nil, false
	}
	var id mssqldb.UniqueIdentifier
	if err := id.Scan(raw); err != nil {
		return nil, false
	}
	return id.String(), true
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{Engine: engineName, DisplayName: "Microsoft SQL Server"},
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
