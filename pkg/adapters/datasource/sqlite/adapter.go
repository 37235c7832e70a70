// Package sqlite implements the SQLite datasource adapter on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
)

const engineName = "sqlite"

// Config points at a database file.
type Config struct {
	Path string
}

// FromMap builds a Config. "path" is preferred, "database" is accepted.
func FromMap(params map[string]any) (*Config, error) {
	path := datasource.StringParam(params, "path", datasource.StringParam(params, "database", ""))
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return &Config{Path: path}, nil
}

// Adapter talks to a SQLite file through database/sql.
type Adapter struct {
	*datasource.SQLAdapter
}

// NewAdapter opens the database file.
func NewAdapter(cfg *Config) (*Adapter, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// every connection to :memory: would see a different database
	if cfg.Path == ":memory:" || strings.Contains(cfg.Path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
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
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{Engine: engineName, DisplayName: "SQLite"},
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
