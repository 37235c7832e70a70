package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
)

// Config contains PostgreSQL connection options.
type Config struct {
	URI      string // full connection URL; overrides the discrete fields
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
}

// FromMap builds a Config from datasource parameters.
func FromMap(params map[string]any) (*Config, error) {
	cfg := &Config{
		URI:      datasource.StringParam(params, "uri", ""),
		Host:     datasource.StringParam(params, "host", ""),
		Port:     datasource.IntParam(params, "port", 5432),
		User:     datasource.StringParam(params, "user", ""),
		Password: datasource.StringParam(params, "password", ""),
		Database: datasource.StringParam(params, "database", ""),
		SSLMode:  datasource.StringParam(params, "ssl_mode", "prefer"),
	}
	if cfg.URI != "" {
		return cfg, nil
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

// ConnectionString renders a URL with every user-supplied part escaped.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
