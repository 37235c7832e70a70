package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Engine kinds accepted for configured datasources.
const (
	EnginePostgres = "postgresql"
	EngineMySQL    = "mysql"
	EngineSQLite   = "sqlite"
	EngineMSSQL    = "mssql"
	EngineMongoDB  = "mongodb"
	EngineRedis    = "redis"
)

const (
	minExecTimeout = 15 * time.Second
	maxExecTimeout = 30 * time.Second
)

// Config holds all configuration for querygate.
// Values come from config.yaml with environment variable overrides.
// Secrets (passwords, keys) only come from environment variables.
type Config struct {
	Server         ServerConfig              `yaml:"server"`
	EngineDatabase DatabaseConfig            `yaml:"engine_database"`
	Redis          RedisConfig               `yaml:"redis"`
	Auth           AuthConfig                `yaml:"auth"`
	LLM            LLMConfig                 `yaml:"llm"`
	Datasources    map[string]DatasourceSpec `yaml:"datasources"`
	Query          QueryConfig               `yaml:"query"`
	MCP            MCPConfig                 `yaml:"mcp"`
	Storage        StorageConfig             `yaml:"storage"`
	Metrics        MetricsConfig             `yaml:"metrics"`

	Version string `yaml:"-"` // Set at load time
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	BindAddr     string        `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port         string        `yaml:"port" env:"PORT" env-default:"3443"`
	Env          string        `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL" env-default:""`
	CORSOrigins  []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173,http://127.0.0.1:5173"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"120s"`
}

// DatabaseConfig holds the PostgreSQL settings for the application store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"querygate"`
	Password       string `yaml:"-" env:"PGPASSWORD"`
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"querygate"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the optional Redis settings. An empty host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AuthConfig holds token issuance and validation settings.
type AuthConfig struct {
	JWTSecret    string        `yaml:"-" env:"JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"30m"`
	CookieName   string        `yaml:"cookie_name" env:"AUTH_COOKIE_NAME" env-default:"access_token"`
	CookieSecure bool          `yaml:"cookie_secure" env:"AUTH_COOKIE_SECURE" env-default:"false"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs for external identity providers.
	JWKSEndpointsStr string            `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`
	JWKSEndpoints    map[string]string `yaml:"-"`

	BootstrapAdmin         string `yaml:"bootstrap_admin" env:"BOOTSTRAP_ADMIN" env-default:""`
	BootstrapAdminPassword string `yaml:"-" env:"ADMIN_PASSWORD"`
}

// ProviderConfig describes one named model provider.
// Kind "openai" covers every OpenAI-compatible endpoint (ChatGPT, Groq, Gemini).
type ProviderConfig struct {
	Kind      string `yaml:"kind"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey resolves the provider's key from its environment variable.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// TranscriptionConfig selects the provider and model used for speech to text.
type TranscriptionConfig struct {
	Provider string `yaml:"provider" env:"TRANSCRIPTION_PROVIDER" env-default:"chatgpt"`
	Model    string `yaml:"model" env:"TRANSCRIPTION_MODEL" env-default:"whisper-1"`
}

// LLMConfig holds model provider settings.
type LLMConfig struct {
	DefaultProvider  string                    `yaml:"default_provider" env:"LLM_DEFAULT_PROVIDER" env-default:"chatgpt"`
	Providers        map[string]ProviderConfig `yaml:"providers"`
	Temperature      float32                   `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	MaxTokens        int                       `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2000"`
	RequestTimeout   time.Duration             `yaml:"request_timeout" env:"LLM_REQUEST_TIMEOUT" env-default:"60s"`
	ResponseCacheTTL time.Duration             `yaml:"response_cache_ttl" env:"LLM_RESPONSE_CACHE_TTL" env-default:"1h"`
	Transcription    TranscriptionConfig       `yaml:"transcription"`
}

// DatasourceSpec describes one queryable target database.
type DatasourceSpec struct {
	Name           string `yaml:"name"`
	Engine         string `yaml:"engine"`
	AllowMutations bool   `yaml:"allow_mutations"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	PasswordEnv    string `yaml:"password_env"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"ssl_mode"`
	Path           string `yaml:"path"`
	URI            string `yaml:"uri"`
	DB             int    `yaml:"db"`
}

// Params flattens the spec into the generic map consumed by adapter factories.
func (d DatasourceSpec) Params() map[string]any {
	params := map[string]any{}
	if d.Host != "" {
		params["host"] = ResolveHostForDocker(d.Host)
	}
	if d.Port != 0 {
		params["port"] = d.Port
	}
	if d.User != "" {
		params["user"] = d.User
	}
	if d.PasswordEnv != "" {
		params["password"] = os.Getenv(d.PasswordEnv)
	}
	if d.Database != "" {
		params["database"] = d.Database
	}
	if d.SSLMode != "" {
		params["ssl_mode"] = d.SSLMode
	}
	if d.Path != "" {
		params["path"] = d.Path
	}
	if d.URI != "" {
		params["uri"] = d.URI
	}
	params["db"] = d.DB
	return params
}

// QueryConfig bounds query execution and conversation size.
type QueryConfig struct {
	ExecTimeout   time.Duration `yaml:"exec_timeout" env:"QUERY_EXEC_TIMEOUT" env-default:"30s"`
	ContextLimit  int           `yaml:"context_limit" env:"QUERY_CONTEXT_LIMIT" env-default:"10"`
	MaxRows       int           `yaml:"max_rows" env:"QUERY_MAX_ROWS" env-default:"1000"`
	SampleRows    int           `yaml:"sample_rows" env:"QUERY_SAMPLE_ROWS" env-default:"10"`
	HistoryWindow int           `yaml:"history_window" env:"QUERY_HISTORY_WINDOW" env-default:"0"`
}

// MCPConfig holds settings for both the exposed MCP server and outbound MCP clients.
type MCPConfig struct {
	ServerEnabled  bool          `yaml:"server_enabled" env:"MCP_SERVER_ENABLED" env-default:"true"`
	ClientTimeout  time.Duration `yaml:"client_timeout" env:"MCP_CLIENT_TIMEOUT" env-default:"20s"`
	MaxToolRounds  int           `yaml:"max_tool_rounds" env:"MCP_MAX_TOOL_ROUNDS" env-default:"1"`
	CredentialsKey string        `yaml:"-" env:"QG_CREDENTIALS_KEY"`
}

// StorageConfig holds the optional S3-compatible audio archive settings.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:""`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"querygate-audio"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	UseSSL          bool   `yaml:"use_ssl" env:"S3_USE_SSL" env-default:"false"`
	Prefix          string `yaml:"prefix" env:"S3_PREFIX" env-default:"transcriptions"`
	AccessKeyID     string `yaml:"-" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"-" env:"S3_SECRET_ACCESS_KEY"`
}

// Enabled reports whether the audio archive is configured.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != ""
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// Load reads config.yaml with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads the given YAML file with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)

	c.Query.ExecTimeout = ClampExecTimeout(c.Query.ExecTimeout)
	if c.Query.ContextLimit <= 0 {
		c.Query.ContextLimit = 10
	}
	if c.Query.HistoryWindow <= 0 {
		c.Query.HistoryWindow = c.Query.ContextLimit
	}
	if c.Query.MaxRows <= 0 {
		c.Query.MaxRows = 1000
	}
	if c.Query.SampleRows <= 0 {
		c.Query.SampleRows = 10
	}

	if c.Auth.JWTSecret == "" {
		if !c.IsLocal() {
			return fmt.Errorf("JWT_SECRET is required outside local environments")
		}
		c.Auth.JWTSecret = "querygate-local-dev-secret"
	}

	if c.LLM.Providers == nil {
		c.LLM.Providers = DefaultProviders()
	}
	for name, p := range c.LLM.Providers {
		if p.Kind != "openai" && p.Kind != "anthropic" {
			return fmt.Errorf("llm provider %q: unsupported kind %q", name, p.Kind)
		}
	}
	if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
		return fmt.Errorf("llm default_provider %q is not configured", c.LLM.DefaultProvider)
	}

	for id, ds := range c.Datasources {
		if err := ds.validate(); err != nil {
			return fmt.Errorf("datasource %q: %w", id, err)
		}
		if ds.Name == "" {
			ds.Name = id
			c.Datasources[id] = ds
		}
	}

	if c.Server.BaseURL == "" {
		c.Server.BaseURL = (&url.URL{Scheme: "http", Host: "localhost:" + c.Server.Port}).String()
	}
	return nil
}

func (d DatasourceSpec) validate() error {
	switch d.Engine {
	case EnginePostgres, EngineMySQL, EngineMSSQL:
		if d.Host == "" {
			return fmt.Errorf("host is required for %s", d.Engine)
		}
	case EngineSQLite:
		if d.Path == "" {
			return fmt.Errorf("path is required for sqlite")
		}
	case EngineMongoDB:
		if d.URI == "" || d.Database == "" {
			return fmt.Errorf("uri and database are required for mongodb")
		}
	case EngineRedis:
		if d.Host == "" {
			return fmt.Errorf("host is required for redis")
		}
	default:
		return fmt.Errorf("unsupported engine %q", d.Engine)
	}
	return nil
}

// IsLocal reports whether the server runs in a development environment.
func (c *Config) IsLocal() bool {
	return c.Server.Env == "local" || c.Server.Env == "dev"
}

// DatasourceIDs returns the configured database ids in sorted order.
func (c *Config) DatasourceIDs() []string {
	ids := make([]string, 0, len(c.Datasources))
	for id := range c.Datasources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProviderNames returns the configured provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.LLM.Providers))
	for name := range c.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultProviders returns the built-in provider table used when none is configured.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"chatgpt": {Kind: "openai", Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY"},
		"groq":    {Kind: "openai", Endpoint: "https://api.groq.com/openai/v1", Model: "llama-3.3-70b-versatile", APIKeyEnv: "GROQ_API_KEY"},
		"gemini":  {Kind: "openai", Endpoint: "https://generativelanguage.googleapis.com/v1beta/openai/", Model: "gemini-2.0-flash", APIKeyEnv: "GEMINI_API_KEY"},
		"claude":  {Kind: "anthropic", Model: "claude-3-5-sonnet-latest", APIKeyEnv: "ANTHROPIC_API_KEY"},
	}
}

// ClampExecTimeout bounds a query execution timeout to the supported window.
// Zero selects the upper bound.
func ClampExecTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return maxExecTimeout
	case d < minExecTimeout:
		return minExecTimeout
	case d > maxExecTimeout:
		return maxExecTimeout
	}
	return d
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string for the application store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
