// Package redis implements the Redis datasource adapter. Queries are single
// command lines such as `HGETALL user:1`.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
	"github.com/ekaya-inc/querygate/pkg/models"
)

const (
	engineName = "redis"

	// maxScanKeys bounds schema discovery.
	maxScanKeys = 100
)

// Config contains Redis connection options.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// FromMap builds a Config from datasource parameters.
func FromMap(params map[string]any) (*Config, error) {
	cfg := &Config{
		Host:     datasource.StringParam(params, "host", ""),
		Port:     datasource.IntParam(params, "port", 6379),
		Password: datasource.StringParam(params, "password", ""),
		DB:       datasource.IntParam(params, "db", 0),
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	return cfg, nil
}

// Adapter runs commands against one Redis logical database.
type Adapter struct {
	client redis.UniversalClient
}

// NewAdapter creates a client for cfg.
func NewAdapter(cfg *Config) *Adapter {
	return newAdapter(redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 5,
	}))
}

func newAdapter(client redis.UniversalClient) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Engine() string { return engineName }

func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// QuoteIdentifier quotes a key for use in a command line when it contains
// whitespace or quotes.
func (a *Adapter) QuoteIdentifier(name string) string {
	if name != "" && !strings.ContainsAny(name, " \t\"'") {
		return name
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name) + `"`
}

func (a *Adapter) Close() error { return a.client.Close() }

// Execute runs one command line and returns its reply as json_result.
// A nil reply is returned as JSON null.
func (a *Adapter) Execute(ctx context.Context, query string, _ []any, _ int) (*models.ResultEnvelope, error) {
	args, err := SplitCommand(query)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}

	cmdArgs := make([]any, len(args))
	for i, arg := range args {
		cmdArgs[i] = arg
	}

	reply, err := a.client.Do(ctx, cmdArgs...).Result()
	if errors.Is(err, redis.Nil) {
		return models.NewJSON(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return models.NewJSON(NormalizeReply(reply)), nil
}

// Sample reads a key's value with the read command matching its type.
func (a *Adapter) Sample(ctx context.Context, entry models.SchemaEntry, limit int) (*models.ResultEnvelope, error) {
	keyType := entry.DataType
	if keyType == "" {
		t, err := a.client.Type(ctx, entry.Name).Result()
		if err != nil {
			return nil, fmt.Errorf("type of %s: %w", entry.Name, err)
		}
		keyType = t
	}

	stop := int64(limit - 1)
	var (
		reply any
		err   error
	)
	switch keyType {
	case "string":
		reply, err = a.client.Get(ctx, entry.Name).Result()
	case "hash":
		reply, err = a.client.HGetAll(ctx, entry.Name).Result()
	case "list":
		reply, err = a.client.LRange(ctx, entry.Name, 0, stop).Result()
	case "set":
		reply, err = a.client.SRandMemberN(ctx, entry.Name, int64(limit)).Result()
	case "zset":
		reply, err = a.client.ZRangeWithScores(ctx, entry.Name, 0, stop).Result()
	case "none":
		return models.NewJSON(nil), nil
	default:
		return models.NewJSON(map[string]any{"type": keyType}), nil
	}
	if errors.Is(err, redis.Nil) {
		return models.NewJSON(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", entry.Name, err)
	}
	return models.NewJSON(NormalizeReply(reply)), nil
}

// DiscoverSchema lists up to maxScanKeys keys with their types.
func (a *Adapter) DiscoverSchema(ctx context.Context) ([]models.SchemaEntry, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := a.client.Scan(ctx, cursor, "*", maxScanKeys).Result()
		if err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 || len(keys) >= maxScanKeys {
			break
		}
	}
	if len(keys) > maxScanKeys {
		keys = keys[:maxScanKeys]
	}

	pipe := a.client.Pipeline()
	types := make([]*redis.StatusCmd, len(keys))
	for i, key := range keys {
		types[i] = pipe.Type(ctx, key)
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("key types: %w", err)
		}
	}

	entries := make([]models.SchemaEntry, 0, len(keys))
	for i, key := range keys {
		entries = append(entries, models.SchemaEntry{Name: key, Kind: models.EntryKey, DataType: types[i].Val()})
	}
	return entries, nil
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{Engine: engineName, DisplayName: "Redis"},
		Factory: func(_ context.Context, params map[string]any) (datasource.Adapter, error) {
			cfg, err := FromMap(params)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg), nil
		},
	})
}

var _ datasource.Adapter = (*Adapter)(nil)
