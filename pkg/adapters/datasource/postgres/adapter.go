// Package postgres implements the PostgreSQL datasource adapter on pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
	"github.com/ekaya-inc/querygate/pkg/models"
)

const engineName = "postgresql"

// Adapter runs queries through a pgx pool.
type Adapter struct {
	pool *pgxpool.Pool
}

// NewAdapter opens a pool for cfg. The pool connects lazily.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres configuration: %w", err)
	}
	poolCfg.MaxConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Adapter{pool: pool}, nil
}

func (a *Adapter) Engine() string { return engineName }

func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// QuoteIdentifier quotes each dot-separated part, so "sales.orders"
// becomes "sales"."orders".
func (a *Adapter) QuoteIdentifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func (a *Adapter) Execute(ctx context.Context, query string, args []any, maxRows int) (*models.ResultEnvelope, error) {
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	if len(fields) == 0 {
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return models.NewAck(models.AckMessage, rows.CommandTag().RowsAffected()), nil
	}

	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		if maxRows > 0 && len(result) >= maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return models.NewTabular(columns, result), nil
}

func (a *Adapter) Sample(ctx context.Context, entry models.SchemaEntry, limit int) (*models.ResultEnvelope, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", a.QuoteIdentifier(entry.Name), limit)
	return a.Execute(ctx, query, nil, limit)
}

func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// normalize handles pgx-specific types before the shared conversion.
func normalize(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("%d months %d days %dus", val.Months, val.Days, val.Microseconds)
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		us := val.Microseconds
		return fmt.Sprintf("%02d:%02d:%02d", us/3_600_000_000, us/60_000_000%60, us/1_000_000%60)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	default:
		return datasource.NormalizeValue(v)
	}
}

var _ datasource.Adapter = (*Adapter)(nil)
