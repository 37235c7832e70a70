package datasource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/querygate/pkg/models"
)

// SQLDialect holds what differs between database/sql engines.
type SQLDialect struct {
	Engine string
	// Quote quotes one identifier part.
	Quote func(name string) string
	// SampleQuery renders a bounded SELECT over an already quoted object.
	SampleQuery func(quoted string, limit int) string
	Convert     ValueConverter
}

// LimitSample is the SampleQuery for dialects that support LIMIT.
func LimitSample(quoted string, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoted, limit)
}

// SQLAdapter implements everything but DiscoverSchema for database/sql engines.
// Engine packages embed it.
type SQLAdapter struct {
	DB      *sql.DB
	Dialect SQLDialect
}

func (a *SQLAdapter) Engine() string { return a.Dialect.Engine }

func (a *SQLAdapter) TestConnection(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", a.Dialect.Engine, err)
	}
	return nil
}

// QuoteIdentifier quotes each dot-separated part of name.
func (a *SQLAdapter) QuoteIdentifier(name string) string {
	return QuoteParts(name, a.Dialect.Quote)
}

func (a *SQLAdapter) Execute(ctx context.Context, query string, args []any, maxRows int) (*models.ResultEnvelope, error) {
	return QuerySQL(ctx, a.DB, query, args, maxRows, a.Dialect.Convert)
}

func (a *SQLAdapter) Sample(ctx context.Context, entry models.SchemaEntry, limit int) (*models.ResultEnvelope, error) {
	return a.Execute(ctx, a.Dialect.SampleQuery(a.QuoteIdentifier(entry.Name), limit), nil, limit)
}

func (a *SQLAdapter) Close() error {
	return a.DB.Close()
}

// QuoteParts splits name on dots and quotes each part with quote.
func QuoteParts(name string, quote func(string) string) string {
	out := make([]byte, 0, len(name)+4)
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			if start > 0 {
				out = append(out, '.')
			}
			out = append(out, quote(name[start:i])...)
			start = i + 1
		}
	}
	return string(out)
}
