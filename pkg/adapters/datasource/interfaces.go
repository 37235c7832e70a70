// Package datasource defines the engine-neutral adapter contract used to
// discover schema, sample objects and run queries against target databases.
// Engine implementations live in subpackages and register themselves in init.
package datasource

import (
	"context"

	"github.com/ekaya-inc/querygate/pkg/models"
)

// Adapter talks to one configured target database. Implementations hold
// their own connection pool and are safe for concurrent use.
type Adapter interface {
	// Engine returns the configured engine name, e.g. "postgresql".
	Engine() string

	// TestConnection verifies the database is reachable with the configured credentials.
	TestConnection(ctx context.Context) error

	// DiscoverSchema lists tables, views, collections, indexes or keys.
	DiscoverSchema(ctx context.Context) ([]models.SchemaEntry, error)

	// Sample returns up to limit rows or documents of a discovered object.
	Sample(ctx context.Context, entry models.SchemaEntry, limit int) (*models.ResultEnvelope, error)

	// Execute runs a single validated statement. SQL engines receive
	// dialect placeholders in query and their values in args. Row reads
	// stop at maxRows. Engine failures are returned as errors; the caller
	// decides how to surface them.
	Execute(ctx context.Context, query string, args []any, maxRows int) (*models.ResultEnvelope, error)

	// QuoteIdentifier quotes a table or column name for the dialect.
	QuoteIdentifier(name string) string

	// Close releases the adapter's pool.
	Close() error
}

// Factory opens an adapter from the flattened datasource parameters.
type Factory func(ctx context.Context, params map[string]any) (Adapter, error)
