package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/config"
	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// AdapterSource hands out open adapters per configured database.
// *datasource.ConnectionManager implements it.
type AdapterSource interface {
	Get(ctx context.Context, dbID, engine string, params map[string]any) (datasource.Adapter, error)
}

// SchemaCatalog is a read-through view of the configured databases and their live metadata.
type SchemaCatalog interface {
	// Databases returns every configured database ordered by id.
	Databases() []models.DatabaseDescriptor
	// Database returns one descriptor or ErrUnknownDatabase.
	Database(dbID string) (models.DatabaseDescriptor, error)
	// Adapter opens (or reuses) the adapter for dbID.
	Adapter(ctx context.Context, dbID string) (datasource.Adapter, models.DatabaseDescriptor, error)
	// GetSchema discovers the entries of one database.
	GetSchema(ctx context.Context, dbID string) (*models.DatabaseSchema, error)
	// GetAllSchemas discovers every database. A failing database is reported
	// through its Error field; the call itself never fails.
	GetAllSchemas(ctx context.Context) map[string]*models.DatabaseSchema
	// SampleData returns the first rows or documents of a discovered object.
	SampleData(ctx context.Context, dbID, object string) (*models.ResultEnvelope, error)
	// SchemaForPrompt renders the schema as compact text for model prompts.
	SchemaForPrompt(ctx context.Context, dbID string) (string, error)
}

type schemaCatalog struct {
	datasources map[string]config.DatasourceSpec
	adapters    AdapterSource
	sampleRows  int
	logger      *zap.Logger
}

// NewSchemaCatalog creates a catalog over the configured datasources.
func NewSchemaCatalog(datasources map[string]config.DatasourceSpec, adapters AdapterSource, sampleRows int, logger *zap.Logger) SchemaCatalog {
	if sampleRows <= 0 {
		sampleRows = 10
	}
	return &schemaCatalog{
		datasources: datasources,
		adapters:    adapters,
		sampleRows:  sampleRows,
		logger:      logger.Named("catalog"),
	}
}

var _ SchemaCatalog = (*schemaCatalog)(nil)

func (c *schemaCatalog) Databases() []models.DatabaseDescriptor {
	ids := make([]string, 0, len(c.datasources))
	for id := range c.datasources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	dbs := make([]models.DatabaseDescriptor, 0, len(ids))
	for _, id := range ids {
		dbs = append(dbs, describe(id, c.datasources[id]))
	}
	return dbs
}

func (c *schemaCatalog) Database(dbID string) (models.DatabaseDescriptor, error) {
	spec, ok := c.datasources[dbID]
	if !ok {
		return models.DatabaseDescriptor{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownDatabase, dbID)
	}
	return describe(dbID, spec), nil
}

func (c *schemaCatalog) Adapter(ctx context.Context, dbID string) (datasource.Adapter, models.DatabaseDescriptor, error) {
	desc, err := c.Database(dbID)
	if err != nil {
		return nil, desc, err
	}
	adapter, err := c.adapters.Get(ctx, dbID, desc.Engine, c.datasources[dbID].Params())
	if err != nil {
		return nil, desc, err
	}
	return adapter, desc, nil
}

func (c *schemaCatalog) GetSchema(ctx context.Context, dbID string) (*models.DatabaseSchema, error) {
	adapter, desc, err := c.Adapter(ctx, dbID)
	if err != nil {
		return nil, err
	}

	entries, err := adapter.DiscoverSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover schema for %s: %w", dbID, err)
	}
	if entries == nil {
		entries = []models.SchemaEntry{}
	}

	return &models.DatabaseSchema{
		Name:    desc.Name,
		Engine:  desc.Engine,
		Kind:    desc.Kind,
		Entries: entries,
	}, nil
}

func (c *schemaCatalog) GetAllSchemas(ctx context.Context) map[string]*models.DatabaseSchema {
	all := make(map[string]*models.DatabaseSchema, len(c.datasources))
	for _, desc := range c.Databases() {
		schema, err := c.GetSchema(ctx, desc.ID)
		if err != nil {
			c.logger.Warn("Schema discovery failed",
				zap.String("db_id", desc.ID),
				zap.String("error", logging.SanitizeError(err)))
			schema = &models.DatabaseSchema{
				Name:    desc.Name,
				Engine:  desc.Engine,
				Kind:    desc.Kind,
				Entries: []models.SchemaEntry{},
				Error:   logging.SanitizeError(err),
			}
		}
		all[desc.ID] = schema
	}
	return all
}

func (c *schemaCatalog) SampleData(ctx context.Context, dbID, object string) (*models.ResultEnvelope, error) {
	adapter, _, err := c.Adapter(ctx, dbID)
	if err != nil {
		return nil, err
	}

	entries, err := adapter.DiscoverSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover schema for %s: %w", dbID, err)
	}

	entry, ok := ResolveObject(entries, object)
	if !ok {
		return nil, fmt.Errorf("%w: object %q in %s", apperrors.ErrNotFound, object, dbID)
	}

	result, err := adapter.Sample(ctx, entry, c.sampleRows)
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s: %w", entry.Name, err)
	}
	return result, nil
}

func (c *schemaCatalog) SchemaForPrompt(ctx context.Context, dbID string) (string, error) {
	schema, err := c.GetSchema(ctx, dbID)
	if err != nil {
		return "", err
	}
	return RenderSchema(schema.Entries), nil
}

func describe(id string, spec config.DatasourceSpec) models.DatabaseDescriptor {
	name := spec.Name
	if name == "" {
		name = id
	}
	return models.DatabaseDescriptor{
		ID:             id,
		Name:           name,
		Engine:         spec.Engine,
		Kind:           models.KindForEngine(spec.Engine),
		AllowMutations: spec.AllowMutations,
	}
}

// ResolveObject finds a sampleable entry by exact name, then case-insensitively,
// then by singular/plural form. Indexes are never matched.
func ResolveObject(entries []models.SchemaEntry, name string) (models.SchemaEntry, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.SchemaEntry{}, false
	}

	candidates := make([]models.SchemaEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind != models.EntryIndex {
			candidates = append(candidates, e)
		}
	}

	for _, e := range candidates {
		if e.Name == name {
			return e, true
		}
	}
	for _, e := range candidates {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}

	singular := strings.ToLower(inflection.Singular(name))
	for _, e := range candidates {
		if strings.ToLower(inflection.Singular(e.Name)) == singular {
			return e, true
		}
	}
	return models.SchemaEntry{}, false
}

// RenderSchema formats entries one per line, e.g.
// "Table orders: id (integer, PK), customer_id (integer, FK -> customers.id)".
func RenderSchema(entries []models.SchemaEntry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case models.EntryIndex:
			fmt.Fprintf(&b, "Index %s on %s", e.Name, e.Parent)
			if len(e.Columns) > 0 {
				names := make([]string, len(e.Columns))
				for i, col := range e.Columns {
					names[i] = col.Name
				}
				fmt.Fprintf(&b, " (%s)", strings.Join(names, ", "))
			}
		case models.EntryKey:
			fmt.Fprintf(&b, "Key %s", e.Name)
			if e.DataType != "" {
				fmt.Fprintf(&b, " (%s)", e.DataType)
			}
		default:
			fmt.Fprintf(&b, "%s %s", entryLabel(e.Kind), e.Name)
			if len(e.Columns) > 0 {
				cols := make([]string, len(e.Columns))
				for i, col := range e.Columns {
					cols[i] = renderColumn(col)
				}
				fmt.Fprintf(&b, ": %s", strings.Join(cols, ", "))
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderColumn(col models.SchemaColumn) string {
	switch {
	case col.Type != "" && col.Extra != "":
		return fmt.Sprintf("%s (%s, %s)", col.Name, col.Type, col.Extra)
	case col.Type != "":
		return fmt.Sprintf("%s (%s)", col.Name, col.Type)
	case col.Extra != "":
		return fmt.Sprintf("%s (%s)", col.Name, col.Extra)
	}
	return col.Name
}

func entryLabel(kind models.SchemaEntryKind) string {
	switch kind {
	case models.EntryView:
		return "View"
	case models.EntryCollection:
		return "Collection"
	default:
		return "Table"
	}
}
