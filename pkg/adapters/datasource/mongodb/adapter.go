// Package mongodb implements the MongoDB datasource adapter. Queries are
// find-only JSON documents: {"collection": "...", "filter": {...}}.
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
	"github.com/ekaya-inc/querygate/pkg/models"
)

const (
	engineName = "mongodb"

	// DefaultLimit bounds find results when the query names no limit.
	DefaultLimit = 100
)

// Config contains MongoDB connection options.
type Config struct {
	URI      string
	Database string
}

// FromMap builds a Config from datasource parameters. A host is turned into
// a mongodb:// URI when no uri is given.
func FromMap(params map[string]any) (*Config, error) {
	cfg := &Config{
		URI:      datasource.StringParam(params, "uri", ""),
		Database: datasource.StringParam(params, "database", ""),
	}
	if cfg.URI == "" {
		host := datasource.StringParam(params, "host", "")
		if host == "" {
			return nil, fmt.Errorf("uri or host is required")
		}
		cfg.URI = fmt.Sprintf("mongodb://%s:%d", host, datasource.IntParam(params, "port", 27017))
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	return cfg, nil
}

// Adapter queries one MongoDB database.
type Adapter struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewAdapter connects a client for cfg. The driver connects lazily, so
// TestConnection is what proves reachability.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(5).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	return &Adapter{client: client, db: client.Database(cfg.Database)}, nil
}

func (a *Adapter) Engine() string { return engineName }

func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}
	return nil
}

// QuoteIdentifier returns the name unchanged; collection names are never
// spliced into query text.
func (a *Adapter) QuoteIdentifier(name string) string { return name }

func (a *Adapter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}

// FindQuery is a parsed find document.
type FindQuery struct {
	Collection string
	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Limit      int64
}

// ParseFindQuery parses the JSON query document. The filter, projection and
// sort members accept Extended JSON.
func ParseFindQuery(raw string) (*FindQuery, error) {
	if !gjson.Valid(raw) {
		return nil, errors.New("query must be a JSON document")
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, errors.New("query must be a JSON object")
	}

	q := &FindQuery{Collection: doc.Get("collection").String(), Filter: bson.D{}}
	var err error
	if q.Filter, err = extJSONMember(doc, "filter"); err != nil {
		return nil, err
	}
	if q.Projection, err = extJSONMember(doc, "projection"); err != nil {
		return nil, err
	}
	if q.Sort, err = extJSONMember(doc, "sort"); err != nil {
		return nil, err
	}
	if limit := doc.Get("limit"); limit.Exists() {
		if limit.Type != gjson.Number || limit.Int() < 0 {
			return nil, errors.New("limit must be a non-negative number")
		}
		q.Limit = limit.Int()
	}
	return q, nil
}

func extJSONMember(doc gjson.Result, name string) (bson.D, error) {
	member := doc.Get(name)
	if !member.Exists() || member.Type == gjson.Null {
		if name == "filter" {
			return bson.D{}, nil
		}
		return nil, nil
	}
	if !member.IsObject() {
		return nil, fmt.Errorf("%s must be a JSON object", name)
	}
	var out bson.D
	if err := bson.UnmarshalExtJSON([]byte(member.Raw), false, &out); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return out, nil
}

// Execute runs a find. A query without a collection targets the first
// collection of the database.
func (a *Adapter) Execute(ctx context.Context, query string, _ []any, maxRows int) (*models.ResultEnvelope, error) {
	q, err := ParseFindQuery(query)
	if err != nil {
		return nil, err
	}
	if q.Collection == "" {
		names, err := a.db.ListCollectionNames(ctx, bson.D{})
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		if len(names) == 0 {
			return nil, errors.New("database has no collections")
		}
		q.Collection = names[0]
	}

	limit := int64(DefaultLimit)
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}
	if maxRows > 0 && int64(maxRows) < limit {
		limit = int64(maxRows)
	}

	opts := options.Find().SetLimit(limit)
	if q.Projection != nil {
		opts.SetProjection(q.Projection)
	}
	if q.Sort != nil {
		opts.SetSort(q.Sort)
	}

	docs, err := a.find(ctx, q.Collection, q.Filter, opts)
	if err != nil {
		return nil, err
	}
	return models.NewJSON(docs), nil
}

func (a *Adapter) Sample(ctx context.Context, entry models.SchemaEntry, limit int) (*models.ResultEnvelope, error) {
	docs, err := a.find(ctx, entry.Name, bson.D{}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	return models.NewJSON(docs), nil
}

func (a *Adapter) find(ctx context.Context, collection string, filter bson.D, opts *options.FindOptions) ([]any, error) {
	cursor, err := a.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs := make([]any, 0)
	for cursor.Next(ctx) {
		doc, err := documentToJSON(cursor.Current)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

// documentToJSON renders a BSON document through relaxed Extended JSON so
// ObjectIDs and dates keep a stable textual form.
func documentToJSON(raw bson.Raw) (map[string]any, error) {
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(ext, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{Engine: engineName, DisplayName: "MongoDB"},
		Factory: func(ctx context.Context, params map[string]any) (datasource.Adapter, error) {
			cfg, err := FromMap(params)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg)
		},
	})
}

var _ datasource.Adapter = (*Adapter)(nil)
