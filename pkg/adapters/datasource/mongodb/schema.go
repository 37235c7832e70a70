package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ekaya-inc/querygate/pkg/models"
)

// DiscoverSchema lists collections with fields taken from one sampled
// document, followed by their secondary indexes.
func (a *Adapter) DiscoverSchema(ctx context.Context) ([]models.SchemaEntry, error) {
	names, err := a.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)

	var entries, indexes []models.SchemaEntry
	for _, name := range names {
		coll := a.db.Collection(name)

		entry := models.SchemaEntry{Name: name, Kind: models.EntryCollection}
		var doc bson.D
		err := coll.FindOne(ctx, bson.D{}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
		case err != nil:
			return nil, fmt.Errorf("sample %s: %w", name, err)
		default:
			entry.Columns = fieldsOf(doc)
		}
		entries = append(entries, entry)

		idx, err := a.indexesOf(ctx, coll)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx...)
	}
	return append(entries, indexes...), nil
}

func fieldsOf(doc bson.D) []models.SchemaColumn {
	cols := make([]models.SchemaColumn, 0, len(doc))
	for _, elem := range doc {
		col := models.SchemaColumn{Name: elem.Key, Type: bsonTypeName(elem.Value)}
		if elem.Key == "_id" {
			col.Extra = "PK"
		}
		cols = append(cols, col)
	}
	return cols
}

func (a *Adapter) indexesOf(ctx context.Context, coll *mongo.Collection) ([]models.SchemaEntry, error) {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes of %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var entries []models.SchemaEntry
	for cursor.Next(ctx) {
		name, ok := cursor.Current.Lookup("name").StringValueOK()
		if !ok || name == "_id_" {
			continue
		}
		entries = append(entries, models.SchemaEntry{Name: name, Kind: models.EntryIndex, Parent: coll.Name()})
	}
	return entries, cursor.Err()
}

func bsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int32, int64:
		return "int"
	case float64:
		return "double"
	case bool:
		return "bool"
	case bson.D, bson.M:
		return "object"
	case bson.A:
		return "array"
	case primitive.ObjectID:
		return "objectId"
	case primitive.DateTime:
		return "date"
	case primitive.Decimal128:
		return "decimal"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
