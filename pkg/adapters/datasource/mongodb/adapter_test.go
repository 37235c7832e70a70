package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{"host": "mongo", "database": "shop"})
	require.NoError(t, err)
	assert.Equal(t, "mongodb://mongo:27017", cfg.URI)
	assert.Equal(t, "shop", cfg.Database)

	cfg, err = FromMap(map[string]any{"uri": "mongodb://a:b@x:1", "database": "shop"})
	require.NoError(t, err)
	assert.Equal(t, "mongodb://a:b@x:1", cfg.URI)

	_, err = FromMap(map[string]any{"database": "shop"})
	assert.Error(t, err)
	_, err = FromMap(map[string]any{"host": "mongo"})
	assert.Error(t, err)
}

func TestParseFindQuery(t *testing.T) {
	q, err := ParseFindQuery(`{"collection":"orders","filter":{"status":"paid","total":{"$gt":10}},"sort":{"total":-1},"limit":5}`)
	require.NoError(t, err)

	assert.Equal(t, "orders", q.Collection)
	assert.Equal(t, int64(5), q.Limit)
	require.Len(t, q.Filter, 2)
	assert.Equal(t, "status", q.Filter[0].Key)
	assert.Equal(t, "paid", q.Filter[0].Value)
	require.Len(t, q.Sort, 1)
	assert.Nil(t, q.Projection)
}

func TestParseFindQuery_ExtendedJSON(t *testing.T) {
	q, err := ParseFindQuery(`{"collection":"orders","filter":{"_id":{"$oid":"5f1d7a1b2c3d4e5f60718293"}}}`)
	require.NoError(t, err)

	require.Len(t, q.Filter, 1)
	id, ok := q.Filter[0].Value.(primitive.ObjectID)
	require.True(t, ok)
	assert.Equal(t, "5f1d7a1b2c3d4e5f60718293", id.Hex())
}

func TestParseFindQuery_MissingFilterMatchesAll(t *testing.T) {
	q, err := ParseFindQuery(`{"collection":"orders"}`)
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, q.Filter)
}

func TestParseFindQuery_Invalid(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`[1,2]`,
		`{"collection":"orders","filter":"x"}`,
		`{"collection":"orders","limit":"ten"}`,
		`{"collection":"orders","limit":-1}`,
	} {
		_, err := ParseFindQuery(raw)
		assert.Error(t, err, raw)
	}
}

func TestDocumentToJSON(t *testing.T) {
	id, err := primitive.ObjectIDFromHex("5f1d7a1b2c3d4e5f60718293")
	require.NoError(t, err)

	raw, err := bson.Marshal(bson.D{{Key: "_id", Value: id}, {Key: "name", Value: "Ada"}, {Key: "age", Value: int32(36)}})
	require.NoError(t, err)

	doc, err := documentToJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"$oid": "5f1d7a1b2c3d4e5f60718293"}, doc["_id"])
	assert.Equal(t, "Ada", doc["name"])
	assert.Equal(t, float64(36), doc["age"])
}

func TestFieldsOf(t *testing.T) {
	cols := fieldsOf(bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "tags", Value: bson.A{"a"}},
		{Key: "total", Value: 9.5},
	})

	require.Len(t, cols, 3)
	assert.Equal(t, "objectId", cols[0].Type)
	assert.Equal(t, "PK", cols[0].Extra)
	assert.Equal(t, "array", cols[1].Type)
	assert.Equal(t, "double", cols[2].Type)
}
