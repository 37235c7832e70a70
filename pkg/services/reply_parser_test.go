package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGeneratedQuery_SQLWithParams(t *testing.T) {
	output := "```sql\nSELECT * FROM orders WHERE customer_id = :customer_id AND total > :min_total\n```\n----JSON----\n{\"customer_id\": 42, \"min_total\": 9.5}"

	got := ParseGeneratedQuery("postgresql", output)

	assert.Empty(t, got.Error)
	assert.Equal(t, QueryTypeSQL, got.QueryType)
	assert.Equal(t, "SELECT * FROM orders WHERE customer_id = :customer_id AND total > :min_total", got.RawQuery)
	assert.Equal(t, int64(42), got.Params["customer_id"])
	assert.Equal(t, 9.5, got.Params["min_total"])
}

func TestParseGeneratedQuery_SQLSeparatorVariants(t *testing.T) {
	for _, sep := range []string{"----JSON----", "-- json --", "---Json---"} {
		got := ParseGeneratedQuery("mysql", "SELECT 1\n"+sep+"\n{}")
		assert.Empty(t, got.Error, sep)
		assert.Equal(t, "SELECT 1", got.RawQuery, sep)
	}
}

func TestParseGeneratedQuery_SQLInvalidParams(t *testing.T) {
	got := ParseGeneratedQuery("postgresql", "SELECT :a\n----JSON----\n{not json}")
	assert.Equal(t, "LLM returned invalid JSON for parameters.", got.Error)
}

func TestParseGeneratedQuery_SQLWithoutSeparator(t *testing.T) {
	got := ParseGeneratedQuery("postgresql", "SELECT count(*) FROM orders")
	assert.Empty(t, got.Error)
	assert.Equal(t, "SELECT count(*) FROM orders", got.RawQuery)

	got = ParseGeneratedQuery("postgresql", "SELECT * FROM orders WHERE id = :id")
	assert.Equal(t, "LLM did not return the expected SQL----JSON---- format.", got.Error)
}

func TestParseGeneratedQuery_StripsThinking(t *testing.T) {
	got := ParseGeneratedQuery("sqlite", "<think>the user wants a count</think>\nSELECT 1")
	assert.Empty(t, got.Error)
	assert.Equal(t, "SELECT 1", got.RawQuery)
}

func TestParseGeneratedQuery_Mongo(t *testing.T) {
	got := ParseGeneratedQuery("mongodb", "```json\n{\n  \"collection\": \"users\",\n  \"filter\": {\"age\": {\"$gt\": 30}}\n}\n```")
	assert.Empty(t, got.Error)
	assert.Equal(t, QueryTypeMongoJSON, got.QueryType)
	assert.Equal(t, `{"collection":"users","filter":{"age":{"$gt":30}}}`, got.RawQuery)

	got = ParseGeneratedQuery("mongodb", `Here you go: {"collection": "orders"} hope it helps`)
	assert.Empty(t, got.Error)
	assert.Equal(t, `{"collection":"orders"}`, got.RawQuery)

	got = ParseGeneratedQuery("mongodb", `{"filter": {}}`)
	assert.NotEmpty(t, got.Error)

	got = ParseGeneratedQuery("mongodb", "no json at all")
	assert.NotEmpty(t, got.Error)
}

func TestParseGeneratedQuery_Redis(t *testing.T) {
	got := ParseGeneratedQuery("redis", "```redis\n\nHGETALL user:1\nGET other\n```")
	assert.Empty(t, got.Error)
	assert.Equal(t, QueryTypeRedis, got.QueryType)
	assert.Equal(t, "HGETALL user:1", got.RawQuery)

	got = ParseGeneratedQuery("redis", "```\n```")
	assert.Equal(t, "LLM returned an empty Redis command.", got.Error)
}

func TestParseChatReply(t *testing.T) {
	tests := []struct {
		name        string
		engine      string
		reply       string
		wantQuery   string
		wantContent string
	}{
		{
			name:        "engine tag",
			engine:      "postgresql",
			reply:       "Sure:\n```sql\nSELECT name FROM users\n```",
			wantQuery:   "SELECT name FROM users",
			wantContent: QueryReadyContent,
		},
		{
			name:        "mongo json tag",
			engine:      "mongodb",
			reply:       "```json\n{\"collection\": \"users\"}\n```",
			wantQuery:   `{"collection": "users"}`,
			wantContent: QueryReadyContent,
		},
		{
			name:        "redis tag",
			engine:      "redis",
			reply:       "```redis\nGET session:1\n```",
			wantQuery:   "GET session:1",
			wantContent: CommandReadyContent,
		},
		{
			name:        "untagged keyword block",
			engine:      "mysql",
			reply:       "```\nWITH t AS (SELECT 1) SELECT * FROM t\n```",
			wantQuery:   "WITH t AS (SELECT 1) SELECT * FROM t",
			wantContent: QueryReadyContent,
		},
		{
			name:        "redis keyword in untagged block",
			engine:      "redis",
			reply:       "```\nKEYS user:*\n```",
			wantQuery:   "KEYS user:*",
			wantContent: CommandReadyContent,
		},
		{
			name:        "bare select",
			engine:      "postgresql",
			reply:       "You can run\nSELECT id FROM orders",
			wantQuery:   "SELECT id FROM orders;",
			wantContent: QueryReadyContent,
		},
		{
			name:        "bare select keeps single terminator",
			engine:      "sqlite",
			reply:       "SELECT 1;",
			wantQuery:   "SELECT 1;",
			wantContent: QueryReadyContent,
		},
		{
			name:        "conversation",
			engine:      "postgresql",
			reply:       "The orders table stores one row per purchase.",
			wantContent: "The orders table stores one row per purchase.",
		},
		{
			name:        "bare select ignored for redis",
			engine:      "redis",
			reply:       "SELECT is not a Redis command.",
			wantContent: "SELECT is not a Redis command.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseChatReply(tt.engine, tt.reply)
			assert.Equal(t, tt.wantContent, got.Content)
			if tt.wantQuery == "" {
				assert.Nil(t, got.Query)
				return
			}
			require.NotNil(t, got.Query)
			assert.Equal(t, tt.wantQuery, *got.Query)
		})
	}
}

func TestParseChatReply_ToolBlockIsNotAQuery(t *testing.T) {
	reply := "```tool\n{\"connection_id\": \"c1\", \"name\": \"search\", \"arguments\": {}}\n```"
	got := ParseChatReply("redis", reply)
	assert.Nil(t, got.Query)
}

func TestParseToolCall(t *testing.T) {
	call, ok := ParseToolCall("Let me look.\n```tool\n{\"connection_id\": \"c1\", \"name\": \"search\", \"arguments\": {\"q\": \"x\"}}\n```")
	require.True(t, ok)
	assert.Equal(t, "c1", call.ConnectionID)
	assert.Equal(t, "search", call.Name)
	assert.Equal(t, "x", call.Arguments["q"])

	_, ok = ParseToolCall("```tool\n{\"name\": \"search\"}\n```")
	assert.False(t, ok, "connection_id is required")

	_, ok = ParseToolCall("```tool\nnot json\n```")
	assert.False(t, ok)

	_, ok = ParseToolCall("```sql\nSELECT 1\n```")
	assert.False(t, ok)
}

func TestQueryTypeFor(t *testing.T) {
	assert.Equal(t, QueryTypeSQL, QueryTypeFor("mssql"))
	assert.Equal(t, QueryTypeMongoJSON, QueryTypeFor("mongodb"))
	assert.Equal(t, QueryTypeRedis, QueryTypeFor("redis"))
}
