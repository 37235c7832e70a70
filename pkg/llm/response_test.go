package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFencedBlocks(t *testing.T) {
	reply := "Here you go:\n```sql\nSELECT 1;\n```\nand also\n```\nGET key\n```"

	blocks := FencedBlocks(reply)
	require.Len(t, blocks, 2)
	assert.Equal(t, FencedBlock{Tag: "sql", Body: "SELECT 1;"}, blocks[0])
	assert.Equal(t, FencedBlock{Tag: "", Body: "GET key"}, blocks[1])
}

func TestFencedBlocks_TagIsCaseInsensitive(t *testing.T) {
	blocks := FencedBlocks("```JSON\n{\"collection\":\"x\"}\n```")
	require.Len(t, blocks, 1)
	assert.Equal(t, "json", blocks[0].Tag)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "SELECT 1", StripFences("```sql\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", StripFences("```\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", StripFences("  SELECT 1  "))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"with prose", `Params: {"region": "north"} done`, `{"region": "north"}`},
		{"brace in string", `{"q":"a}b"}`, `{"q":"a}b"}`},
		{"think tags", "<think>{not json}</think>\n{\"a\":2}", `{"a":2}`},
		{"array", `result: [1,2]`, `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ExtractJSON("no json here")
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	turns := []Message{{Role: RoleUser, Content: "top customers"}}
	a := CacheKey("sales", "groq", turns)
	assert.Len(t, a, 64)
	assert.Equal(t, a, CacheKey("sales", "groq", []Message{{Role: RoleUser, Content: "top customers"}}))
	assert.NotEqual(t, a, CacheKey("sales", "claude", turns))
	// separators keep field boundaries distinct
	assert.NotEqual(t, CacheKey("ab", "c", turns), CacheKey("a", "bc", turns))
}

func TestCacheKey_PriorTurnsChangeKey(t *testing.T) {
	followUp := Message{Role: RoleUser, Content: "only for 2024"}
	orders := CacheKey("sales", "groq", []Message{
		{Role: RoleUser, Content: "orders by month"},
		{Role: RoleAssistant, Content: "SELECT month, count(*) FROM orders GROUP BY month"},
		followUp,
	})
	refunds := CacheKey("sales", "groq", []Message{
		{Role: RoleUser, Content: "refunds by region"},
		{Role: RoleAssistant, Content: "SELECT region, sum(amount) FROM refunds GROUP BY region"},
		followUp,
	})
	assert.NotEqual(t, orders, refunds)
	assert.NotEqual(t, orders, CacheKey("sales", "groq", []Message{followUp}))
}
