package tools

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
)

func TestExecuteQuery(t *testing.T) {
	deps, exec := newTestDeps()
	exec.result = models.NewTabular([]string{"n"}, []map[string]any{{"n": 1.0}, {"n": 2.0}})
	s := newToolServer(deps)

	text, isError := callTool(t, s, "execute_query", map[string]any{"db_id": "sales", "query": " SELECT n FROM t "})
	require.False(t, isError, text)

	var got struct {
		RowCount int `json:"row_count"`
		Result   struct {
			Columns []string `json:"columns"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, 2, got.RowCount)
	assert.Equal(t, []string{"n"}, got.Result.Columns)

	require.Len(t, exec.requests, 1)
	assert.Equal(t, "SELECT n FROM t", exec.requests[0].Query)
	assert.False(t, exec.requests[0].AllowMutations)
}

func TestExecuteQuery_PassesAllowMutations(t *testing.T) {
	deps, exec := newTestDeps()
	exec.result = models.NewAck(models.AckMessage, 3)
	s := newToolServer(deps)

	_, isError := callTool(t, s, "execute_query", map[string]any{"db_id": "sales", "query": "DELETE FROM t", "allow_mutations": true})
	require.False(t, isError)
	require.Len(t, exec.requests, 1)
	assert.True(t, exec.requests[0].AllowMutations)
}

func TestExecuteQuery_ErrorEnvelope(t *testing.T) {
	deps, exec := newTestDeps()
	exec.result = models.NewError("Mutation denied: database sales is read-only.")
	s := newToolServer(deps)

	text, isError := callTool(t, s, "execute_query", map[string]any{"db_id": "sales", "query": "DROP TABLE t"})
	require.True(t, isError)

	resp := decodeError(t, text)
	assert.Equal(t, "query_failed", resp.Error)
	assert.Contains(t, resp.Message, "Mutation denied")
}

func TestExecuteQuery_Validation(t *testing.T) {
	deps, exec := newTestDeps()
	exec.err = fmt.Errorf("%w: nope", apperrors.ErrUnknownDatabase)
	s := newToolServer(deps)

	text, isError := callTool(t, s, "execute_query", map[string]any{"db_id": "sales"})
	require.True(t, isError)
	assert.Equal(t, "invalid_input", decodeError(t, text).Error)
	assert.Empty(t, exec.requests)

	text, isError = callTool(t, s, "execute_query", map[string]any{"db_id": "nope", "query": "SELECT 1"})
	require.True(t, isError)
	assert.Equal(t, "unknown_database", decodeError(t, text).Error)
}
