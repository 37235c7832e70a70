package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

func newQueriesMux(translator *mockTranslator, executor *mockExecutor) *http.ServeMux {
	mux := http.NewServeMux()
	NewQueriesHandler(translator, executor, zap.NewNop()).RegisterRoutes(mux, newTestAuthMiddleware(), passthroughScope)
	return mux
}

func TestQueriesHandler_Generate(t *testing.T) {
	translator := &mockTranslator{generated: &services.GeneratedQuery{
		RawQuery:  "SELECT * FROM orders WHERE id = :id",
		Params:    map[string]any{"id": int64(7)},
		QueryType: services.QueryTypeSQL,
	}}
	mux := newQueriesMux(translator, &mockExecutor{})

	rec := serveJSON(mux, http.MethodPost, "/api/query/generate", "viewer",
		`{"db_id":"sales","model_provider":"openai","natural_language_query":"order 7"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "openai", translator.provider)
	assert.Equal(t, "order 7", translator.question)
	assert.JSONEq(t, `{"raw_query":"SELECT * FROM orders WHERE id = :id","params":{"id":7},"query_type":"sql"}`, rec.Body.String())
}

func TestQueriesHandler_Generate_ModelFailureIsBody(t *testing.T) {
	translator := &mockTranslator{generated: &services.GeneratedQuery{QueryType: services.QueryTypeSQL, Error: "LLM returned an empty query."}}
	mux := newQueriesMux(translator, &mockExecutor{})

	rec := serveJSON(mux, http.MethodPost, "/api/query/generate", "viewer", `{"db_id":"sales","natural_language_query":"?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"LLM returned an empty query."`)
}

func TestQueriesHandler_Generate_UnknownProvider(t *testing.T) {
	mux := newQueriesMux(&mockTranslator{err: apperrors.ErrUnknownProvider}, &mockExecutor{})

	rec := serveJSON(mux, http.MethodPost, "/api/query/generate", "viewer", `{"db_id":"sales","model_provider":"x","natural_language_query":"q"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueriesHandler_Execute(t *testing.T) {
	executor := &mockExecutor{result: models.NewTabular([]string{"n"}, []map[string]any{{"n": 1}})}
	mux := newQueriesMux(&mockTranslator{}, executor)

	rec := serveJSON(mux, http.MethodPost, "/api/query/execute", "viewer",
		`{"db_id":"sales","raw_query":"SELECT 1 AS n","natural_language_query":"one","confirm_execute":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, executor.calls, 1)
	assert.Equal(t, "sales", executor.calls[0].DBID)
	assert.Equal(t, "SELECT 1 AS n", executor.calls[0].Query)
	assert.Equal(t, "one", executor.calls[0].NaturalQuery)
	assert.False(t, executor.calls[0].AllowMutations)
	assert.JSONEq(t, `{"columns":["n"],"rows":[{"n":1}]}`, rec.Body.String())
}

func TestQueriesHandler_Execute_RequiresConfirmation(t *testing.T) {
	executor := &mockExecutor{}
	mux := newQueriesMux(&mockTranslator{}, executor)

	rec := serveJSON(mux, http.MethodPost, "/api/query/execute", "viewer", `{"db_id":"sales","raw_query":"SELECT 1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "confirmation_required", decodeErrorBody(t, rec)["error"])
	assert.Empty(t, executor.calls)
}

func TestQueriesHandler_Execute_FailureIsEnvelope(t *testing.T) {
	executor := &mockExecutor{result: models.NewError("Mutation denied: database sales is read-only.")}
	mux := newQueriesMux(&mockTranslator{}, executor)

	rec := serveJSON(mux, http.MethodPost, "/api/query/execute", "viewer",
		`{"db_id":"sales","raw_query":"DELETE FROM orders","confirm_execute":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"Mutation denied: database sales is read-only."}`, rec.Body.String())
}

func TestQueriesHandler_Execute_UnknownDatabase(t *testing.T) {
	mux := newQueriesMux(&mockTranslator{}, &mockExecutor{err: apperrors.ErrUnknownDatabase})

	rec := serveJSON(mux, http.MethodPost, "/api/query/execute", "viewer",
		`{"db_id":"nope","raw_query":"SELECT 1","confirm_execute":true}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
