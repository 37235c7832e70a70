package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/audit"
	"github.com/ekaya-inc/querygate/pkg/llm"
	"github.com/ekaya-inc/querygate/pkg/models"
)

type conversationFixture struct {
	svc         ConversationService
	sessions    *fakeSessionRepo
	messages    *fakeMessageRepo
	client      *llm.MockChatClient
	adapter     *fakeAdapter
	locks       TurnLocker
	connections MCPConnectionService
	tools       *fakeToolClient
	session     *models.Session
}

func newConversationFixture(t *testing.T, contextLimit int, replies ...string) *conversationFixture {
	t.Helper()

	f := &conversationFixture{
		sessions: newFakeSessionRepo(),
		messages: newFakeMessageRepo(),
		client:   llm.NewMockChatClient(replies...),
		adapter:  ordersAdapter(),
		locks:    NewMemoryTurnLocker(),
		tools:    &fakeToolClient{tools: []models.MCPTool{{Name: "lookup", Description: "Looks up customers"}}},
	}
	f.adapter.result = models.NewTabular([]string{"category", "sales"}, []map[string]any{
		{"category": "books", "sales": 10.0},
		{"category": "games", "sales": 20.0},
	})

	catalog := newTestCatalog(f.adapter)
	auditSvc := NewAuditService(&fakeAuditRepo{}, zap.NewNop())
	factory := llm.NewMockClientFactory(f.client)
	translator := NewTranslator(catalog, factory, nil, auditSvc, TranslatorConfig{HistoryWindow: 20, MaxToolRounds: 2}, zap.NewNop())
	executor := NewExecutor(catalog, auditSvc, audit.NewSecurityAuditor(zap.NewNop()), ExecutorConfig{}, zap.NewNop())
	f.connections = NewMCPConnectionService(&fakeMCPConnectionRepo{}, nil, f.tools, zap.NewNop())

	f.svc = NewConversationService(f.sessions, f.messages, translator, executor, factory, f.locks, f.connections, f.tools, contextLimit, zap.NewNop())

	f.session = &models.Session{DBID: "sales", Title: "test"}
	require.NoError(t, f.sessions.Create(context.Background(), f.session))
	return f
}

func (f *conversationFixture) send(content string) ([]*models.Message, error) {
	return f.svc.SendMessage(viewerCtx(), f.session.ID, &SendMessageRequest{Role: models.RoleUser, Content: content})
}

func TestConversation_SendMessage(t *testing.T) {
	f := newConversationFixture(t, 10, "```sql\nSELECT category, sum(total) AS sales FROM orders GROUP BY category\n```")

	created, err := f.send("sales by category")
	require.NoError(t, err)
	require.Len(t, created, 1)

	reply := created[0]
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, 2, reply.Position)
	assert.Equal(t, QueryReadyContent, reply.Content)
	require.True(t, reply.HasQuery())

	stored, err := f.messages.ListBySession(context.Background(), f.session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, models.RoleUser, stored[0].Role)
	assert.Equal(t, "sales by category", stored[0].Content)
	assert.False(t, f.locks.Busy(context.Background(), f.session.ID), "lock is released after the turn")
}

func TestConversation_SendMessageRemovesUnansweredTurn(t *testing.T) {
	f := newConversationFixture(t, 10, "```sql\nSELECT 1\n```")
	f.messages.appendErr = map[models.MessageRole]error{models.RoleAssistant: errors.New("connection reset")}

	_, err := f.send("how many orders?")
	require.Error(t, err)

	stored, err := f.messages.ListBySession(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "the user message must not be left without a reply")

	// The turn lock was released and the session keeps working.
	f.messages.appendErr = nil
	created, err := f.send("how many orders?")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 2, created[0].Position)
}

func TestConversation_SendMessageValidation(t *testing.T) {
	f := newConversationFixture(t, 10)

	_, err := f.svc.SendMessage(viewerCtx(), f.session.ID, &SendMessageRequest{Role: models.RoleAssistant, Content: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.send("   ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.SendMessage(viewerCtx(), uuid.New(), &SendMessageRequest{Role: models.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.SendMessage(viewerCtx(), f.session.ID, &SendMessageRequest{Role: models.RoleUser, Content: "hi", Provider: "unknown"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownProvider)

	count, _ := f.messages.Count(context.Background(), f.session.ID)
	assert.Zero(t, count)
}

func TestConversation_ContextLimit(t *testing.T) {
	f := newConversationFixture(t, 3, "ok")

	_, err := f.send("one")
	require.NoError(t, err)

	// Started below the cap, so it completes past it.
	_, err = f.send("two")
	require.NoError(t, err)

	_, err = f.send("three")
	assert.ErrorIs(t, err, apperrors.ErrContextExhausted)

	count, _ := f.messages.Count(context.Background(), f.session.ID)
	assert.Equal(t, 4, count)
}

func TestConversation_TurnInProgress(t *testing.T) {
	f := newConversationFixture(t, 10, "ok")

	release, ok, err := f.locks.TryLock(context.Background(), f.session.ID)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, err = f.send("hello")
	assert.ErrorIs(t, err, apperrors.ErrTurnInProgress)

	count, _ := f.messages.Count(context.Background(), f.session.ID)
	assert.Zero(t, count)
}

func TestConversation_ModelFailureBecomesAssistantMessage(t *testing.T) {
	f := newConversationFixture(t, 10)
	f.client.CompleteFunc = func(context.Context, *llm.CompletionRequest) (*llm.CompletionResult, error) {
		return nil, errors.New("provider timeout")
	}

	created, err := f.send("hello")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Contains(t, created[0].Content, "provider timeout")
	assert.False(t, created[0].HasQuery())
}

func TestConversation_ActiveMCPConnections(t *testing.T) {
	f := newConversationFixture(t, 10)

	conn, err := f.connections.Create(context.Background(), &CreateMCPConnectionRequest{Name: "crm", URL: "https://crm.example.com/mcp"})
	require.NoError(t, err)
	broken, err := f.connections.Create(context.Background(), &CreateMCPConnectionRequest{Name: "broken", URL: "https://down.example.com/mcp"})
	require.NoError(t, err)
	f.tools.listErr = map[uuid.UUID]error{broken.ID: errors.New("connection refused")}
	f.tools.callText = "customer 7 is vip"

	f.client.Responses = []string{
		"```tool\n{\"connection_id\": \"" + conn.ID.String() + "\", \"name\": \"lookup\", \"arguments\": {}}\n```",
		"Customer 7 is a VIP.",
	}

	created, err := f.svc.SendMessage(viewerCtx(), f.session.ID, &SendMessageRequest{
		Role:         models.RoleUser,
		Content:      "is customer 7 vip?",
		ActiveMCPIDs: []string{conn.ID.String(), broken.ID.String(), uuid.NewString(), "not-a-uuid"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Customer 7 is a VIP.", created[0].Content)
	assert.Equal(t, []string{conn.ID.String() + "/lookup"}, f.tools.calls)
	assert.Contains(t, f.client.Requests[0].System, "Looks up customers")
	assert.NotContains(t, f.client.Requests[0].System, broken.ID.String())

	count, _ := f.messages.Count(context.Background(), f.session.ID)
	assert.Equal(t, 2, count, "only the final reply is stored")
}

func TestConversation_DeletedConnectionIsIgnored(t *testing.T) {
	f := newConversationFixture(t, 10, "plain answer")

	conn, err := f.connections.Create(context.Background(), &CreateMCPConnectionRequest{Name: "crm", URL: "https://crm.example.com/mcp"})
	require.NoError(t, err)
	require.NoError(t, f.connections.Delete(context.Background(), conn.ID))

	_, err = f.svc.SendMessage(viewerCtx(), f.session.ID, &SendMessageRequest{
		Role:         models.RoleUser,
		Content:      "hi",
		ActiveMCPIDs: []string{conn.ID.String()},
	})
	require.NoError(t, err)
	assert.NotContains(t, f.client.Requests[0].System, "External Tools")
}

func (f *conversationFixture) assistantWithQuery(t *testing.T, query string) *models.Message {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.messages.Append(ctx, &models.Message{SessionID: f.session.ID, Role: models.RoleUser, Content: "sales by category"}))
	msg := &models.Message{SessionID: f.session.ID, Role: models.RoleAssistant, Content: QueryReadyContent}
	if query != "" {
		msg.Query = &query
	}
	require.NoError(t, f.messages.Append(ctx, msg))
	return msg
}

func TestConversation_ConfirmQueryUsesStoredQuery(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "SELECT category, sales FROM totals")

	patched, err := f.svc.ConfirmQuery(viewerCtx(), f.session.ID, msg.ID, &ConfirmQueryRequest{})
	require.NoError(t, err)

	assert.Equal(t, "tabular", patched.Results.Shape())
	assert.Equal(t, "SELECT category, sales FROM totals", *patched.Query)
	assert.Equal(t, []string{"SELECT category, sales FROM totals"}, f.adapter.executedQueries())
}

func TestConversation_ConfirmQueryOverrideKeepsStoredQuery(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "SELECT 1")
	edited := "SELECT 2"

	patched, err := f.svc.ConfirmQuery(viewerCtx(), f.session.ID, msg.ID, &ConfirmQueryRequest{Query: &edited})
	require.NoError(t, err)

	assert.Equal(t, "SELECT 1", *patched.Query)
	assert.Equal(t, []string{"SELECT 2"}, f.adapter.executedQueries())
}

func TestConversation_ConfirmQueryFailureIsStored(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "DROP TABLE orders")

	patched, err := f.svc.ConfirmQuery(viewerCtx(), f.session.ID, msg.ID, &ConfirmQueryRequest{AllowMutations: true})
	require.NoError(t, err)

	text, ok := patched.Results.ErrorMessage()
	require.True(t, ok)
	assert.Contains(t, text, "Mutation denied")
}

func TestConversation_ConfirmQueryWithoutQuery(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "")

	_, err := f.svc.ConfirmQuery(viewerCtx(), f.session.ID, msg.ID, &ConfirmQueryRequest{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.ConfirmQuery(viewerCtx(), f.session.ID, uuid.New(), &ConfirmQueryRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConversation_RequestVisualization(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "SELECT category, sales FROM totals")
	_, err := f.svc.ConfirmQuery(viewerCtx(), f.session.ID, msg.ID, &ConfirmQueryRequest{})
	require.NoError(t, err)

	first, err := f.svc.RequestVisualization(viewerCtx(), f.session.ID, msg.ID, "")
	require.NoError(t, err)
	assert.True(t, first.Persisted)
	assert.Equal(t, models.ChartPie, first.ChartConfig.Type)
	assert.Contains(t, first.Alternatives, models.ChartBar)

	second, err := f.svc.RequestVisualization(viewerCtx(), f.session.ID, msg.ID, "show a trend")
	require.NoError(t, err)
	assert.False(t, second.Persisted)
	assert.Equal(t, first.ChartConfig, second.ChartConfig, "an existing chart is never recomputed")
}

func TestConversation_RequestVisualizationIntent(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "SELECT category, sales FROM totals")
	_, err := f.svc.ConfirmQuery(viewerCtx(), f.session.ID, msg.ID, &ConfirmQueryRequest{})
	require.NoError(t, err)

	got, err := f.svc.RequestVisualization(viewerCtx(), f.session.ID, msg.ID, "a bar comparison")
	require.NoError(t, err)
	assert.Equal(t, models.ChartBar, got.ChartConfig.Type)
}

func TestConversation_RequestVisualizationWithoutTabularResult(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "SELECT 1")

	_, err := f.svc.RequestVisualization(viewerCtx(), f.session.ID, msg.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestConversation_RequestVisualizationReturnsPatchedChart(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "SELECT 1")

	patched := &models.ChartConfig{Type: models.ChartLine, XKey: "day", YKeys: []string{"orders"}, Title: "orders by day"}
	_, err := f.messages.Patch(context.Background(), f.session.ID, msg.ID, models.MessagePatch{ChartConfig: patched})
	require.NoError(t, err)

	got, err := f.svc.RequestVisualization(viewerCtx(), f.session.ID, msg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, patched, got.ChartConfig)
	assert.False(t, got.Persisted)
	assert.Empty(t, got.Alternatives)

	stored, err := f.messages.Get(context.Background(), f.session.ID, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Results)
}

func TestConversation_RequestVisualizationPersistsOnce(t *testing.T) {
	f := newConversationFixture(t, 10)
	msg := f.assistantWithQuery(t, "SELECT category, sales FROM totals")
	_, err := f.svc.ConfirmQuery(viewerCtx(), f.session.ID, msg.ID, &ConfirmQueryRequest{})
	require.NoError(t, err)

	const callers = 10
	results := make(chan *VisualizationResult, callers)
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.RequestVisualization(viewerCtx(), f.session.ID, msg.ID, "")
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	persisted := 0
	for res := range results {
		if res.Persisted {
			persisted++
		}
		assert.Equal(t, models.ChartPie, res.ChartConfig.Type)
	}
	assert.Equal(t, 1, persisted)
}
