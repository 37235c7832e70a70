package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/llm"
	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/observability"
	"github.com/ekaya-inc/querygate/pkg/prompts"
	"github.com/ekaya-inc/querygate/pkg/repositories"
)

// SendMessageRequest is one user turn.
type SendMessageRequest struct {
	Role         models.MessageRole
	Content      string
	Provider     string
	ActiveMCPIDs []string
}

// ConfirmQueryRequest executes the supplied query, or the message's stored query when Query is nil.
type ConfirmQueryRequest struct {
	Query          *string
	AllowMutations bool
}

// VisualizationResult is the chart for a message plus other types that suit its data.
type VisualizationResult struct {
	ChartConfig  *models.ChartConfig `json:"chart_config"`
	Alternatives []models.ChartType  `json:"alternatives"`
	Persisted    bool                `json:"persisted"`
}

// ConversationService drives chat turns and the actions taken on their replies.
type ConversationService interface {
	// SendMessage appends the user message and the assistant reply, returning
	// the assistant messages created by the turn.
	SendMessage(ctx context.Context, sessionID uuid.UUID, req *SendMessageRequest) ([]*models.Message, error)

	// ConfirmQuery executes a query and attaches the result envelope to the
	// message in place. The message's query is never changed.
	ConfirmQuery(ctx context.Context, sessionID, messageID uuid.UUID, req *ConfirmQueryRequest) (*models.Message, error)

	// RequestVisualization returns the message's chart, computing and storing
	// it on the first request only.
	RequestVisualization(ctx context.Context, sessionID, messageID uuid.UUID, request string) (*VisualizationResult, error)
}

type conversationService struct {
	sessions     repositories.SessionRepository
	messages     repositories.MessageRepository
	translator   Translator
	executor     Executor
	llms         llm.ClientFactory
	locks        TurnLocker
	connections  MCPConnectionService
	tools        MCPToolClient
	contextLimit int
	logger       *zap.Logger
}

// NewConversationService creates a ConversationService.
func NewConversationService(
	sessions repositories.SessionRepository,
	messages repositories.MessageRepository,
	translator Translator,
	executor Executor,
	llms llm.ClientFactory,
	locks TurnLocker,
	connections MCPConnectionService,
	tools MCPToolClient,
	contextLimit int,
	logger *zap.Logger,
) ConversationService {
	return &conversationService{
		sessions:     sessions,
		messages:     messages,
		translator:   translator,
		executor:     executor,
		llms:         llms,
		locks:        locks,
		connections:  connections,
		tools:        tools,
		contextLimit: contextLimit,
		logger:       logger.Named("conversation"),
	}
}

var _ ConversationService = (*conversationService)(nil)

func (s *conversationService) SendMessage(ctx context.Context, sessionID uuid.UUID, req *SendMessageRequest) ([]*models.Message, error) {
	if req.Role != models.RoleUser {
		return nil, fmt.Errorf("role must be %q: %w", models.RoleUser, apperrors.ErrInvalidInput)
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("content is required: %w", apperrors.ErrInvalidInput)
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.llms.Client(req.Provider); err != nil {
		return nil, err
	}

	release, ok, err := s.locks.TryLock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire turn lock: %w", err)
	}
	if !ok {
		observability.ObserveChatTurn(observability.OutcomeRefused)
		return nil, apperrors.ErrTurnInProgress
	}
	defer release()

	count, err := s.messages.Count(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if count >= s.contextLimit {
		observability.ObserveChatTurn(observability.OutcomeRefused)
		return nil, apperrors.ErrContextExhausted
	}

	// Once the user message is stored the turn always completes.
	turnCtx := context.WithoutCancel(ctx)

	userMsg := &models.Message{SessionID: sessionID, Role: models.RoleUser, Content: content}
	if err := s.messages.Append(turnCtx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	reply := s.reply(turnCtx, session, req)

	assistantMsg := &models.Message{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   reply.Content,
		Query:     reply.Query,
	}
	if err := s.messages.Append(turnCtx, assistantMsg); err != nil {
		// Drop the unanswered user message so the session never ends on a dangling turn.
		if delErr := s.messages.Delete(turnCtx, sessionID, userMsg.ID); delErr != nil {
			s.logger.Error("Failed to remove unanswered user message",
				zap.String("session_id", sessionID.String()),
				zap.String("message_id", userMsg.ID.String()),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	s.logger.Info("Completed chat turn",
		zap.String("session_id", sessionID.String()),
		zap.Int("position", assistantMsg.Position),
		zap.Bool("has_query", assistantMsg.HasQuery()),
		zap.Strings("tools", reply.UsedTools))
	return []*models.Message{assistantMsg}, nil
}

// reply asks the translator for the assistant message. Failures become the
// message content so the session stays well-formed.
func (s *conversationService) reply(ctx context.Context, session *models.Session, req *SendMessageRequest) *ChatReply {
	history, err := s.messages.ListBySession(ctx, session.ID)
	if err != nil {
		s.logger.Error("Failed to load history", zap.Error(err))
		observability.ObserveChatTurn(observability.OutcomeError)
		return &ChatReply{Content: "Failed to load the conversation history. Please try again."}
	}

	toolInfos, runner := s.activeTools(ctx, req.ActiveMCPIDs)

	reply, err := s.translator.Reply(ctx, &ReplyRequest{
		DBID:     session.DBID,
		Provider: req.Provider,
		History:  history,
		Tools:    toolInfos,
		Runner:   runner,
	})
	if err != nil {
		s.logger.Warn("Assistant reply failed",
			zap.String("session_id", session.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
		observability.ObserveChatTurn(observability.OutcomeError)
		if errors.Is(err, apperrors.ErrUnknownDatabase) {
			return &ChatReply{Content: fmt.Sprintf("The database %q is no longer configured.", session.DBID)}
		}
		return &ChatReply{Content: llm.UserMessage(err)}
	}

	observability.ObserveChatTurn(observability.OutcomeSuccess)
	return reply
}

// activeTools lists the tools of the requested connections. Connections that
// fail to list are skipped.
func (s *conversationService) activeTools(ctx context.Context, ids []string) ([]prompts.ToolInfo, ToolRunner) {
	if len(ids) == 0 || s.connections == nil || s.tools == nil {
		return nil, nil
	}

	conns, err := s.connections.ActiveConnections(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to load MCP connections", zap.String("error", logging.SanitizeError(err)))
		return nil, nil
	}

	runner := &connectionToolRunner{client: s.tools, conns: make(map[string]*models.MCPConnection, len(conns))}
	var infos []prompts.ToolInfo
	for _, conn := range conns {
		tools, err := s.tools.ListTools(ctx, conn)
		if err != nil {
			s.logger.Warn("Skipping MCP connection",
				zap.String("connection_id", conn.ID.String()),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		runner.conns[conn.ID.String()] = conn
		for _, t := range tools {
			infos = append(infos, prompts.ToolInfo{
				ConnectionID:   conn.ID.String(),
				ConnectionName: conn.Name,
				Name:           t.Name,
				Description:    t.Description,
				InputSchema:    t.InputSchema,
			})
		}
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return infos, runner
}

func (s *conversationService) ConfirmQuery(ctx context.Context, sessionID, messageID uuid.UUID, req *ConfirmQueryRequest) (*models.Message, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msg, err := s.messages.Get(ctx, sessionID, messageID)
	if err != nil {
		return nil, err
	}

	query := ""
	if req.Query != nil {
		query = strings.TrimSpace(*req.Query)
	}
	if query == "" && msg.HasQuery() {
		query = *msg.Query
	}
	if query == "" {
		return nil, fmt.Errorf("message has no query to execute: %w", apperrors.ErrInvalidInput)
	}

	result, err := s.executor.Execute(ctx, &ExecuteRequest{
		DBID:           session.DBID,
		Query:          query,
		NaturalQuery:   s.precedingQuestion(ctx, sessionID, msg.Position),
		AllowMutations: req.AllowMutations,
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrUnknownDatabase) {
			return nil, err
		}
		result = models.NewErrorf("The database %q is no longer configured.", session.DBID)
	}

	return s.messages.Patch(ctx, sessionID, messageID, models.MessagePatch{Results: result})
}

// precedingQuestion finds the user message the assistant was answering, for the audit log.
func (s *conversationService) precedingQuestion(ctx context.Context, sessionID uuid.UUID, position int) string {
	history, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return ""
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Position < position && history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func (s *conversationService) RequestVisualization(ctx context.Context, sessionID, messageID uuid.UUID, request string) (*VisualizationResult, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	msg, err := s.messages.Get(ctx, sessionID, messageID)
	if err != nil {
		return nil, err
	}

	tab, ok := msg.Results.Tabular()
	if msg.ChartConfig != nil {
		// A stored chart is returned as is, even when it was patched in without results.
		alternatives := []models.ChartType{}
		if ok {
			alternatives = SuggestAlternatives(msg.ChartConfig, tab.Columns, tab.Rows)
		}
		return &VisualizationResult{ChartConfig: msg.ChartConfig, Alternatives: alternatives}, nil
	}
	if !ok {
		return nil, fmt.Errorf("message has no tabular result to chart: %w", apperrors.ErrInvalidInput)
	}

	cfg, err := DetectChart(tab.Columns, tab.Rows)
	if err != nil {
		return nil, err
	}
	if request = strings.TrimSpace(request); request != "" {
		ApplyChartIntent(cfg, request)
	}

	wrote, err := s.messages.SetChartIfAbsent(ctx, sessionID, messageID, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to store chart: %w", err)
	}
	if !wrote {
		// Another request stored a chart first.
		current, err := s.messages.Get(ctx, sessionID, messageID)
		if err != nil {
			return nil, err
		}
		if current.ChartConfig != nil {
			cfg = current.ChartConfig
		}
	}

	return &VisualizationResult{
		ChartConfig:  cfg,
		Alternatives: SuggestAlternatives(cfg, tab.Columns, tab.Rows),
		Persisted:    wrote,
	}, nil
}

// connectionToolRunner routes tool calls to the connections active for one turn.
type connectionToolRunner struct {
	client MCPToolClient
	conns  map[string]*models.MCPConnection
}

func (r *connectionToolRunner) RunTool(ctx context.Context, connectionID, name string, args map[string]any) (string, bool, error) {
	conn, ok := r.conns[connectionID]
	if !ok {
		return fmt.Sprintf("connection %s is not active for this conversation", connectionID), true, nil
	}
	return r.client.CallTool(ctx, conn, name, args)
}
