package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/llm"
	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/observability"
	"github.com/ekaya-inc/querygate/pkg/prompts"
)

// TranslatorConfig bounds model requests made by the translator.
type TranslatorConfig struct {
	Temperature   float32
	MaxTokens     int
	HistoryWindow int
	MaxToolRounds int
}

// ToolRunner calls an MCP tool on one of the caller's active connections.
type ToolRunner interface {
	RunTool(ctx context.Context, connectionID, name string, args map[string]any) (text string, failed bool, err error)
}

// ReplyRequest is one chat turn handed to the translator.
// History is in order and ends with the new user message.
type ReplyRequest struct {
	DBID     string
	Provider string
	History  []*models.Message
	Tools    []prompts.ToolInfo
	Runner   ToolRunner
}

// ChatReply is the assistant message produced for a turn.
type ChatReply struct {
	Content   string
	Query     *string
	UsedTools []string
	Cached    bool
}

// Translator turns natural language into queries for a configured database.
// It never executes anything.
type Translator interface {
	// Generate translates a single question. Unknown databases and providers
	// are errors; unusable model output is reported in GeneratedQuery.Error.
	Generate(ctx context.Context, dbID, provider, question string) (*GeneratedQuery, error)

	// Reply answers a chat turn, calling MCP tools when the model asks for them.
	// Provider failures are returned for the caller to absorb.
	Reply(ctx context.Context, req *ReplyRequest) (*ChatReply, error)
}

type translator struct {
	catalog SchemaCatalog
	llms    llm.ClientFactory
	cache   llm.ResponseCache
	audit   AuditService
	cfg     TranslatorConfig
	logger  *zap.Logger
}

// NewTranslator creates a Translator. cache may be nil to disable reply caching.
func NewTranslator(catalog SchemaCatalog, llms llm.ClientFactory, cache llm.ResponseCache, audit AuditService, cfg TranslatorConfig, logger *zap.Logger) Translator {
	if cfg.MaxToolRounds < 0 {
		cfg.MaxToolRounds = 0
	}
	return &translator{
		catalog: catalog,
		llms:    llms,
		cache:   cache,
		audit:   audit,
		cfg:     cfg,
		logger:  logger.Named("translator"),
	}
}

var _ Translator = (*translator)(nil)

func (t *translator) Generate(ctx context.Context, dbID, provider, question string) (*GeneratedQuery, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("natural_language_query is required: %w", apperrors.ErrInvalidInput)
	}

	desc, err := t.catalog.Database(dbID)
	if err != nil {
		return nil, err
	}
	client, err := t.llms.Client(provider)
	if err != nil {
		return nil, err
	}

	schema := t.promptSchema(ctx, dbID)
	result, err := client.Complete(ctx, &llm.CompletionRequest{
		System:      prompts.GenerateQuerySystemMessage(),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompts.BuildGenerateQueryPrompt(desc.Engine, schema, question)}},
		Temperature: t.cfg.Temperature,
		MaxTokens:   t.cfg.MaxTokens,
	})

	var generated *GeneratedQuery
	if err != nil {
		t.logger.Warn("Query generation failed",
			zap.String("db_id", dbID),
			zap.String("provider", client.Provider()),
			zap.String("error", logging.SanitizeError(err)))
		generated = &GeneratedQuery{QueryType: QueryTypeFor(desc.Engine), Error: llm.UserMessage(err)}
	} else {
		generated = ParseGeneratedQuery(desc.Engine, result.Content)
	}

	t.audit.Record(ctx, &models.QueryAuditEntry{
		DBID:           dbID,
		NaturalQuery:   question,
		GeneratedQuery: generated.RawQuery,
		Success:        generated.Error == "",
		Error:          generated.Error,
	})

	t.logger.Debug("Generated query",
		zap.String("db_id", dbID),
		zap.String("provider", client.Provider()),
		zap.String("query", logging.SanitizeQuery(generated.RawQuery)),
		zap.Bool("ok", generated.Error == ""))
	return generated, nil
}

func (t *translator) Reply(ctx context.Context, req *ReplyRequest) (*ChatReply, error) {
	desc, err := t.catalog.Database(req.DBID)
	if err != nil {
		return nil, err
	}
	client, err := t.llms.Client(req.Provider)
	if err != nil {
		return nil, err
	}

	messages := toLLMMessages(boundHistory(req.History, t.cfg.HistoryWindow))

	useTools := len(req.Tools) > 0 && req.Runner != nil
	cacheKey := llm.CacheKey(req.DBID, client.Provider(), messages)
	if t.cache != nil && !useTools {
		if cached, ok, err := t.cache.Get(ctx, cacheKey); err != nil {
			t.logger.Warn("Reply cache lookup failed", zap.Error(err))
		} else if ok {
			observability.ObserveLLMRequest(client.Provider(), observability.OutcomeCached)
			parsed := ParseChatReply(desc.Engine, cached)
			return &ChatReply{Content: parsed.Content, Query: parsed.Query, Cached: true}, nil
		}
	}

	system := prompts.BuildChatSystemPrompt(prompts.ChatContext{
		Engine:       desc.Engine,
		DatabaseName: desc.Name,
		Schema:       t.promptSchema(ctx, req.DBID),
		Tools:        toolsOrNil(useTools, req.Tools),
	})

	var usedTools []string
	content := ""
	for round := 0; ; round++ {
		result, err := client.Complete(ctx, &llm.CompletionRequest{
			System:      system,
			Messages:    messages,
			Temperature: t.cfg.Temperature,
			MaxTokens:   t.cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		content = result.Content

		if !useTools || round >= t.cfg.MaxToolRounds {
			break
		}
		call, ok := ParseToolCall(content)
		if !ok {
			break
		}

		output, failed := t.runTool(ctx, req.Runner, call)
		usedTools = append(usedTools, call.Name)
		final := round+1 >= t.cfg.MaxToolRounds
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: content},
			llm.Message{Role: llm.RoleUser, Content: prompts.BuildToolResultMessage(call.Name, output, failed, final)},
		)
	}

	if t.cache != nil && !useTools && len(usedTools) == 0 {
		if err := t.cache.Set(ctx, cacheKey, content); err != nil {
			t.logger.Warn("Reply cache store failed", zap.Error(err))
		}
	}

	parsed := ParseChatReply(desc.Engine, content)
	return &ChatReply{Content: parsed.Content, Query: parsed.Query, UsedTools: usedTools}, nil
}

// runTool reports tool transport failures back to the model as text.
func (t *translator) runTool(ctx context.Context, runner ToolRunner, call *ToolCall) (string, bool) {
	text, failed, err := runner.RunTool(ctx, call.ConnectionID, call.Name, call.Arguments)
	if err != nil {
		t.logger.Warn("MCP tool call failed",
			zap.String("connection_id", call.ConnectionID),
			zap.String("tool", call.Name),
			zap.String("error", logging.SanitizeError(err)))
		return err.Error(), true
	}
	return text, failed
}

// promptSchema falls back to an empty schema, which the prompt renders as unavailable.
func (t *translator) promptSchema(ctx context.Context, dbID string) string {
	schema, err := t.catalog.SchemaForPrompt(ctx, dbID)
	if err != nil {
		t.logger.Warn("Schema unavailable for prompt",
			zap.String("db_id", dbID),
			zap.String("error", logging.SanitizeError(err)))
		return ""
	}
	return schema
}

// boundHistory keeps the last window messages.
func boundHistory(history []*models.Message, window int) []*models.Message {
	if window > 0 && len(history) > window {
		return history[len(history)-window:]
	}
	return history
}

// toLLMMessages passes roles and contents only.
func toLLMMessages(history []*models.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return out
}

func toolsOrNil(enabled bool, tools []prompts.ToolInfo) []prompts.ToolInfo {
	if !enabled {
		return nil
	}
	return tools
}
