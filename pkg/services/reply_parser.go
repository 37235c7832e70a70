package services

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ekaya-inc/querygate/pkg/llm"
	"github.com/ekaya-inc/querygate/pkg/prompts"
	sqlpkg "github.com/ekaya-inc/querygate/pkg/sql"
)

// Query types reported by Generate.
const (
	QueryTypeSQL       = "sql"
	QueryTypeMongoJSON = "mongo_json"
	QueryTypeRedis     = "redis"
)

// Fixed assistant texts for a reply that carries a query.
const (
	QueryReadyContent   = "I have generated a query for you. Please review and confirm if you would like to execute it."
	CommandReadyContent = "I have generated a command for you. Please review and confirm if you would like to execute it."
)

const (
	errInvalidParamsJSON = "LLM returned invalid JSON for parameters."
	errMissingSeparator  = "LLM did not return the expected SQL----JSON---- format."
	errEmptyQuery        = "LLM returned an empty query."
	errInvalidMongoQuery = "LLM did not return a valid MongoDB query. Expected a JSON object with a \"collection\" string."
	errEmptyRedisCommand = "LLM returned an empty Redis command."
)

var (
	paramsSeparatorPattern = regexp.MustCompile(`(?i)-+\s*JSON\s*-+`)
	bareSelectPattern      = regexp.MustCompile(`(?i)(?:^|\n)(SELECT\s+[\s\S]*?(?:;|$))`)
)

var sqlReplyKeywords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "WITH": true,
	"CREATE": true, "ALTER": true, "DROP": true, "SHOW": true, "DESCRIBE": true,
}

var redisReplyKeywords = map[string]bool{
	"GET": true, "SET": true, "HGETALL": true, "HGET": true, "HSET": true, "KEYS": true,
	"SCAN": true, "DEL": true, "LPUSH": true, "RPUSH": true, "LRANGE": true,
}

// GeneratedQuery is the outcome of single-shot translation.
// Error is set instead of a transport error when the model output is unusable.
type GeneratedQuery struct {
	RawQuery  string         `json:"raw_query"`
	Params    map[string]any `json:"params,omitempty"`
	QueryType string         `json:"query_type"`
	Error     string         `json:"error,omitempty"`
}

// QueryTypeFor maps an engine to the query type reported by Generate.
func QueryTypeFor(engine string) string {
	switch engine {
	case "mongodb":
		return QueryTypeMongoJSON
	case "redis":
		return QueryTypeRedis
	default:
		return QueryTypeSQL
	}
}

// ParseGeneratedQuery interprets single-shot model output for engine.
func ParseGeneratedQuery(engine, output string) *GeneratedQuery {
	output = strings.TrimSpace(llm.StripThinking(output))
	switch engine {
	case "mongodb":
		return parseMongoOutput(output)
	case "redis":
		return parseRedisOutput(output)
	default:
		return parseSQLOutput(output)
	}
}

// parseSQLOutput expects "SQL ----JSON---- {params}". Without a separator the
// text is accepted only if it cannot contain named parameters.
func parseSQLOutput(output string) *GeneratedQuery {
	result := &GeneratedQuery{QueryType: QueryTypeSQL}

	parts := paramsSeparatorPattern.Split(output, 2)
	if len(parts) == 2 {
		result.RawQuery = stripFence(parts[0])
		paramsText := stripFence(parts[1])
		if paramsText != "" {
			params, err := decodeParams(paramsText)
			if err != nil {
				result.Error = errInvalidParamsJSON
				return result
			}
			result.Params = params
		}
		if result.RawQuery == "" {
			result.Error = errEmptyQuery
		}
		return result
	}

	cleaned := stripFence(output)
	switch {
	case cleaned == "":
		result.Error = errEmptyQuery
	case !strings.Contains(cleaned, ":"):
		result.RawQuery = cleaned
	default:
		result.RawQuery = output
		result.Error = errMissingSeparator
	}
	return result
}

func parseMongoOutput(output string) *GeneratedQuery {
	result := &GeneratedQuery{QueryType: QueryTypeMongoJSON}

	body := stripFence(output)
	if !gjson.Valid(body) {
		extracted, err := llm.ExtractJSON(output)
		if err != nil {
			result.RawQuery = output
			result.Error = errInvalidMongoQuery
			return result
		}
		body = extracted
	}

	collection := gjson.Get(body, "collection")
	if collection.Type != gjson.String || strings.TrimSpace(collection.String()) == "" {
		result.RawQuery = body
		result.Error = errInvalidMongoQuery
		return result
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(body)); err != nil {
		result.RawQuery = body
		return result
	}
	result.RawQuery = compact.String()
	return result
}

func parseRedisOutput(output string) *GeneratedQuery {
	result := &GeneratedQuery{QueryType: QueryTypeRedis}
	for _, line := range strings.Split(stripFence(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			result.RawQuery = line
			return result
		}
	}
	result.Error = errEmptyRedisCommand
	return result
}

// decodeParams keeps whole numbers as int64 so they bind to integer columns.
func decodeParams(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, err
	}
	for k, v := range params {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := num.Int64(); err == nil {
			params[k] = i
		} else if f, err := num.Float64(); err == nil {
			params[k] = f
		}
	}
	return params, nil
}

// stripFence removes a leading ```tag line and a trailing ``` from text.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

// ParsedReply is a chat reply split into what is shown and what can be executed.
type ParsedReply struct {
	Content string
	Query   *string
}

// ParseChatReply extracts a query from a conversational model reply. It looks,
// in order, for a block fenced with the engine's tag, any block starting with
// a SQL or Redis keyword, and for SQL engines a bare SELECT statement.
// Without a query the reply is returned unchanged as content.
func ParseChatReply(engine, reply string) ParsedReply {
	reply = strings.TrimSpace(llm.StripThinking(reply))
	blocks := llm.FencedBlocks(reply)
	tag := prompts.QueryTag(engine)

	for _, b := range blocks {
		if b.Tag == tag && b.Body != "" {
			return withQuery(readyContent(engine == "redis"), b.Body)
		}
	}

	for _, b := range blocks {
		if b.Tag == prompts.ToolFence || b.Body == "" {
			continue
		}
		kw := sqlpkg.FirstKeyword(b.Body)
		if sqlReplyKeywords[kw] {
			return withQuery(QueryReadyContent, b.Body)
		}
		if redisReplyKeywords[kw] {
			return withQuery(CommandReadyContent, b.Body)
		}
	}

	if isSQLEngine(engine) {
		if m := bareSelectPattern.FindStringSubmatch(reply); m != nil {
			query := strings.TrimSuffix(strings.TrimSpace(m[1]), ";") + ";"
			return withQuery(QueryReadyContent, query)
		}
	}

	return ParsedReply{Content: reply}
}

func readyContent(command bool) string {
	if command {
		return CommandReadyContent
	}
	return QueryReadyContent
}

func withQuery(content, query string) ParsedReply {
	return ParsedReply{Content: content, Query: &query}
}

func isSQLEngine(engine string) bool {
	return engine != "mongodb" && engine != "redis"
}

// ToolCall is an MCP tool invocation requested by the model.
type ToolCall struct {
	ConnectionID string         `json:"connection_id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments"`
}

// ParseToolCall returns the first well-formed ```tool block of reply.
func ParseToolCall(reply string) (*ToolCall, bool) {
	for _, b := range llm.FencedBlocks(llm.StripThinking(reply)) {
		if b.Tag != prompts.ToolFence {
			continue
		}
		var call ToolCall
		if err := json.Unmarshal([]byte(b.Body), &call); err != nil {
			continue
		}
		if call.ConnectionID == "" || call.Name == "" {
			continue
		}
		return &call, true
	}
	return nil, false
}
