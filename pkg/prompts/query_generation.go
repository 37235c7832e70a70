package prompts

import (
	"fmt"
	"strings"
)

// ParamsSeparator divides the SQL statement from its parameter object in
// single-shot SQL generation output.
const ParamsSeparator = "----JSON----"

// QueryTag returns the fenced code block tag used for queries in engine's dialect.
func QueryTag(engine string) string {
	switch engine {
	case "mongodb":
		return "json"
	case "redis":
		return "redis"
	default:
		return "sql"
	}
}

// QueryLanguage names what the model produces for engine, e.g. "SQL query".
func QueryLanguage(engine string) string {
	switch engine {
	case "mongodb":
		return "MongoDB find query"
	case "redis":
		return "Redis command"
	default:
		return "SQL query"
	}
}

// GenerateQuerySystemMessage returns the system message for single-shot generation.
func GenerateQuerySystemMessage() string {
	return `You are a database assistant that converts natural language questions into database queries. You output only the requested format.`
}

// BuildGenerateQueryPrompt creates the single-shot translation prompt for engine.
func BuildGenerateQueryPrompt(engine, schema, question string) string {
	switch engine {
	case "mongodb":
		return buildMongoPrompt(schema, question)
	case "redis":
		return buildRedisPrompt(schema, question)
	default:
		return buildSQLPrompt(engine, schema, question)
	}
}

func buildSQLPrompt(engine, schema, question string) string {
	var prompt strings.Builder

	prompt.WriteString("# Natural Language to SQL\n\n")
	prompt.WriteString(fmt.Sprintf("Convert the question below into a safe, parameterized SQL query for a %s database.\n\n", engine))

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("1. Generate ONLY a single SELECT statement. Never generate INSERT, UPDATE, DELETE, DROP or any other DML/DDL.\n")
	prompt.WriteString("2. Use named parameters (`:param_name`) for every literal value in filters.\n")
	prompt.WriteString("3. Dates are passed as strings in 'YYYY-MM-DD' or 'YYYY-MM-DD HH:MM:SS' format.\n")
	prompt.WriteString("4. Only reference tables and columns listed in the schema.\n\n")

	writeSchema(&prompt, schema)
	writeQuestion(&prompt, question)

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString(fmt.Sprintf("Return two parts separated by a `%s` line:\n", ParamsSeparator))
	prompt.WriteString("- the SQL query;\n")
	prompt.WriteString("- a JSON object mapping each parameter name to its value (`{}` when there are none).\n\n")
	prompt.WriteString("Example:\n")
	prompt.WriteString("SELECT name, total FROM orders WHERE status = :status\n")
	prompt.WriteString(ParamsSeparator + "\n")
	prompt.WriteString(`{"status": "shipped"}` + "\n\n")
	prompt.WriteString("Return ONLY these two parts, no explanations and no markdown.\n")

	return prompt.String()
}

func buildMongoPrompt(schema, question string) string {
	var prompt strings.Builder

	prompt.WriteString("# Natural Language to MongoDB\n\n")
	prompt.WriteString("Convert the question below into a MongoDB `find` query.\n\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("1. Output a single JSON object with a `collection` string and a `filter` object.\n")
	prompt.WriteString("2. Optional keys: `projection`, `sort` and `limit`.\n")
	prompt.WriteString("3. Use MongoDB operators such as `$gt`, `$lt`, `$in` and `$regex`.\n")
	prompt.WriteString("4. Dates are ISODate values written as `{\"$date\": \"YYYY-MM-DDTHH:mm:ssZ\"}`.\n\n")

	writeSchema(&prompt, schema)
	writeQuestion(&prompt, question)

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Example:\n")
	prompt.WriteString(`{"collection": "orders", "filter": {"total": {"$gt": 100}}, "limit": 20}` + "\n\n")
	prompt.WriteString("Return ONLY the JSON object.\n")

	return prompt.String()
}

func buildRedisPrompt(schema, question string) string {
	var prompt strings.Builder

	prompt.WriteString("# Natural Language to Redis\n\n")
	prompt.WriteString("Convert the question below into a single Redis command.\n\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("1. Output only the command and its arguments on one line.\n")
	prompt.WriteString("2. Do not prefix the command with `redis-cli` and do not use markdown.\n")
	prompt.WriteString("3. Prefer read commands (GET, HGETALL, LRANGE, SMEMBERS, ZRANGE, SCAN).\n\n")

	prompt.WriteString("## Keys (sample keys and types)\n\n")
	prompt.WriteString(schemaOrPlaceholder(schema))
	prompt.WriteString("\n\n")
	writeQuestion(&prompt, question)

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Example for \"show the profile stored at user:profile:1\":\n")
	prompt.WriteString("HGETALL user:profile:1\n")

	return prompt.String()
}

func writeSchema(prompt *strings.Builder, schema string) {
	prompt.WriteString("## Database Schema\n\n")
	prompt.WriteString(schemaOrPlaceholder(schema))
	prompt.WriteString("\n\n")
}

func writeQuestion(prompt *strings.Builder, question string) {
	prompt.WriteString("## Question\n\n")
	prompt.WriteString(fmt.Sprintf("%q\n\n", strings.TrimSpace(question)))
}

func schemaOrPlaceholder(schema string) string {
	if strings.TrimSpace(schema) == "" {
		return "(schema unavailable)"
	}
	return strings.TrimSpace(schema)
}
