package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolFence is the code block tag the assistant uses to request an MCP tool call.
const ToolFence = "tool"

// ToolInfo describes one tool offered by an active MCP connection.
type ToolInfo struct {
	ConnectionID   string
	ConnectionName string
	Name           string
	Description    string
	InputSchema    map[string]any
}

// ChatContext is everything the chat system prompt is built from.
type ChatContext struct {
	Engine       string
	DatabaseName string
	Schema       string
	Tools        []ToolInfo
}

// BuildChatSystemPrompt returns the system prompt for a chat turn.
func BuildChatSystemPrompt(c ChatContext) string {
	var prompt strings.Builder
	tag := QueryTag(c.Engine)
	language := QueryLanguage(c.Engine)

	prompt.WriteString("You are a helpful and friendly database assistant. ")
	prompt.WriteString("You help the user explore a database by answering their questions. ")
	prompt.WriteString(fmt.Sprintf("You can have a conversation or, when the user asks for data, write a %s for the %s database", language, c.Engine))
	if c.DatabaseName != "" {
		prompt.WriteString(fmt.Sprintf(" %q", c.DatabaseName))
	}
	prompt.WriteString(".\n\n")

	prompt.WriteString("## Instructions\n\n")
	prompt.WriteString("1. When the question needs data, write a read-only query.\n")
	prompt.WriteString(fmt.Sprintf("2. Return the query ONLY inside a ```%s ... ``` block, with no other text.\n", tag))
	if c.Engine == "mongodb" {
		prompt.WriteString("3. The query is a JSON object with `collection` and `filter` keys.\n")
	} else {
		prompt.WriteString("3. Write literal values inline; the user reviews the query before it runs.\n")
	}
	prompt.WriteString("4. When the user is just chatting, answer conversationally without a code block.\n")
	prompt.WriteString("5. Use the conversation history for context.\n\n")

	prompt.WriteString("## Database Schema\n\n")
	prompt.WriteString(schemaOrPlaceholder(c.Schema))
	prompt.WriteString("\n")

	if len(c.Tools) > 0 {
		prompt.WriteString("\n")
		prompt.WriteString(BuildToolCatalog(c.Tools))
	}

	return prompt.String()
}

// BuildToolCatalog describes the available MCP tools and how to call them.
func BuildToolCatalog(tools []ToolInfo) string {
	var prompt strings.Builder

	prompt.WriteString("## External Tools\n\n")
	prompt.WriteString("You may call one of these tools before answering. To call a tool, reply with ONLY a ")
	prompt.WriteString(fmt.Sprintf("```%s ... ``` block containing a JSON object:\n", ToolFence))
	prompt.WriteString(`{"connection_id": "<id>", "name": "<tool name>", "arguments": {...}}` + "\n")
	prompt.WriteString("The tool result is sent back to you, then you answer the user.\n\n")

	for _, t := range tools {
		prompt.WriteString(fmt.Sprintf("### %s (connection %s", t.Name, t.ConnectionID))
		if t.ConnectionName != "" {
			prompt.WriteString(fmt.Sprintf(", %s", t.ConnectionName))
		}
		prompt.WriteString(")\n")
		if t.Description != "" {
			prompt.WriteString(t.Description)
			prompt.WriteString("\n")
		}
		if len(t.InputSchema) > 0 {
			if data, err := json.Marshal(t.InputSchema); err == nil {
				prompt.WriteString(fmt.Sprintf("Arguments schema: %s\n", data))
			}
		}
		prompt.WriteString("\n")
	}

	return prompt.String()
}

// BuildToolResultMessage wraps a tool's output as a follow-up user message.
// When final is set the model is told not to call further tools.
func BuildToolResultMessage(toolName, result string, failed, final bool) string {
	var prompt strings.Builder
	if failed {
		prompt.WriteString(fmt.Sprintf("The tool %q failed:\n", toolName))
	} else {
		prompt.WriteString(fmt.Sprintf("Result of tool %q:\n", toolName))
	}
	prompt.WriteString(result)
	prompt.WriteString("\n\nNow answer my previous question.")
	if final {
		prompt.WriteString(" Do not call another tool.")
	}
	return prompt.String()
}
