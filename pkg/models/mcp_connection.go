package models

import (
	"time"

	"github.com/google/uuid"
)

// MCPTransport is how an MCP server is reached.
type MCPTransport string

const (
	MCPTransportSSE   MCPTransport = "sse"
	MCPTransportStdio MCPTransport = "stdio"
)

// MCPConnectionConfig holds transport settings. URL applies to sse,
// Command/Args/Env apply to stdio.
type MCPConnectionConfig struct {
	URL     string            `json:"url,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConnection is a configured external tool server.
type MCPConnection struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"user_id"`
	Name           string              `json:"name"`
	ConnectionType MCPTransport        `json:"connection_type"`
	Configuration  MCPConnectionConfig `json:"configuration"`
	Headers        map[string]string   `json:"headers,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// MCPTool describes a tool exposed by a connected MCP server.
type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}
