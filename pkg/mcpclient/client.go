// Package mcpclient talks to external MCP servers configured by users.
// Every call opens a fresh session, runs one request and closes it.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// DefaultTimeout bounds one list or call round trip, including the handshake.
const DefaultTimeout = 20 * time.Second

// session is the subset of *client.Client used here.
type session interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, conn *models.MCPConnection) (session, error)

// Client lists and calls tools on MCP servers.
type Client struct {
	timeout time.Duration
	version string
	logger  *zap.Logger
	dial    dialFunc
}

// New creates a Client. A zero timeout selects DefaultTimeout.
func New(timeout time.Duration, version string, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		timeout: timeout,
		version: version,
		logger:  logger.Named("mcp_client"),
	}
	c.dial = c.connect
	return c
}

// ListTools returns the tools the server advertises.
func (c *Client) ListTools(ctx context.Context, conn *models.MCPConnection) ([]models.MCPTool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s, err := c.dial(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer c.closeSession(conn, s)

	result, err := s.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", conn.Name, err)
	}

	tools := make([]models.MCPTool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, models.MCPTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema(t),
		})
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// CallTool invokes a tool and flattens its content to text.
// A result flagged IsError is returned as text with failed set.
func (c *Client) CallTool(ctx context.Context, conn *models.MCPConnection, name string, args map[string]any) (text string, failed bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s, err := c.dial(ctx, conn)
	if err != nil {
		return "", false, err
	}
	defer c.closeSession(conn, s)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	started := time.Now()
	result, err := s.CallTool(ctx, req)
	if err != nil {
		return "", false, fmt.Errorf("call %s on %s: %w", name, conn.Name, err)
	}

	text = ContentText(result.Content)
	c.logger.Debug("MCP tool call finished",
		zap.String("connection", conn.Name),
		zap.String("tool", name),
		zap.Bool("is_error", result.IsError),
		zap.Duration("elapsed", time.Since(started)),
		zap.String("output", logging.TruncateString(text, 200)))
	return text, result.IsError, nil
}

func (c *Client) connect(ctx context.Context, conn *models.MCPConnection) (session, error) {
	switch conn.ConnectionType {
	case models.MCPTransportStdio:
		return c.connectStdio(ctx, conn)
	case models.MCPTransportSSE, "":
		return c.connectHTTP(ctx, conn)
	default:
		return nil, fmt.Errorf("unsupported MCP transport %q", conn.ConnectionType)
	}
}

// connectHTTP tries the SSE transport first and falls back to streamable HTTP,
// which many servers expose on the same URL.
func (c *Client) connectHTTP(ctx context.Context, conn *models.MCPConnection) (session, error) {
	url := conn.Configuration.URL
	if url == "" {
		return nil, fmt.Errorf("connection %s has no url", conn.Name)
	}

	sse, err := client.NewSSEMCPClient(url, client.WithHeaders(conn.Headers))
	if err == nil {
		if err = c.start(ctx, sse); err == nil {
			return sse, nil
		}
		_ = sse.Close()
	}
	c.logger.Debug("SSE transport failed, trying streamable HTTP",
		zap.String("connection", conn.Name),
		zap.String("error", logging.SanitizeError(err)))

	streamable, err := client.NewStreamableHttpClient(url,
		transport.WithHTTPHeaders(conn.Headers),
		transport.WithHTTPTimeout(c.timeout))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", conn.Name, err)
	}
	if err := c.start(ctx, streamable); err != nil {
		_ = streamable.Close()
		return nil, fmt.Errorf("connect to %s: %w", conn.Name, err)
	}
	return streamable, nil
}

func (c *Client) connectStdio(ctx context.Context, conn *models.MCPConnection) (session, error) {
	cfg := conn.Configuration
	if cfg.Command == "" {
		return nil, fmt.Errorf("connection %s has no command", conn.Name)
	}

	stdio, err := client.NewStdioMCPClient(cfg.Command, EnvList(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", conn.Name, err)
	}
	if err := c.initialize(ctx, stdio); err != nil {
		_ = stdio.Close()
		return nil, fmt.Errorf("initialize %s: %w", conn.Name, err)
	}
	return stdio, nil
}

func (c *Client) start(ctx context.Context, cl *client.Client) error {
	if err := cl.Start(ctx); err != nil {
		return err
	}
	return c.initialize(ctx, cl)
}

func (c *Client) initialize(ctx context.Context, cl *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "querygate", Version: c.version}
	req.Params.Capabilities = mcp.ClientCapabilities{}
	_, err := cl.Initialize(ctx, req)
	return err
}

func (c *Client) closeSession(conn *models.MCPConnection, s session) {
	if err := s.Close(); err != nil {
		c.logger.Debug("Failed to close MCP session",
			zap.String("connection", conn.Name),
			zap.Error(err))
	}
}

// ContentText renders tool result content as text, one item per line.
// Non-text items are replaced by a short placeholder.
func ContentText(contents []mcp.Content) string {
	parts := make([]string, 0, len(contents))
	for _, content := range contents {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if ic, ok := mcp.AsImageContent(content); ok {
			parts = append(parts, fmt.Sprintf("[Image: %s]", ic.MIMEType))
			continue
		}
		if er, ok := mcp.AsEmbeddedResource(content); ok {
			parts = append(parts, fmt.Sprintf("[Resource: %s]", resourceURI(er.Resource)))
		}
	}
	return strings.Join(parts, "\n")
}

func resourceURI(r mcp.ResourceContents) string {
	if t, ok := mcp.AsTextResourceContents(r); ok {
		return t.URI
	}
	if b, ok := mcp.AsBlobResourceContents(r); ok {
		return b.URI
	}
	return "unknown"
}

// EnvList converts an env map into sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

func inputSchema(t mcp.Tool) map[string]any {
	data, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var wrapper struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil
	}
	return wrapper.InputSchema
}
