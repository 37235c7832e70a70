package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/crypto"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/repositories"
)

// MCPToolClient talks to external MCP servers. *mcpclient.Client implements it.
type MCPToolClient interface {
	ListTools(ctx context.Context, conn *models.MCPConnection) ([]models.MCPTool, error)
	CallTool(ctx context.Context, conn *models.MCPConnection, name string, args map[string]any) (text string, failed bool, err error)
}

// CreateMCPConnectionRequest accepts url either inside configuration or at the top level.
type CreateMCPConnectionRequest struct {
	Name           string                     `json:"name"`
	ConnectionType models.MCPTransport        `json:"connection_type"`
	URL            string                     `json:"url,omitempty"`
	Configuration  models.MCPConnectionConfig `json:"configuration"`
	Headers        map[string]string          `json:"headers,omitempty"`
}

// MCPConnectionService manages a user's external MCP servers.
type MCPConnectionService interface {
	Create(ctx context.Context, req *CreateMCPConnectionRequest) (*models.MCPConnection, error)
	List(ctx context.Context) ([]*models.MCPConnection, error)
	Get(ctx context.Context, id uuid.UUID) (*models.MCPConnection, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListTools(ctx context.Context, id uuid.UUID) ([]models.MCPTool, error)

	// ActiveConnections returns the caller's connections whose ids are in ids.
	// Unknown, foreign and malformed ids are dropped.
	ActiveConnections(ctx context.Context, ids []string) ([]*models.MCPConnection, error)
}

// connectionSecrets is the part of a connection stored in the secrets column.
type connectionSecrets struct {
	Env     map[string]string `json:"env,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type mcpConnectionService struct {
	repo   repositories.MCPConnectionRepository
	box    *crypto.SecretBox
	client MCPToolClient
	logger *zap.Logger
}

// NewMCPConnectionService creates an MCPConnectionService. box may be nil, in
// which case env and headers are stored as plain JSON.
func NewMCPConnectionService(repo repositories.MCPConnectionRepository, box *crypto.SecretBox, client MCPToolClient, logger *zap.Logger) MCPConnectionService {
	return &mcpConnectionService{
		repo:   repo,
		box:    box,
		client: client,
		logger: logger.Named("mcp-connections"),
	}
}

var _ MCPConnectionService = (*mcpConnectionService)(nil)

func (s *mcpConnectionService) Create(ctx context.Context, req *CreateMCPConnectionRequest) (*models.MCPConnection, error) {
	conn, err := validateMCPConnection(req)
	if err != nil {
		return nil, err
	}
	conn.ID = uuid.New()

	sealed, err := s.sealSecrets(conn)
	if err != nil {
		return nil, err
	}

	stored := &repositories.StoredMCPConnection{MCPConnection: *conn, Secrets: sealed}
	if err := s.repo.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to create mcp connection: %w", err)
	}

	s.logger.Info("Created MCP connection",
		zap.String("id", stored.ID.String()),
		zap.String("type", string(stored.ConnectionType)))

	created := stored.MCPConnection
	return &created, nil
}

func (s *mcpConnectionService) List(ctx context.Context) ([]*models.MCPConnection, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	conns := make([]*models.MCPConnection, 0, len(stored))
	for _, st := range stored {
		conn, err := s.open(st)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (s *mcpConnectionService) Get(ctx context.Context, id uuid.UUID) (*models.MCPConnection, error) {
	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.open(stored)
}

func (s *mcpConnectionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted MCP connection", zap.String("id", id.String()))
	return nil
}

func (s *mcpConnectionService) ListTools(ctx context.Context, id uuid.UUID) ([]models.MCPTool, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tools, err := s.client.ListTools(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools for %s: %w", conn.Name, err)
	}
	return tools, nil
}

func (s *mcpConnectionService) ActiveConnections(ctx context.Context, ids []string) ([]*models.MCPConnection, error) {
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		wanted[id] = true
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*models.MCPConnection, 0, len(wanted))
	for _, conn := range all {
		if wanted[conn.ID] {
			active = append(active, conn)
		}
	}
	return active, nil
}

func (s *mcpConnectionService) sealSecrets(conn *models.MCPConnection) (string, error) {
	secrets := connectionSecrets{Env: conn.Configuration.Env, Headers: conn.Headers}
	if s.box == nil {
		raw, err := json.Marshal(secrets)
		if err != nil {
			return "", fmt.Errorf("failed to marshal connection secrets: %w", err)
		}
		return string(raw), nil
	}
	sealed, err := s.box.SealJSON(secrets, conn.ID[:])
	if err != nil {
		return "", fmt.Errorf("failed to seal connection secrets: %w", err)
	}
	return sealed, nil
}

// open restores env and headers from the secrets column.
func (s *mcpConnectionService) open(stored *repositories.StoredMCPConnection) (*models.MCPConnection, error) {
	conn := stored.MCPConnection
	if stored.Secrets == "" {
		return &conn, nil
	}

	var secrets connectionSecrets
	if s.box != nil {
		if err := s.box.OpenJSON(stored.Secrets, conn.ID[:], &secrets); err != nil {
			if errors.Is(err, crypto.ErrOpenFailed) {
				return nil, fmt.Errorf("mcp connection %s: %w", conn.ID, apperrors.ErrCredentialsKeyMismatch)
			}
			return nil, err
		}
	} else if err := json.Unmarshal([]byte(stored.Secrets), &secrets); err != nil {
		return nil, fmt.Errorf("mcp connection %s: %w", conn.ID, apperrors.ErrCredentialsKeyMismatch)
	}

	conn.Configuration.Env = secrets.Env
	conn.Headers = secrets.Headers
	return &conn, nil
}

func validateMCPConnection(req *CreateMCPConnectionRequest) (*models.MCPConnection, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", apperrors.ErrInvalidInput)
	}

	conn := &models.MCPConnection{
		Name:           name,
		ConnectionType: req.ConnectionType,
		Configuration:  req.Configuration,
		Headers:        req.Headers,
	}
	if conn.ConnectionType == "" {
		conn.ConnectionType = models.MCPTransportSSE
	}

	switch conn.ConnectionType {
	case models.MCPTransportSSE:
		if conn.Configuration.URL == "" {
			conn.Configuration.URL = strings.TrimSpace(req.URL)
		}
		u, err := url.Parse(conn.Configuration.URL)
		if conn.Configuration.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("sse connections require an http(s) configuration.url: %w", apperrors.ErrInvalidInput)
		}
		conn.Configuration.Command = ""
		conn.Configuration.Args = nil
		conn.Configuration.Env = nil
	case models.MCPTransportStdio:
		if strings.TrimSpace(conn.Configuration.Command) == "" {
			return nil, fmt.Errorf("stdio connections require configuration.command: %w", apperrors.ErrInvalidInput)
		}
		conn.Configuration.URL = ""
	default:
		return nil, fmt.Errorf("unsupported connection_type %q: %w", conn.ConnectionType, apperrors.ErrInvalidInput)
	}
	return conn, nil
}
