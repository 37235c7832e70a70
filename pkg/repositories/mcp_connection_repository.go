package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// StoredMCPConnection is a connection row with its secrets still sealed.
// Configuration.Env is empty here; env and headers live in Secrets.
type StoredMCPConnection struct {
	models.MCPConnection
	Secrets string
}

// MCPConnectionRepository defines the interface for MCP connection access.
type MCPConnectionRepository interface {
	Create(ctx context.Context, conn *StoredMCPConnection) error
	List(ctx context.Context) ([]*StoredMCPConnection, error)
	Get(ctx context.Context, id uuid.UUID) (*StoredMCPConnection, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type mcpConnectionRepository struct{}

// NewMCPConnectionRepository creates a new MCP connection repository.
func NewMCPConnectionRepository() MCPConnectionRepository {
	return &mcpConnectionRepository{}
}

var _ MCPConnectionRepository = (*mcpConnectionRepository)(nil)

func (r *mcpConnectionRepository) Create(ctx context.Context, conn *StoredMCPConnection) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	conn.UserID = scope.UserID
	conn.CreatedAt = time.Now()

	cfg := conn.Configuration
	cfg.Env = nil
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO mcp_connections (id, user_id, name, connection_type, configuration, secrets, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conn.ID, conn.UserID, conn.Name, string(conn.ConnectionType), cfgJSON, conn.Secrets, conn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create mcp connection: %w", err)
	}
	return nil
}

func (r *mcpConnectionRepository) List(ctx context.Context) ([]*StoredMCPConnection, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, user_id, name, connection_type, configuration, secrets, created_at
		FROM mcp_connections
		WHERE user_id = $1
		ORDER BY created_at DESC`, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mcp connections: %w", err)
	}
	defer rows.Close()

	conns := make([]*StoredMCPConnection, 0)
	for rows.Next() {
		c, err := scanMCPConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (r *mcpConnectionRepository) Get(ctx context.Context, id uuid.UUID) (*StoredMCPConnection, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	return scanMCPConnection(scope.Conn.QueryRow(ctx, `
		SELECT id, user_id, name, connection_type, configuration, secrets, created_at
		FROM mcp_connections
		WHERE id = $1 AND user_id = $2`, id, scope.UserID))
}

func (r *mcpConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM mcp_connections WHERE id = $1 AND user_id = $2`, id, scope.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete mcp connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanMCPConnection(row pgx.Row) (*StoredMCPConnection, error) {
	var (
		c        StoredMCPConnection
		connType string
		cfgJSON  []byte
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &connType, &cfgJSON, &c.Secrets, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan mcp connection: %w", err)
	}
	c.ConnectionType = models.MCPTransport(connType)
	if err := json.Unmarshal(cfgJSON, &c.Configuration); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &c, nil
}
