package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// MessageRepository defines the interface for chat message access.
// Messages are append-only except for their results and chart configuration.
type MessageRepository interface {
	// Append stores the message at the next position of its session.
	Append(ctx context.Context, msg *models.Message) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Message, error)
	Count(ctx context.Context, sessionID uuid.UUID) (int, error)
	Get(ctx context.Context, sessionID, messageID uuid.UUID) (*models.Message, error)
	// Patch sets only the non-nil fields of patch.
	Patch(ctx context.Context, sessionID, messageID uuid.UUID, patch models.MessagePatch) (*models.Message, error)
	// Delete removes one message. Only used to undo a turn that could not be stored.
	Delete(ctx context.Context, sessionID, messageID uuid.UUID) error
	// SetChartIfAbsent stores cfg only when the message has no chart yet.
	// It reports whether this call performed the write.
	SetChartIfAbsent(ctx context.Context, sessionID, messageID uuid.UUID, cfg *models.ChartConfig) (bool, error)
}

type messageRepository struct{}

// NewMessageRepository creates a new message repository.
func NewMessageRepository() MessageRepository {
	return &messageRepository{}
}

var _ MessageRepository = (*messageRepository)(nil)

const appendAttempts = 5

const messageColumns = `id, session_id, position, role, content, query, results, chart_config, created_at`

func (r *messageRepository) Append(ctx context.Context, msg *models.Message) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	results, err := marshalNullable(msg.Results)
	if err != nil {
		return err
	}
	chart, err := marshalNullable(msg.ChartConfig)
	if err != nil {
		return err
	}

	// The position is computed in the INSERT; a concurrent append on the same
	// session surfaces as a unique violation and is retried. The session's
	// updated_at moves in the same statement.
	for attempt := 1; ; attempt++ {
		err = scope.Conn.QueryRow(ctx, `
			WITH inserted AS (
				INSERT INTO chat_messages (id, session_id, position, role, content, query, results, chart_config)
				SELECT $1, $2, COALESCE(MAX(position), 0) + 1, $3, $4, $5, $6, $7
				FROM chat_messages WHERE session_id = $2
				RETURNING session_id, position, created_at
			), touched AS (
				UPDATE chat_sessions SET updated_at = now() WHERE id IN (SELECT session_id FROM inserted)
			)
			SELECT position, created_at FROM inserted`,
			msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Query, results, chart,
		).Scan(&msg.Position, &msg.CreatedAt)
		if err == nil {
			break
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("session: %w", apperrors.ErrNotFound)
		}
		if !isUniqueViolation(err) || attempt == appendAttempts {
			return fmt.Errorf("failed to append message: %w", err)
		}
	}
	return nil
}

func (r *messageRepository) Delete(ctx context.Context, sessionID, messageID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1 AND session_id = $2`, messageID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *messageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Message, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE session_id = $1 ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *messageRepository) Count(ctx context.Context, sessionID uuid.UUID) (int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}
	var n int
	if err := scope.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *messageRepository) Get(ctx context.Context, sessionID, messageID uuid.UUID) (*models.Message, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	return scanMessage(scope.Conn.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE id = $1 AND session_id = $2`, messageID, sessionID))
}

func (r *messageRepository) Patch(ctx context.Context, sessionID, messageID uuid.UUID, patch models.MessagePatch) (*models.Message, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	if patch.IsEmpty() {
		return r.Get(ctx, sessionID, messageID)
	}

	args := []any{messageID, sessionID}
	var sets []string
	if patch.Results != nil {
		data, err := json.Marshal(patch.Results)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal results: %w", err)
		}
		args = append(args, data)
		sets = append(sets, fmt.Sprintf("results = $%d", len(args)))
	}
	if patch.ChartConfig != nil {
		data, err := json.Marshal(patch.ChartConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chart config: %w", err)
		}
		args = append(args, data)
		sets = append(sets, fmt.Sprintf("chart_config = $%d", len(args)))
	}

	return scanMessage(scope.Conn.QueryRow(ctx,
		`UPDATE chat_messages SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND session_id = $2 RETURNING `+messageColumns,
		args...))
}

func (r *messageRepository) SetChartIfAbsent(ctx context.Context, sessionID, messageID uuid.UUID, cfg *models.ChartConfig) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("failed to marshal chart config: %w", err)
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE chat_messages SET chart_config = $3
		WHERE id = $1 AND session_id = $2 AND chart_config IS NULL`,
		messageID, sessionID, data)
	if err != nil {
		return false, fmt.Errorf("failed to set chart config: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		m       models.Message
		role    string
		results []byte
		chart   []byte
	)
	err := row.Scan(&m.ID, &m.SessionID, &m.Position, &role, &m.Content, &m.Query, &results, &chart, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.Role = models.MessageRole(role)

	if results != nil {
		var env models.ResultEnvelope
		if err := json.Unmarshal(results, &env); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
		if env.Result != nil {
			m.Results = &env
		}
	}
	if chart != nil {
		var cfg models.ChartConfig
		if err := json.Unmarshal(chart, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chart config: %w", err)
		}
		m.ChartConfig = &cfg
	}
	return &m, nil
}

// marshalNullable returns nil for a nil pointer so the column stays SQL NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return data, nil
}
