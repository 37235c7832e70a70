package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryAuditEntry records one generate or execute request.
// Stored in query_audit_logs.
type QueryAuditEntry struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	DBID           string    `json:"db_id"`
	NaturalQuery   string    `json:"natural_query,omitempty"`
	GeneratedQuery string    `json:"generated_query,omitempty"`
	Executed       bool      `json:"executed"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	RowsReturned   int       `json:"rows_returned"`
	CreatedAt      time.Time `json:"created_at"`
}
