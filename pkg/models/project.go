package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is a user-owned folder for grouping sessions.
type Project struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
