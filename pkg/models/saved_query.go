package models

import (
	"time"

	"github.com/google/uuid"
)

// SavedQuery is a user's bookmarked query for a database.
type SavedQuery struct {
	ID                   uuid.UUID `json:"id"`
	UserID               uuid.UUID `json:"user_id"`
	DBID                 string    `json:"db_id"`
	Name                 string    `json:"name"`
	NaturalLanguageQuery string    `json:"natural_language_query,omitempty"`
	RawQuery             string    `json:"raw_query"`
	CreatedAt            time.Time `json:"created_at"`
}
