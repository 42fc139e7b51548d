package models

import (
	"time"

	"github.com/google/uuid"
)

// Note is a free-text health note written by the user.
type Note struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
