package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated account. The ID is the identity provider subject.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile holds optional demographic facts about a user.
type Profile struct {
	UserID    uuid.UUID `json:"user_id"`
	Name      *string   `json:"name,omitempty"`
	Age       *int      `json:"age,omitempty"`
	WeightKg  *float64  `json:"weight_kg,omitempty"`
	HeightCm  *float64  `json:"height_cm,omitempty"`
	Sex       *string   `json:"sex,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty reports whether no profile fact is set.
func (p *Profile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Name == nil && p.Age == nil && p.WeightKg == nil && p.HeightCm == nil && p.Sex == nil
}
