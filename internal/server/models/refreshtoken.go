package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the server-side record backing a refresh JWT. The token
// is accepted only while a row with its ID (the jti claim) exists.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record's lifetime has passed at now.
func (r *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
