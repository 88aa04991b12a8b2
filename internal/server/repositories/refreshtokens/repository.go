// Package refreshtokens declares and implements storage of the records that
// keep refresh tokens alive.
package refreshtokens

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations for registering, looking up and revoking
// refresh token records.
type Repository interface {
	// Create stores rec. CreatedAt is filled in from the database.
	Create(ctx context.Context, rec *models.RefreshToken) error

	// Find returns the record with the given id, or common.ErrorNotFound.
	Find(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteExpired removes every record whose expiry is at or before now
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
