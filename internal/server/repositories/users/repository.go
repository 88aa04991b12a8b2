// Package users declares and implements persistence of user accounts.
package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations on stored users.
type Repository interface {
	// Create inserts user. A duplicate UUID, email or nickname yields a
	// *ConflictError.
	Create(ctx context.Context, user *models.User) error

	// GetByNickname, GetByEmail and GetByID return common.ErrorNotFound when
	// there is no such user.
	GetByNickname(ctx context.Context, nickname string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
