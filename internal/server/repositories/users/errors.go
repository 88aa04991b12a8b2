package users

import (
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Constraint names from the users table migration.
const (
	ConstraintUUID     = "users_pkey"
	ConstraintEmail    = "users_email_key"
	ConstraintNickname = "users_nickname_key"
)

// ConflictError reports which uniqueness constraint an insert violated.
// It matches common.ErrorAlreadyExists with errors.Is.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", common.ErrorAlreadyExists, e.Constraint)
}

func (e *ConflictError) Unwrap() error {
	return common.ErrorAlreadyExists
}
