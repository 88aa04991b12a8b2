// Package models contains the server's persistent entities.
package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	emailRe    = regexp.MustCompile(`^[\w\-\.\+]+@([\w-]+\.)+[\w-]{2,4}$`)
	nicknameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,16}$`)
)

const maxEmailLength = 64

// User is a registered account. UUID is assigned at signup from the
// reservation token and never changes.
type User struct {
	UUID      uuid.UUID
	Email     string
	Nickname  string
	Password  string // bcrypt hash
	Disabled  bool
	Verified  bool
	CreatedAt time.Time
}

// ValidEmail reports whether s is acceptable as an account email.
func ValidEmail(s string) bool {
	return len(s) <= maxEmailLength && emailRe.MatchString(s)
}

// ValidNickname reports whether s is 3-16 characters of letters, digits
// and underscores.
func ValidNickname(s string) bool {
	return nicknameRe.MatchString(s)
}
