// Package common defines shared constants and sentinel errors used across
// client and server layers of authkeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// ErrInvalidToken is the umbrella every token failure wraps. Only this
	// condition is ever reported to a token holder.
	ErrInvalidToken = errors.New("invalid token")

	// Token failure reasons, for server-side logs.
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenIssuedInFuture   = errors.New("token issued in the future")
	ErrTokenMissingClaim     = errors.New("token missing required claim")
	ErrTokenWrongKind        = errors.New("token of wrong kind")
	ErrTokenRevoked          = errors.New("token revoked")

	// ErrReservationInvalid covers a UUID reservation token that is expired,
	// forged, of the wrong kind or already used.
	ErrReservationInvalid = errors.New("uuid reservation invalid")
)
