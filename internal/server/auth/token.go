// Package auth holds the credential and token primitives: bcrypt password
// hashing, the HS256 codec and the typed token model built on top of it.
package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Kind is the value of the typ claim.
type Kind int

const (
	KindRefresh     Kind = 0
	KindAccess      Kind = 1
	KindReservation Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindRefresh:
		return "refresh"
	case KindAccess:
		return "access"
	case KindReservation:
		return "reservation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ClassUser is the class claim of tokens issued to end users.
const ClassUser = "user"

// Token is a decoded token of any kind. ID is the jti of a refresh token
// or the sid of an access token, and uuid.Nil otherwise.
type Token struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	Kind      Kind
	Class     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Claims    map[string]any
}

// Lifetimes are the validity periods per kind.
type Lifetimes struct {
	Access      time.Duration
	Refresh     time.Duration
	Reservation time.Duration
}

// Issuer builds claim sets for each kind and parses them back.
type Issuer struct {
	codec     *Codec
	lifetimes Lifetimes
}

func NewIssuer(codec *Codec, lifetimes Lifetimes) *Issuer {
	return &Issuer{codec: codec, lifetimes: lifetimes}
}

// Now is the clock tokens are stamped with.
func (i *Issuer) Now() time.Time {
	return i.codec.Now()
}

// NewRefreshRecord returns the record that will back a refresh token for
// userID. It must be stored before the token is handed out.
func (i *Issuer) NewRefreshRecord(userID uuid.UUID) *models.RefreshToken {
	return &models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: i.codec.Now().Add(i.lifetimes.Refresh).Truncate(time.Second),
	}
}

// AccessToken signs a stateless access token. sessionID is the refresh
// record it was minted from and is informational only.
func (i *Issuer) AccessToken(userID, sessionID uuid.UUID, extra map[string]any) (string, error) {
	now := i.codec.Now()
	claims := i.claims(extra, userID, KindAccess, now, now.Add(i.lifetimes.Access))
	if sessionID != uuid.Nil {
		claims[ClaimSessionID] = sessionID.String()
	}
	return i.codec.Encode(claims)
}

// RefreshToken signs a refresh token for rec. Its exp matches the record.
func (i *Issuer) RefreshToken(rec *models.RefreshToken, extra map[string]any) (string, error) {
	claims := i.claims(extra, rec.UserID, KindRefresh, i.codec.Now(), rec.ExpiresAt)
	claims[ClaimTokenID] = rec.ID.String()
	return i.codec.Encode(claims)
}

// ReservationToken binds id for a signup that has not happened yet.
func (i *Issuer) ReservationToken(id uuid.UUID) (string, error) {
	now := i.codec.Now()
	return i.codec.Encode(i.claims(nil, id, KindReservation, now, now.Add(i.lifetimes.Reservation)))
}

// claims starts from a fresh map, copies extra and then sets the
// mandatory claims over it.
func (i *Issuer) claims(extra map[string]any, sub uuid.UUID, kind Kind, iat, exp time.Time) map[string]any {
	claims := make(map[string]any, len(extra)+6)
	for k, v := range extra {
		claims[k] = v
	}
	delete(claims, ClaimTokenID)
	delete(claims, ClaimSessionID)

	claims[ClaimSubject] = sub.String()
	claims[ClaimType] = int(kind)
	claims[ClaimIssuedAt] = iat.Unix()
	claims[ClaimExpiresAt] = exp.Unix()
	claims[ClaimClass] = ClassUser
	return claims
}

// Parse decodes token and extracts the typed fields. It does not check
// the kind or consult storage.
func (i *Issuer) Parse(token string) (*Token, error) {
	claims, err := i.codec.Decode(token, ClaimIssuedAt, ClaimExpiresAt, ClaimSubject, ClaimType)
	if err != nil {
		return nil, err
	}

	t := &Token{Claims: claims}

	typ, ok := claims[ClaimType].(float64)
	if !ok || typ != float64(int(typ)) {
		return nil, malformed("typ is not an integer")
	}
	t.Kind = Kind(int(typ))

	if t.Subject, err = uuidClaim(claims, ClaimSubject); err != nil {
		return nil, err
	}

	iat, _ := claims[ClaimIssuedAt].(float64)
	exp, _ := claims[ClaimExpiresAt].(float64)
	t.IssuedAt = time.Unix(int64(iat), 0)
	t.ExpiresAt = time.Unix(int64(exp), 0)
	t.Class, _ = claims[ClaimClass].(string)

	switch t.Kind {
	case KindRefresh:
		if _, ok := claims[ClaimTokenID]; !ok {
			return nil, fmt.Errorf("%w: %w: %s", common.ErrInvalidToken, common.ErrTokenMissingClaim, ClaimTokenID)
		}
		if t.ID, err = uuidClaim(claims, ClaimTokenID); err != nil {
			return nil, err
		}
	case KindAccess:
		if _, ok := claims[ClaimSessionID]; ok {
			if t.ID, err = uuidClaim(claims, ClaimSessionID); err != nil {
				return nil, err
			}
		}
	}

	return t, nil
}

// CheckKind rejects t unless it is of the expected kind.
func CheckKind(t *Token, expected Kind) error {
	if t.Kind != expected {
		return fmt.Errorf("%w: %w: want %s, got %s", common.ErrInvalidToken, common.ErrTokenWrongKind, expected, t.Kind)
	}
	return nil
}

func uuidClaim(claims map[string]any, name string) (uuid.UUID, error) {
	s, ok := claims[name].(string)
	if !ok {
		return uuid.Nil, malformed(name + " is not a string")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, malformed(name + " is not a uuid")
	}
	return id, nil
}

func malformed(detail string) error {
	return fmt.Errorf("%w: %w: %s", common.ErrInvalidToken, common.ErrTokenMalformed, detail)
}
