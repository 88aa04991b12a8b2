package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Registered claim names used by every token.
const (
	ClaimSubject   = "sub"
	ClaimType      = "typ"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimTokenID   = "jti"
	ClaimSessionID = "sid"
	ClaimClass     = "class"
)

// RequiredClaims must be present in every token the server accepts.
var RequiredClaims = []string{ClaimIssuedAt, ClaimExpiresAt, ClaimSubject}

var ErrEmptySecret = errors.New("signing secret is empty")

// DefaultClockSkew is how far ahead of the local clock an iat may be.
// Expiry gets no such allowance.
const DefaultClockSkew = 30 * time.Second

// Codec signs and verifies HS256 JWTs with a single shared secret.
type Codec struct {
	secret []byte
	now    func() time.Time
	skew   time.Duration
}

type CodecOption func(*Codec)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// WithClockSkew sets the iat allowance; negative values count as zero.
func WithClockSkew(d time.Duration) CodecOption {
	return func(c *Codec) {
		c.skew = max(d, 0)
	}
}

func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
		skew:   DefaultClockSkew,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Now is the codec's clock.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Encode signs claims into a compact JWT.
func (c *Codec) Encode(claims map[string]any) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Decode checks the signature, then expiry, then that iat is not beyond
// the clock skew, then that every name in required is present. Failures wrap common.ErrInvalidToken and one
// reason sentinel.
func (c *Codec) Decode(token string, required ...string) (map[string]any, error) {
	parsed, err := jwt.Parse(token,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenMalformed)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", common.ErrInvalidToken, common.ErrTokenMalformed, err)
	}
	if iat != nil && iat.After(c.now().Add(c.skew)) {
		return nil, fmt.Errorf("%w: %w: iat %s", common.ErrInvalidToken, common.ErrTokenIssuedInFuture, iat.UTC().Format(time.RFC3339))
	}

	for _, name := range required {
		if _, ok := claims[name]; !ok {
			return nil, fmt.Errorf("%w: %w: %s", common.ErrInvalidToken, common.ErrTokenMissingClaim, name)
		}
	}

	return claims, nil
}

func classify(err error) error {
	var reason error
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		reason = common.ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = common.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		reason = common.ErrTokenMissingClaim
	default:
		reason = common.ErrTokenMalformed
	}
	return fmt.Errorf("%w: %w: %v", common.ErrInvalidToken, reason, err)
}
