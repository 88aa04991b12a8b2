// Package services contains server-side business logic. UserService runs
// the authentication flows on top of TokenService and the repositories.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// SignupCandidate is what a new user submits.
type SignupCandidate struct {
	Email    string
	Nickname string
	Password string
}

// Registration is the result of a successful signup.
type Registration struct {
	UserID uuid.UUID
	TokenPair
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *TokenService
	hasher      *auth.Hasher
	rotate      bool
	metrics     *metrics.Metrics
	log         logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *TokenService, hasher *auth.Hasher,
	cfg *config.Config, mt *metrics.Metrics, log logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		rotate:      cfg.RotateRefreshTokens,
		metrics:     mt,
		log:         log.With("module", "users"),
	}
}

// ReserveIdentity mints a fresh UUID and a reservation token binding it.
func (s *UserService) ReserveIdentity(ctx context.Context) (string, error) {
	return s.tokens.ReservationToken(ctx, uuid.New())
}

// Signup creates the user under the reserved UUID together with its first
// refresh record in one transaction.
func (s *UserService) Signup(ctx context.Context, reservation string, c SignupCandidate) (*Registration, error) {
	t, err := s.tokens.FromString(ctx, reservation, auth.KindReservation)
	if err != nil {
		s.reject(ctx, "signup rejected", err)
		return nil, fmt.Errorf("%w: %w", common.ErrReservationInvalid, err)
	}

	if err := validateCandidate(c); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(c.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		UUID:     t.Subject,
		Email:    c.Email,
		Nickname: c.Nickname,
		Password: hash,
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			return signupConflict(err)
		}
		var err error
		pair, err = s.tokens.IssuePair(ctx, tx, user.UUID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrReservationInvalid) {
			s.reject(ctx, "signup rejected", err)
		}
		return nil, err
	}

	s.log.Info(ctx, "user signed up", "user", user.UUID, "nickname", user.Nickname)
	return &Registration{UserID: user.UUID, TokenPair: *pair}, nil
}

func validateCandidate(c SignupCandidate) error {
	switch {
	case !models.ValidEmail(c.Email):
		return fmt.Errorf("%w: invalid email", common.ErrorValidation)
	case !models.ValidNickname(c.Nickname):
		return fmt.Errorf("%w: nickname must be 3-16 letters, digits or underscores", common.ErrorValidation)
	case c.Password == "":
		return fmt.Errorf("%w: password is empty", common.ErrorValidation)
	}
	return nil
}

func signupConflict(err error) error {
	var conflict *users.ConflictError
	if !errors.As(err, &conflict) {
		return err
	}
	switch conflict.Constraint {
	case users.ConstraintUUID:
		return fmt.Errorf("%w: uuid already registered", common.ErrReservationInvalid)
	case users.ConstraintEmail:
		return fmt.Errorf("%w: email is already registered", common.ErrorAlreadyExists)
	case users.ConstraintNickname:
		return fmt.Errorf("%w: nickname is already taken", common.ErrorAlreadyExists)
	default:
		return err
	}
}

// Login checks the password and issues a token pair. identifier is a
// nickname, or an email when it contains '@'. Every credential failure
// is common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	user, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Decoy(password)
			s.failLogin(ctx, identifier, "unknown_user")
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "login lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	ok, err := s.hasher.Verify(password, user.Password)
	if err != nil {
		s.log.Error(ctx, "stored password hash unusable", "user", user.UUID, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if !ok {
		s.failLogin(ctx, identifier, "bad_password")
		return nil, common.ErrorUnauthorized
	}
	if user.Disabled {
		s.failLogin(ctx, identifier, "disabled")
		return nil, common.ErrorUnauthorized
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		pair, err = s.tokens.IssuePair(ctx, tx, user.UUID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user logged in", "user", user.UUID)
	return pair, nil
}

func (s *UserService) lookup(ctx context.Context, identifier string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	if strings.Contains(identifier, "@") {
		return repo.GetByEmail(ctx, identifier)
	}
	return repo.GetByNickname(ctx, identifier)
}

func (s *UserService) failLogin(ctx context.Context, identifier, reason string) {
	s.metrics.AuthFailure(reason)
	s.log.Warn(ctx, "login failed", "identifier", identifier, "reason", reason)
}

// Refresh exchanges a refresh token for a new access token. With rotation
// enabled the presented refresh token is revoked and a new one returned;
// otherwise RefreshToken in the result is empty.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	t, err := s.tokens.FromString(ctx, refreshToken, auth.KindRefresh)
	if err != nil {
		s.reject(ctx, "refresh rejected", err)
		return nil, err
	}

	if !s.rotate {
		access, err := s.tokens.IssueAccess(ctx, t)
		if err != nil {
			return nil, err
		}
		return &TokenPair{AccessToken: access}, nil
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, t.ID); err != nil {
			return fmt.Errorf("delete refresh token: %w", err)
		}
		var err error
		pair, err = s.tokens.IssuePair(ctx, tx, t.Subject)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes a refresh token.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		s.reject(ctx, "logout rejected", err)
		return err
	}
	return nil
}

// GetUUID returns the UUID of the user named by identifier, resolved as in
// Login. Clients salt their password pre-hash with it.
func (s *UserService) GetUUID(ctx context.Context, identifier string) (uuid.UUID, error) {
	user, err := s.lookup(ctx, identifier)
	if err != nil {
		return uuid.Nil, err
	}
	return user.UUID, nil
}

// Authenticate resolves a bearer access token.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*auth.Token, error) {
	t, err := s.tokens.FromString(ctx, accessToken, auth.KindAccess)
	if err != nil {
		s.reject(ctx, "access token rejected", err)
		return nil, err
	}
	return t, nil
}

// Profile returns the stored user.
func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

// reject logs and counts a token failure. The reason stays server-side.
func (s *UserService) reject(ctx context.Context, msg string, err error) {
	reason := failureReason(err)
	s.metrics.AuthFailure(reason)
	if reason == "internal" {
		s.log.Error(ctx, msg, "error", err)
		return
	}
	s.log.Warn(ctx, msg, "reason", reason, "error", err)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, common.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrTokenIssuedInFuture):
		return "issued_in_future"
	case errors.Is(err, common.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, common.ErrTokenWrongKind):
		return "wrong_kind"
	case errors.Is(err, common.ErrTokenMissingClaim):
		return "missing_claim"
	case errors.Is(err, common.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, common.ErrReservationInvalid):
		return "reservation"
	default:
		return "internal"
	}
}
