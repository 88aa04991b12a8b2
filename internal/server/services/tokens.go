package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService issues tokens and decides whether a presented token is
// currently acceptable. Refresh tokens are acceptable only while their
// record exists.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	issuer      *auth.Issuer
	metrics     *metrics.Metrics
	log         logging.Logger
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, issuer *auth.Issuer, mt *metrics.Metrics, log logging.Logger) *TokenService {
	return &TokenService{
		db:          db,
		repomanager: m,
		issuer:      issuer,
		metrics:     mt,
		log:         log.With("module", "tokens"),
	}
}

// IssuePair stores a new refresh record through tx and signs both tokens.
// Run it inside dbx.WithTx and hand the pair out only after commit.
func (s *TokenService) IssuePair(ctx context.Context, tx dbx.DBTX, userID uuid.UUID) (*TokenPair, error) {
	rec := s.issuer.NewRefreshRecord(userID)
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	refresh, err := s.issuer.RefreshToken(rec, nil)
	if err != nil {
		return nil, err
	}
	access, err := s.issuer.AccessToken(userID, rec.ID, nil)
	if err != nil {
		return nil, err
	}

	s.metrics.TokenIssued(auth.KindRefresh.String())
	s.metrics.TokenIssued(auth.KindAccess.String())
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess mints an access token for the subject of a verified token.
func (s *TokenService) IssueAccess(ctx context.Context, t *auth.Token) (string, error) {
	access, err := s.issuer.AccessToken(t.Subject, t.ID, nil)
	if err != nil {
		return "", err
	}
	s.metrics.TokenIssued(auth.KindAccess.String())
	return access, nil
}

// ReservationToken mints a reservation token for id.
func (s *TokenService) ReservationToken(ctx context.Context, id uuid.UUID) (string, error) {
	tok, err := s.issuer.ReservationToken(id)
	if err != nil {
		return "", err
	}
	s.metrics.TokenIssued(auth.KindReservation.String())
	return tok, nil
}

// FromString decodes token and checks it is of the expected kind. A
// refresh token must additionally have a live record owned by its subject,
// and that subject must still be an enabled user.
func (s *TokenService) FromString(ctx context.Context, token string, kind auth.Kind) (*auth.Token, error) {
	t, err := s.issuer.Parse(token)
	if err != nil {
		return nil, err
	}
	if err := auth.CheckKind(t, kind); err != nil {
		return nil, err
	}
	if kind != auth.KindRefresh {
		return t, nil
	}
	if err := s.checkRefresh(ctx, s.db, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TokenService) checkRefresh(ctx context.Context, db dbx.DBTX, t *auth.Token) error {
	rec, err := s.repomanager.RefreshTokens(db).Find(ctx, t.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return revoked("no record")
		}
		return fmt.Errorf("find refresh token: %w", err)
	}
	if rec.UserID != t.Subject {
		return revoked("record belongs to another user")
	}
	if rec.Expired(s.issuer.Now()) {
		return revoked("record expired")
	}

	user, err := s.repomanager.Users(db).GetByID(ctx, t.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return revoked("user deleted")
		}
		return fmt.Errorf("find user: %w", err)
	}
	if user.Disabled {
		return revoked("user disabled")
	}
	return nil
}

func revoked(detail string) error {
	return fmt.Errorf("%w: %w: %s", common.ErrInvalidToken, common.ErrTokenRevoked, detail)
}

// Revoke verifies a refresh token and deletes its record.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	t, err := s.FromString(ctx, token, auth.KindRefresh)
	if err != nil {
		return err
	}
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, t.ID); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	s.log.Info(ctx, "refresh token revoked", "jti", t.ID, "user", t.Subject)
	return nil
}

// Cleanup deletes every refresh record whose expiry has passed.
func (s *TokenService) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.issuer.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	s.metrics.TokensSwept(n)
	s.log.Info(ctx, "expired refresh tokens swept", "count", n)
	return n, nil
}
