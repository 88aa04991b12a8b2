package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db      *sql.DB
	mock    sqlmock.Sqlmock
	users   *memUsers
	refresh *memRefresh
	clock   *testClock
	issuer  *auth.Issuer
	tokens  *TokenService
	svc     *UserService
}

func newTestEnv(t *testing.T, rotate bool) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &testClock{now: t0}
	codec, err := auth.NewCodec([]byte("k"), auth.WithClock(clock.Now))
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RotateRefreshTokens = rotate

	issuer := auth.NewIssuer(codec, auth.Lifetimes{
		Access:      cfg.AccessTokenValidityDuration,
		Refresh:     cfg.RefreshTokenValidityDuration,
		Reservation: cfg.ReservationValidityDuration,
	})

	e := &testEnv{
		db:      db,
		mock:    mock,
		users:   newMemUsers(),
		refresh: newMemRefresh(),
		clock:   clock,
		issuer:  issuer,
	}
	rm := &fakeRepoManager{u: e.users, r: e.refresh}
	m := metrics.New()
	e.tokens = NewTokenService(db, rm, issuer, m, logging.Nop{})
	e.svc = NewUserService(db, rm, e.tokens, auth.NewHasher(bcrypt.MinCost), cfg, m, logging.Nop{})
	return e
}

func (e *testEnv) signup(t *testing.T, nickname, password string) *Registration {
	t.Helper()
	ctx := context.Background()

	res, err := e.svc.ReserveIdentity(ctx)
	require.NoError(t, err)

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	reg, err := e.svc.Signup(ctx, res, SignupCandidate{
		Email:    nickname + "@example.com",
		Nickname: nickname,
		Password: password,
	})
	require.NoError(t, err)
	return reg
}

func (e *testEnv) login(t *testing.T, nickname, password string) *TokenPair {
	t.Helper()
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	pair, err := e.svc.Login(context.Background(), nickname, password)
	require.NoError(t, err)
	return pair
}

func TestSignup_ReservedUUIDBecomesUserID(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()

	res, err := e.svc.ReserveIdentity(ctx)
	require.NoError(t, err)
	rt, err := e.issuer.Parse(res)
	require.NoError(t, err)
	require.Equal(t, auth.KindReservation, rt.Kind)

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	reg, err := e.svc.Signup(ctx, res, SignupCandidate{Email: "alice@example.com", Nickname: "alice", Password: "p@ss"})
	require.NoError(t, err)

	assert.Equal(t, rt.Subject, reg.UserID)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotEmpty(t, reg.RefreshToken)
	assert.Equal(t, 1, e.refresh.len())

	stored, err := e.users.GetByID(ctx, reg.UserID)
	require.NoError(t, err)
	assert.NotEqual(t, "p@ss", stored.Password)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestLoginThenRefresh_SubjectIsUser(t *testing.T) {
	e := newTestEnv(t, false)
	reg := e.signup(t, "alice", "p@ss")

	pair := e.login(t, "alice", "p@ss")

	got, err := e.svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Empty(t, got.RefreshToken)

	access, err := e.tokens.FromString(context.Background(), got.AccessToken, auth.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, access.Subject)

	refresh, err := e.issuer.Parse(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, refresh.ID, access.ID)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestLogin_SameErrorForWrongPasswordAndUnknownUser(t *testing.T) {
	e := newTestEnv(t, false)
	e.signup(t, "alice", "p@ss")
	ctx := context.Background()

	_, wrong := e.svc.Login(ctx, "alice", "wrong")
	_, ghost := e.svc.Login(ctx, "ghost", "anything")

	require.Error(t, wrong)
	require.Error(t, ghost)
	assert.Equal(t, wrong, ghost)
	assert.ErrorIs(t, wrong, common.ErrorUnauthorized)
	assert.Equal(t, 1, e.refresh.len())
}

func TestLogin_ByEmail(t *testing.T) {
	e := newTestEnv(t, false)
	reg := e.signup(t, "alice", "p@ss")

	pair := e.login(t, "alice@example.com", "p@ss")

	tok, err := e.issuer.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, tok.Subject)
}

func TestLogin_DisabledUser(t *testing.T) {
	e := newTestEnv(t, false)
	reg := e.signup(t, "alice", "p@ss")
	e.users.update(reg.UserID, func(u *models.User) { u.Disabled = true })

	_, err := e.svc.Login(context.Background(), "alice", "p@ss")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestLogin_Failures(t *testing.T) {
	t.Run("lookup error is internal", func(t *testing.T) {
		e := newTestEnv(t, false)
		e.users.getErr = errors.New("db down")

		_, err := e.svc.Login(context.Background(), "alice", "p@ss")
		assert.ErrorIs(t, err, common.ErrorInternal)
		assert.NotErrorIs(t, err, common.ErrorUnauthorized)
	})

	t.Run("malformed stored hash is internal", func(t *testing.T) {
		e := newTestEnv(t, false)
		reg := e.signup(t, "alice", "p@ss")
		e.users.update(reg.UserID, func(u *models.User) { u.Password = "garbage" })

		_, err := e.svc.Login(context.Background(), "alice", "p@ss")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("record insert failure rolls back", func(t *testing.T) {
		e := newTestEnv(t, false)
		e.signup(t, "alice", "p@ss")
		e.refresh.createErr = errors.New("disk full")

		e.mock.ExpectBegin()
		e.mock.ExpectRollback()
		pair, err := e.svc.Login(context.Background(), "alice", "p@ss")
		require.Error(t, err)
		assert.Nil(t, pair)
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
}

func TestRefresh_RevokedWhenRecordDeleted(t *testing.T) {
	e := newTestEnv(t, false)
	e.signup(t, "alice", "p@ss")
	pair := e.login(t, "alice", "p@ss")

	tok, err := e.issuer.Parse(pair.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, e.refresh.Delete(context.Background(), tok.ID))

	_, err = e.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.NotErrorIs(t, err, common.ErrTokenSignatureInvalid)
}

func TestRefresh_RevokedWhenUserDisabled(t *testing.T) {
	e := newTestEnv(t, false)
	reg := e.signup(t, "alice", "p@ss")
	e.users.update(reg.UserID, func(u *models.User) { u.Disabled = true })

	_, err := e.svc.Refresh(context.Background(), reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestRefresh_RecordOfAnotherUser(t *testing.T) {
	e := newTestEnv(t, false)
	alice := e.signup(t, "alice", "p@ss")
	bob := e.signup(t, "bob", "p@ss")

	// a token claiming alice but pointing at bob's record
	bobTok, err := e.issuer.Parse(bob.RefreshToken)
	require.NoError(t, err)
	rec, err := e.refresh.Find(context.Background(), bobTok.ID)
	require.NoError(t, err)
	rec.UserID = alice.UserID
	forged, err := e.issuer.RefreshToken(rec, nil)
	require.NoError(t, err)

	_, err = e.svc.Refresh(context.Background(), forged)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestRefresh_KindsAreNotInterchangeable(t *testing.T) {
	e := newTestEnv(t, false)
	reg := e.signup(t, "alice", "p@ss")
	ctx := context.Background()

	_, err := e.svc.Refresh(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, common.ErrTokenWrongKind)

	_, err = e.svc.Authenticate(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenWrongKind)

	res, err := e.svc.ReserveIdentity(ctx)
	require.NoError(t, err)
	_, err = e.svc.Refresh(ctx, res)
	assert.ErrorIs(t, err, common.ErrTokenWrongKind)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	e := newTestEnv(t, false)
	reg := e.signup(t, "alice", "p@ss")

	e.clock.Advance(90*24*time.Hour + time.Second)

	_, err := e.svc.Refresh(context.Background(), reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestRefresh_Rotation(t *testing.T) {
	e := newTestEnv(t, true)
	reg := e.signup(t, "alice", "p@ss")
	ctx := context.Background()

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	pair, err := e.svc.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, reg.RefreshToken, pair.RefreshToken)
	assert.Equal(t, 1, e.refresh.len())

	_, err = e.svc.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	_, err = e.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestRefresh_RotationDeleteFailureRollsBack(t *testing.T) {
	e := newTestEnv(t, true)
	reg := e.signup(t, "alice", "p@ss")
	e.refresh.deleteErr = errors.New("locked")

	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
	_, err := e.svc.Refresh(context.Background(), reg.RefreshToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete refresh token")
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t, false)
	reg := e.signup(t, "alice", "p@ss")
	ctx := context.Background()

	require.NoError(t, e.svc.Logout(ctx, reg.RefreshToken))
	assert.Equal(t, 0, e.refresh.len())

	_, err := e.svc.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	err = e.svc.Logout(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestSignup_Conflicts(t *testing.T) {
	e := newTestEnv(t, false)
	e.signup(t, "alice", "p@ss")
	ctx := context.Background()

	tests := []struct {
		name string
		c    SignupCandidate
	}{
		{"nickname", SignupCandidate{Email: "other@example.com", Nickname: "alice", Password: "x"}},
		{"email", SignupCandidate{Email: "alice@example.com", Nickname: "alice2", Password: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.svc.ReserveIdentity(ctx)
			require.NoError(t, err)

			e.mock.ExpectBegin()
			e.mock.ExpectRollback()
			_, err = e.svc.Signup(ctx, res, tt.c)
			assert.ErrorIs(t, err, common.ErrorAlreadyExists)
			assert.Contains(t, err.Error(), tt.name)
		})
	}
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestSignup_ReservationReused(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()

	res, err := e.svc.ReserveIdentity(ctx)
	require.NoError(t, err)

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	_, err = e.svc.Signup(ctx, res, SignupCandidate{Email: "alice@example.com", Nickname: "alice", Password: "p"})
	require.NoError(t, err)

	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
	_, err = e.svc.Signup(ctx, res, SignupCandidate{Email: "bob@example.com", Nickname: "bob", Password: "p"})
	assert.ErrorIs(t, err, common.ErrReservationInvalid)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestSignup_InvalidReservation(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	c := SignupCandidate{Email: "alice@example.com", Nickname: "alice", Password: "p"}

	reg := e.signup(t, "bob", "p")
	_, err := e.svc.Signup(ctx, reg.AccessToken, c)
	assert.ErrorIs(t, err, common.ErrReservationInvalid)
	assert.ErrorIs(t, err, common.ErrTokenWrongKind)

	_, err = e.svc.Signup(ctx, "garbage", c)
	assert.ErrorIs(t, err, common.ErrReservationInvalid)

	res, err := e.svc.ReserveIdentity(ctx)
	require.NoError(t, err)
	e.clock.Advance(10 * time.Minute)
	_, err = e.svc.Signup(ctx, res, c)
	assert.ErrorIs(t, err, common.ErrReservationInvalid)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestSignup_Validation(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()

	tests := []struct {
		name string
		c    SignupCandidate
	}{
		{"bad email", SignupCandidate{Email: "alice", Nickname: "alice", Password: "p"}},
		{"short nickname", SignupCandidate{Email: "a@example.com", Nickname: "al", Password: "p"}},
		{"nickname with space", SignupCandidate{Email: "a@example.com", Nickname: "al ice", Password: "p"}},
		{"empty password", SignupCandidate{Email: "a@example.com", Nickname: "alice"}},
		{"long password", SignupCandidate{Email: "a@example.com", Nickname: "alice", Password: string(make([]byte, 100))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.svc.ReserveIdentity(ctx)
			require.NoError(t, err)

			_, err = e.svc.Signup(ctx, res, tt.c)
			assert.ErrorIs(t, err, common.ErrorValidation)
		})
	}
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestCleanup_RemovesOnlyExpired(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	user := uuid.New()

	for _, d := range []time.Duration{-time.Hour, -time.Minute, -time.Second, time.Minute, time.Hour} {
		rec := e.issuer.NewRefreshRecord(user)
		rec.ExpiresAt = t0.Add(d)
		require.NoError(t, e.refresh.Create(ctx, rec))
	}

	n, err := e.tokens.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 2, e.refresh.len())
}

func TestGetUUIDAndProfile(t *testing.T) {
	e := newTestEnv(t, false)
	reg := e.signup(t, "alice", "p@ss")
	ctx := context.Background()

	id, err := e.svc.GetUUID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, id)

	id, err = e.svc.GetUUID(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, id)

	_, err = e.svc.GetUUID(ctx, "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	tok, err := e.svc.Authenticate(ctx, reg.AccessToken)
	require.NoError(t, err)

	u, err := e.svc.Profile(ctx, tok.Subject)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Nickname)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{revoked("x"), "revoked"},
		{common.ErrTokenExpired, "expired"},
		{common.ErrTokenIssuedInFuture, "issued_in_future"},
		{common.ErrTokenSignatureInvalid, "signature"},
		{common.ErrTokenWrongKind, "wrong_kind"},
		{common.ErrTokenMissingClaim, "missing_claim"},
		{common.ErrTokenMalformed, "malformed"},
		{common.ErrReservationInvalid, "reservation"},
		{errors.New("db"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureReason(tt.err), tt.err.Error())
	}
}
