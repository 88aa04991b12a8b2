package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	refreshtokensrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// memUsers enforces the same uniqueness rules as the users table.
type memUsers struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*models.User
	getErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uuid.UUID]*models.User{}}
}

func (m *memUsers) Create(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[u.UUID]; ok {
		return &usersrepo.ConflictError{Constraint: usersrepo.ConstraintUUID}
	}
	for _, other := range m.byID {
		if other.Email == u.Email {
			return &usersrepo.ConflictError{Constraint: usersrepo.ConstraintEmail}
		}
		if other.Nickname == u.Nickname {
			return &usersrepo.ConflictError{Constraint: usersrepo.ConstraintNickname}
		}
	}
	u.CreatedAt = time.Now()
	cp := *u
	m.byID[u.UUID] = &cp
	return nil
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetByNickname(ctx context.Context, nickname string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Nickname == nickname })
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.UUID == id })
}

func (m *memUsers) update(id uuid.UUID, fn func(*models.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.byID[id])
}

type memRefresh struct {
	mu        sync.Mutex
	recs      map[uuid.UUID]*models.RefreshToken
	createErr error
	deleteErr error
}

func newMemRefresh() *memRefresh {
	return &memRefresh{recs: map[uuid.UUID]*models.RefreshToken{}}
}

func (m *memRefresh) Create(ctx context.Context, rec *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *memRefresh) Find(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRefresh) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.recs, id)
	return nil
}

func (m *memRefresh) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.recs {
		if !rec.ExpiresAt.After(now) {
			delete(m.recs, id)
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

type fakeRepoManager struct {
	u *memUsers
	r *memRefresh
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (f *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return f.u }
func (f *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return f.r }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
