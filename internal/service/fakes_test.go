package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/Ivan-Madera/autorizador/internal/cache"
	"github.com/Ivan-Madera/autorizador/internal/errs"
	"github.com/Ivan-Madera/autorizador/internal/limiter"
	"github.com/Ivan-Madera/autorizador/internal/model"
	"github.com/Ivan-Madera/autorizador/internal/repository"
)

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers { return &fakeUsers{byEmail: map[string]*model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byEmail[u.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byEmail[u.Email] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			t := at
			u.LastLogin = &t
			return nil
		}
	}
	return errs.ErrNotFound
}

// fakeSessions is an in-memory session store with the same atomicity as
// the Postgres one: Rotate checks and writes under one lock.
type fakeSessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Session

	getErr       error
	beforeRotate func()
	byIDCalls    int
}

var _ repository.SessionRepository = (*fakeSessions)(nil)

func newFakeSessions() *fakeSessions { return &fakeSessions{rows: map[uuid.UUID]*model.Session{}} }

func cloneSession(s *model.Session) *model.Session {
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	if s.ReplacedBy != nil {
		id := *s.ReplacedBy
		c.ReplacedBy = &id
	}
	return &c
}

func (f *fakeSessions) insertLocked(s *model.Session) error {
	for _, r := range f.rows {
		if r.RefreshTokenHash == s.RefreshTokenHash || r.ID == s.ID {
			return errs.ErrAlreadyExists
		}
	}
	f.rows[s.ID] = cloneSession(s)
	return nil
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(s)
}

func (f *fakeSessions) GetByRefreshHash(_ context.Context, hash string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, r := range f.rows {
		if r.RefreshTokenHash == hash {
			return cloneSession(r), nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIDCalls++
	r, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneSession(r), nil
}

func (f *fakeSessions) Rotate(_ context.Context, oldID uuid.UUID, next *model.Session, now time.Time) error {
	if f.beforeRotate != nil {
		f.beforeRotate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.rows[oldID]
	if !ok {
		return errs.ErrNotFound
	}
	if old.RevokedAt != nil {
		return errs.ErrSessionRevoked
	}
	if err := f.insertLocked(next); err != nil {
		return err
	}
	t, id := now, next.ID
	old.RevokedAt, old.ReplacedBy = &t, &id
	return nil
}

func (f *fakeSessions) Revoke(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.RevokedAt != nil {
		return false, nil
	}
	t := now
	r.RevokedAt = &t
	return true, nil
}

func (f *fakeSessions) RevokeAllForUser(_ context.Context, userID uuid.UUID, now time.Time) ([]model.Revoked, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Revoked
	for _, r := range f.rows {
		if r.UserID == userID && r.RevokedAt == nil {
			t := now
			r.RevokedAt = &t
			out = append(out, model.Revoked{ID: r.ID, ExpiresAt: r.ExpiresAt})
		}
	}
	return out, nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, *cloneSession(r))
		}
	}
	return out, nil
}

// all returns a snapshot of every row.
func (f *fakeSessions) all() []*model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Session, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, cloneSession(r))
	}
	return out
}

func (f *fakeSessions) forUser(userID uuid.UUID) []*model.Session {
	var out []*model.Session
	for _, r := range f.all() {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type fakeLimiter struct {
	mu sync.Mutex

	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successCalls++
	return nil
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type fakeCache struct {
	mu     sync.Mutex
	marked map[uuid.UUID]time.Time
	err    error
}

var _ cache.RevocationStore = (*fakeCache)(nil)

func newFakeCache() *fakeCache { return &fakeCache{marked: map[uuid.UUID]time.Time{}} }

func (c *fakeCache) MarkRevoked(_ context.Context, id uuid.UUID, exp time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.marked[id] = exp
	return nil
}

func (c *fakeCache) IsRevoked(_ context.Context, id uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.marked[id]
	return ok, nil
}

// countingHasher counts Verify calls on the wrapped hasher.
type countingHasher struct {
	PasswordHasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(encoded, password string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.PasswordHasher.Verify(encoded, password)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waits)
}
