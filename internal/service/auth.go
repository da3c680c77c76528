// Package service contains the session lifecycle engine: registration, login,
// refresh rotation with reuse detection, and logout.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/Ivan-Madera/autorizador/internal/cache"
	"github.com/Ivan-Madera/autorizador/internal/errs"
	"github.com/Ivan-Madera/autorizador/internal/limiter"
	"github.com/Ivan-Madera/autorizador/internal/model"
	"github.com/Ivan-Madera/autorizador/internal/repository"
	"github.com/Ivan-Madera/autorizador/internal/token"
)

const (
	maxPasswordLen = 1024
	maxRefreshLen  = 1024

	reuseDetail = "refresh token reuse detected"
)

// AuthService is the session lifecycle engine.
type AuthService interface {
	// Register creates a user. It never opens a session.
	Register(ctx context.Context, email, password string) (uuid.UUID, error)
	// Login verifies credentials and opens a new session.
	Login(ctx context.Context, in LoginInput) (model.Tokens, error)
	// RefreshRotate exchanges a refresh token for a new pair.
	RefreshRotate(ctx context.Context, in RefreshInput) (model.Tokens, error)
	// Logout revokes one session. Revoking a revoked session is not an error.
	Logout(ctx context.Context, sessionID uuid.UUID) error
	// LogoutAll revokes every session of a user and reports how many closed.
	LogoutAll(ctx context.Context, userID uuid.UUID) (int, error)
	// Authenticate verifies an access token and requires its session to be live.
	Authenticate(ctx context.Context, accessToken string) (token.Identity, error)
	// Sessions lists every session of a user, newest first.
	Sessions(ctx context.Context, userID uuid.UUID) ([]SessionInfo, error)
}

// SessionInfo is a session with its state as the engine sees it now.
type SessionInfo struct {
	model.Session
	State model.SessionState
}

// LoginInput carries pre-parsed login fields.
type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceType string
	IP         string
	UserAgent  string
}

// RefreshInput carries a refresh token and the caller's current address.
type RefreshInput struct {
	RefreshToken string
	IP           string
	UserAgent    string
}

// AccessTokens issues and verifies access tokens.
type AccessTokens interface {
	IssueAccess(userID, sessionID uuid.UUID) (string, time.Time, error)
	VerifyAccess(tok string) (token.Identity, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
}

// Config is the engine configuration.
type Config struct {
	// SessionTTL is the lifetime of a session and its refresh token.
	SessionTTL time.Duration
	// AccessTTL bounds how long a revocation must stay in the cache.
	AccessTTL time.Duration
	// FailureFloor is the minimum latency of a failed login.
	FailureFloor time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

// Deps are the engine collaborators. Limiter, Revoked and Logger are optional.
type Deps struct {
	Users    repository.UserRepository
	Sessions repository.SessionRepository
	Tokens   AccessTokens
	Hasher   PasswordHasher
	Limiter  limiter.Limiter
	Revoked  cache.RevocationStore
	Logger   *zap.Logger
}

type AuthServiceImpl struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   AccessTokens
	hasher   PasswordHasher
	lim      limiter.Limiter
	revoked  cache.RevocationStore
	log      *zap.Logger
	cfg      Config

	dummyOnce sync.Once
	dummyHash string
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs the engine.
func NewAuthService(d Deps, cfg Config) *AuthServiceImpl {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if d.Revoked == nil {
		d.Revoked = cache.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &AuthServiceImpl{
		users:    d.Users,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		hasher:   d.Hasher,
		lim:      d.Limiter,
		revoked:  d.Revoked,
		log:      d.Logger,
		cfg:      cfg,
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email
}

// Register creates a user with an Argon2id password hash.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password string) (uuid.UUID, error) {
	email = NormalizeEmail(email)
	switch {
	case !validEmail(email):
		return uuid.Nil, errs.Validation("email must be a valid address")
	case password == "":
		return uuid.Nil, errs.Validation("password is required")
	case len(password) > maxPasswordLen:
		return uuid.Nil, errs.Validation("password is too long")
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return uuid.Nil, errs.AlreadyExists()
	case !errors.Is(err, errs.ErrNotFound):
		return uuid.Nil, fmt.Errorf("register: lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("register: hash password: %w", err)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	u := &model.User{ID: uid, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return uuid.Nil, errs.AlreadyExists()
		}
		return uuid.Nil, fmt.Errorf("register: create user: %w", err)
	}
	s.log.Info("user_registered", zap.String("user_id", uid.String()))
	return uid, nil
}

// Login authenticates (email, password) and opens a session on the device.
// Every credential failure returns the same InvalidCredentials failure no
// sooner than FailureFloor after the call began.
func (s *AuthServiceImpl) Login(ctx context.Context, in LoginInput) (model.Tokens, error) {
	started := s.cfg.Now()
	email := NormalizeEmail(in.Email)
	switch {
	case email == "" || in.Password == "":
		return model.Tokens{}, errs.Validation("email and password are required")
	case in.DeviceID == "":
		return model.Tokens{}, errs.Validation("device_id is required")
	case len(in.Password) > maxPasswordLen:
		return model.Tokens{}, errs.Validation("password is too long")
	}

	ipHash := limiter.HashIP(in.IP)
	if s.lim != nil {
		allowed, _, err := s.lim.Allow(ctx, email, ipHash)
		if err != nil {
			return model.Tokens{}, fmt.Errorf("login: limiter: %w", err)
		}
		if !allowed {
			return model.Tokens{}, errs.RateLimited()
		}
	}

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		s.burnDummyVerify(in.Password)
		return model.Tokens{}, s.credentialFailure(ctx, started, email, ipHash)
	case err != nil:
		return model.Tokens{}, fmt.Errorf("login: lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(u.PasswordHash, in.Password)
	if err != nil {
		s.log.Error("stored password hash unreadable", zap.String("user_id", u.ID.String()), zap.Error(err))
		return model.Tokens{}, fmt.Errorf("login: verify: %w", err)
	}
	if !ok {
		return model.Tokens{}, s.credentialFailure(ctx, started, email, ipHash)
	}

	if s.lim != nil {
		if err := s.lim.Success(ctx, email, ipHash); err != nil {
			s.log.Warn("limiter reset failed", zap.Error(err))
		}
	}

	now := s.cfg.Now()
	dev := model.Device{
		DeviceID:   in.DeviceID,
		DeviceType: optional(in.DeviceType),
		IP:         optional(in.IP),
		UserAgent:  optional(in.UserAgent),
	}
	next, refresh, err := s.newSession(u.ID, dev, now)
	if err != nil {
		return model.Tokens{}, err
	}
	access, exp, err := s.tokens.IssueAccess(u.ID, next.ID)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("login: issue access token: %w", err)
	}
	if err := s.sessions.Create(ctx, next); err != nil {
		return model.Tokens{}, fmt.Errorf("login: create session: %w", err)
	}
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("last_login not updated", zap.String("user_id", u.ID.String()), zap.Error(err))
	}

	s.log.Info("session_opened",
		zap.String("user_id", u.ID.String()),
		zap.String("session_id", next.ID.String()),
		zap.String("device_id", in.DeviceID))
	return model.Tokens{AccessToken: access, RefreshToken: refresh, SessionID: next.ID, ExpiresAt: exp}, nil
}

// RefreshRotate retires the presented refresh token and issues a successor.
// Presenting a token that was already rotated revokes every session of its
// owner.
func (s *AuthServiceImpl) RefreshRotate(ctx context.Context, in RefreshInput) (model.Tokens, error) {
	raw := strings.TrimSpace(in.RefreshToken)
	if raw == "" || len(raw) > maxRefreshLen {
		return model.Tokens{}, errs.InvalidCredentials()
	}

	cur, err := s.sessions.GetByRefreshHash(ctx, token.HashRefreshToken(raw))
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return model.Tokens{}, errs.InvalidCredentials()
	case err != nil:
		return model.Tokens{}, fmt.Errorf("refresh: lookup session: %w", err)
	}

	now := s.cfg.Now()
	switch cur.State(now) {
	case model.StateRotated:
		return model.Tokens{}, s.reuseDetected(ctx, cur, now)
	case model.StateRevoked:
		return model.Tokens{}, errs.InvalidCredentials()
	case model.StateExpired:
		if _, err := s.sessions.Revoke(ctx, cur.ID, now); err != nil {
			s.log.Error("lazy expiry revoke failed", zap.String("session_id", cur.ID.String()), zap.Error(err))
		} else {
			s.log.Info("session_expired",
				zap.String("user_id", cur.UserID.String()),
				zap.String("session_id", cur.ID.String()))
		}
		return model.Tokens{}, errs.InvalidCredentials()
	}

	dev := model.Device{
		DeviceID:   cur.DeviceID,
		DeviceType: cur.DeviceType,
		IP:         optional(in.IP),
		UserAgent:  optional(in.UserAgent),
	}
	next, refresh, err := s.newSession(cur.UserID, dev, now)
	if err != nil {
		return model.Tokens{}, err
	}
	access, exp, err := s.tokens.IssueAccess(cur.UserID, next.ID)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("refresh: issue access token: %w", err)
	}

	switch err := s.sessions.Rotate(ctx, cur.ID, next, now); {
	case errors.Is(err, errs.ErrSessionRevoked):
		return model.Tokens{}, s.lostRace(ctx, cur.ID, now)
	case errors.Is(err, errs.ErrNotFound):
		return model.Tokens{}, errs.InvalidCredentials()
	case err != nil:
		return model.Tokens{}, fmt.Errorf("refresh: rotate: %w", err)
	}

	s.markRevoked(ctx, cur.ID, cur.ExpiresAt, now)
	s.log.Info("session_rotated",
		zap.String("user_id", cur.UserID.String()),
		zap.String("session_id", cur.ID.String()),
		zap.String("replaced_by", next.ID.String()))
	return model.Tokens{AccessToken: access, RefreshToken: refresh, SessionID: next.ID, ExpiresAt: exp}, nil
}

// lostRace handles a rotation that found its predecessor already revoked
// between lookup and lock. A concurrent rotation counts as reuse.
func (s *AuthServiceImpl) lostRace(ctx context.Context, id uuid.UUID, now time.Time) error {
	cur, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("refresh: reload session: %w", err)
	}
	if cur.ReplacedBy != nil {
		return s.reuseDetected(ctx, cur, now)
	}
	return errs.InvalidCredentials()
}

func (s *AuthServiceImpl) reuseDetected(ctx context.Context, cur *model.Session, now time.Time) error {
	closed, err := s.sessions.RevokeAllForUser(ctx, cur.UserID, now)
	if err != nil {
		return fmt.Errorf("refresh: revoke all after reuse: %w", err)
	}
	for _, rv := range closed {
		s.markRevoked(ctx, rv.ID, rv.ExpiresAt, now)
	}
	s.log.Warn("refresh_reuse_detected",
		zap.String("user_id", cur.UserID.String()),
		zap.String("session_id", cur.ID.String()),
		zap.Int("revoked", len(closed)))
	return errs.InvalidCredentials().WithDetail(reuseDetail)
}

// Logout revokes sessionID without a successor.
func (s *AuthServiceImpl) Logout(ctx context.Context, sessionID uuid.UUID) error {
	now := s.cfg.Now()
	changed, err := s.sessions.Revoke(ctx, sessionID, now)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if changed {
		s.markRevoked(ctx, sessionID, now.Add(s.cfg.AccessTTL), now)
		s.log.Info("session_revoked", zap.String("session_id", sessionID.String()))
	}
	return nil
}

// LogoutAll revokes every open session of userID.
func (s *AuthServiceImpl) LogoutAll(ctx context.Context, userID uuid.UUID) (int, error) {
	now := s.cfg.Now()
	closed, err := s.sessions.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("logout all: %w", err)
	}
	for _, rv := range closed {
		s.markRevoked(ctx, rv.ID, rv.ExpiresAt, now)
	}
	s.log.Info("logout_all", zap.String("user_id", userID.String()), zap.Int("revoked", len(closed)))
	return len(closed), nil
}

// Authenticate verifies accessToken and checks that its session is live.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, accessToken string) (token.Identity, error) {
	id, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return token.Identity{}, errs.InvalidCredentials()
	}

	revoked, err := s.revoked.IsRevoked(ctx, id.SessionID)
	if err != nil {
		s.log.Debug("revocation cache unavailable", zap.Error(err))
	}
	if revoked {
		return token.Identity{}, errs.InvalidCredentials()
	}

	sess, err := s.sessions.GetByID(ctx, id.SessionID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return token.Identity{}, errs.InvalidCredentials()
	case err != nil:
		return token.Identity{}, fmt.Errorf("authenticate: load session: %w", err)
	}
	if sess.UserID != id.UserID || !sess.Live(s.cfg.Now()) {
		return token.Identity{}, errs.InvalidCredentials()
	}
	return id, nil
}

// Sessions lists the sessions of userID with their derived state.
func (s *AuthServiceImpl) Sessions(ctx context.Context, userID uuid.UUID) ([]SessionInfo, error) {
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.cfg.Now()
	out := make([]SessionInfo, len(list))
	for i := range list {
		out[i] = SessionInfo{Session: list[i], State: list[i].State(now)}
	}
	return out, nil
}

func (s *AuthServiceImpl) newSession(userID uuid.UUID, dev model.Device, now time.Time) (*model.Session, string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", err
	}
	refresh, err := token.NewRefreshToken()
	if err != nil {
		return nil, "", fmt.Errorf("new refresh token: %w", err)
	}
	return &model.Session{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: token.HashRefreshToken(refresh),
		Device:           dev,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
		CreatedAt:        now,
	}, refresh, nil
}

// markRevoked records a revocation in the cache for as long as an access
// token bound to the session could still verify.
func (s *AuthServiceImpl) markRevoked(ctx context.Context, id uuid.UUID, expiresAt, now time.Time) {
	if limit := now.Add(s.cfg.AccessTTL); s.cfg.AccessTTL > 0 && expiresAt.After(limit) {
		expiresAt = limit
	}
	if err := s.revoked.MarkRevoked(ctx, id, expiresAt); err != nil {
		s.log.Warn("revocation cache write failed", zap.String("session_id", id.String()), zap.Error(err))
	}
}

// credentialFailure records the miss and waits out the failure floor. The
// attempt that starts a lockout still reports InvalidCredentials; the lockout
// shows up on the next Allow.
func (s *AuthServiceImpl) credentialFailure(ctx context.Context, started time.Time, email string, ipHash []byte) error {
	if s.lim != nil {
		blocked, wait, err := s.lim.Failure(ctx, email, ipHash)
		switch {
		case err != nil:
			s.log.Warn("limiter failure not recorded", zap.Error(err))
		case blocked:
			s.log.Warn("login_locked", zap.Duration("for", wait))
		}
	}
	if wait := s.cfg.FailureFloor - s.cfg.Now().Sub(started); wait > 0 {
		s.cfg.Sleep(ctx, wait)
	}
	return errs.InvalidCredentials()
}

// burnDummyVerify spends one hash verification so unknown emails cost the
// same as wrong passwords.
func (s *AuthServiceImpl) burnDummyVerify(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("dummy-password-for-timing")
		if err != nil {
			s.log.Error("dummy hash", zap.Error(err))
			return
		}
		s.dummyHash = h
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, password)
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
