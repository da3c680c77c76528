// Package token issues and verifies access tokens and creates opaque refresh tokens.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Ivan-Madera/autorizador/internal/crypto"
)

// RefreshTokenBytes is the entropy of a refresh token before hex encoding.
const RefreshTokenBytes = 64

// ErrInvalidToken is returned for any access token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Config is injected at construction; nothing is read from globals.
type Config struct {
	Secret    []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	Leeway    time.Duration
}

// Claims is the access token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
}

// Identity is a verified (user, session) pair.
type Identity struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	ExpiresAt time.Time
}

// Codec signs and verifies HS256 access tokens.
type Codec struct {
	cfg Config
	now func() time.Time
}

// NewCodec constructs a codec. now may be nil (time.Now).
func NewCodec(cfg Config, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{cfg: cfg, now: now}
}

// IssueAccess signs {uid, sid} with iss/aud and a short expiry.
func (c *Codec) IssueAccess(userID, sessionID uuid.UUID) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.cfg.AccessTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:    userID.String(),
		SessionID: sessionID.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.Secret)
	return signed, exp, err
}

// VerifyAccess checks signature, algorithm, expiry, issuer and audience.
// It does not check session liveness; callers bound to a session must.
func (c *Codec) VerifyAccess(tok string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return c.cfg.Secret, nil
	},
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.cfg.Leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	uid, err := uuid.FromString(claims.UserID)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	sid, err := uuid.FromString(claims.SessionID)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: uid, SessionID: sid, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// NewRefreshToken returns a hex-encoded random refresh token.
func NewRefreshToken() (string, error) {
	b, err := crypto.RandBytes(RefreshTokenBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashRefreshToken is the storage and lookup form of a refresh token.
func HashRefreshToken(v string) string {
	h := sha256.Sum256([]byte(v))
	return hex.EncodeToString(h[:])
}
