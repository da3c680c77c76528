// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens is the pair handed to a client after login or rotation.
// RefreshToken is returned once, in cleartext, and never stored.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	SessionID    uuid.UUID
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}

// User represents an account. PasswordHash is a PHC Argon2id string.
type User struct {
	ID           uuid.UUID // PK
	Email        string    // unique, stored lower-cased
	PasswordHash string
	LastLogin    *time.Time
	CreatedAt    time.Time
}

// Device describes the client a session was opened from.
type Device struct {
	DeviceID   string
	DeviceType *string
	IP         *string
	UserAgent  *string
}

// Session is a refresh-token lineage node. Rows are never deleted.
type Session struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	RefreshTokenHash string // sha256 hex of the refresh token
	Device
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID // set only when revoked by rotation
	CreatedAt  time.Time
}

// SessionState is derived from RevokedAt/ReplacedBy/ExpiresAt.
type SessionState string

const (
	StateActive  SessionState = "active"
	StateRotated SessionState = "rotated"
	StateRevoked SessionState = "revoked"
	StateExpired SessionState = "expired"
)

// State reports the lifecycle state at now. Revocation wins over expiry.
func (s *Session) State(now time.Time) SessionState {
	switch {
	case s.RevokedAt != nil && s.ReplacedBy != nil:
		return StateRotated
	case s.RevokedAt != nil:
		return StateRevoked
	case !s.ExpiresAt.After(now):
		return StateExpired
	default:
		return StateActive
	}
}

// Live reports revoked_at IS NULL AND expires_at > now.
func (s *Session) Live(now time.Time) bool { return s.State(now) == StateActive }

// Revoked is a session id closed by a bulk revoke, with its original expiry.
type Revoked struct {
	ID        uuid.UUID
	ExpiresAt time.Time
}
