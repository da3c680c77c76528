package repository

import (
	"context"
	"time"

	"github.com/Ivan-Madera/autorizador/internal/model"
	"github.com/gofrs/uuid/v5"
)

// SessionRepository is the session store. Rows are never deleted and
// revoked_at, once set, is never cleared.
type SessionRepository interface {
	// Create inserts a new active session.
	Create(ctx context.Context, s *model.Session) error

	// GetByRefreshHash loads the session owning a refresh token hash.
	GetByRefreshHash(ctx context.Context, hash string) (*model.Session, error)

	// GetByID loads a session by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)

	// Rotate atomically inserts next and marks oldID revoked with
	// replaced_by=next.ID. If oldID is no longer unrevoked it returns
	// errs.ErrSessionRevoked and writes nothing.
	Rotate(ctx context.Context, oldID uuid.UUID, next *model.Session, now time.Time) error

	// Revoke sets revoked_at on an unrevoked session without a successor.
	// It is idempotent and reports whether a row changed.
	Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// RevokeAllForUser revokes every unrevoked session of userID and
	// returns the sessions it closed.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.Revoked, error)

	// ListByUser returns all sessions of userID, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error)
}
