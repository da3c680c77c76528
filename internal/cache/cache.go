// Package cache holds a record of revoked sessions so access-token checks
// can reject a revoked session without a database round-trip.
//
// Only rejections are short-circuited. A miss says nothing about liveness, so
// every accepted token still costs one session lookup in the store, which
// stays the source of truth.
package cache

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// RevocationStore records revoked session ids until their natural expiry.
type RevocationStore interface {
	// MarkRevoked flags sessionID as revoked until expiresAt.
	MarkRevoked(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error
	// IsRevoked reports whether sessionID was flagged.
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// Nop never remembers anything; every lookup falls through to the store.
type Nop struct{}

func (Nop) MarkRevoked(context.Context, uuid.UUID, time.Time) error { return nil }
func (Nop) IsRevoked(context.Context, uuid.UUID) (bool, error)      { return false, nil }
