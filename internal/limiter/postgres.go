package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Policy bounds failed logins per (email, ip).
type Policy struct {
	// Window is counted from the first failure of a streak.
	Window time.Duration
	// MaxFails failures inside one window start a lockout.
	MaxFails int
	// BlockFor is the lockout length. A lockout clears the streak.
	BlockFor time.Duration
}

// PG keeps failure streaks in the auth_limiter table.
type PG struct {
	q   Querier
	pol Policy
	now func() time.Time
}

// NewPG builds a limiter over q.
func NewPG(q Querier, pol Policy) *PG {
	return &PG{q: q, pol: pol, now: time.Now}
}

const (
	selectBlock = `SELECT blocked_until FROM auth_limiter WHERE email=$1 AND ip_hash=$2`

	clearStreak = `DELETE FROM auth_limiter WHERE email=$1 AND ip_hash=$2`

	// A streak older than the window restarts at this failure.
	recordFailure = `
INSERT INTO auth_limiter AS l (email, ip_hash, fail_count, window_start, blocked_until, updated_at)
VALUES ($1, $2, 1, $3, 'epoch', $3)
ON CONFLICT (email, ip_hash) DO UPDATE SET
  fail_count   = CASE WHEN l.window_start + $4::interval <= $3 THEN 1  ELSE l.fail_count + 1 END,
  window_start = CASE WHEN l.window_start + $4::interval <= $3 THEN $3 ELSE l.window_start END,
  updated_at   = $3
RETURNING fail_count`

	startLockout = `
UPDATE auth_limiter
SET fail_count=0, window_start=$3, blocked_until=$4, updated_at=$3
WHERE email=$1 AND ip_hash=$2`
)

// Allow reports whether (email, ip) may attempt a login, and if not, for how long.
func (l *PG) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	var until time.Time
	err := l.q.QueryRow(ctx, selectBlock, email, ipHash).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("limiter: allow: %w", err)
	}
	if now := l.now(); until.After(now) {
		return false, until.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets the failure streak of (email, ip).
func (l *PG) Success(ctx context.Context, email string, ipHash []byte) error {
	if _, err := l.q.Exec(ctx, clearStreak, email, ipHash); err != nil {
		return fmt.Errorf("limiter: success: %w", err)
	}
	return nil
}

// Failure records a failed attempt. Reaching MaxFails locks the pair for
// BlockFor and resets the streak, so the first failure after the lockout
// counts as one.
func (l *PG) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()
	var fails int
	if err := l.q.QueryRow(ctx, recordFailure, email, ipHash, now, l.pol.Window).Scan(&fails); err != nil {
		return false, 0, fmt.Errorf("limiter: record failure: %w", err)
	}
	if fails < l.pol.MaxFails {
		return false, 0, nil
	}
	if _, err := l.q.Exec(ctx, startLockout, email, ipHash, now, now.Add(l.pol.BlockFor)); err != nil {
		return false, 0, fmt.Errorf("limiter: lockout: %w", err)
	}
	return true, l.pol.BlockFor, nil
}
