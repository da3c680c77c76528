package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ivan-Madera/autorizador/internal/errs"
	"github.com/Ivan-Madera/autorizador/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// SessionRepo implements SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionCols = `id, user_id, refresh_token_hash, device_id, device_type, ip, user_agent, expires_at, revoked_at, replaced_by, created_at`

const insertSession = `
INSERT INTO sessions (id, user_id, refresh_token_hash, device_id, device_type, ip, user_agent, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func insertArgs(s *model.Session) []any {
	return []any{s.ID, s.UserID, s.RefreshTokenHash, s.DeviceID, s.DeviceType, s.IP, s.UserAgent, s.ExpiresAt, s.CreatedAt}
}

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	_, err := r.db.Pool.Exec(ctx, insertSession, insertArgs(s)...)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByRefreshHash selects a session by refresh token hash.
func (r *SessionRepo) GetByRefreshHash(ctx context.Context, hash string) (*model.Session, error) {
	q := `SELECT ` + sessionCols + ` FROM sessions WHERE refresh_token_hash=$1`
	return scanSession(r.db.Pool.QueryRow(ctx, q, hash))
}

// GetByID selects a session by ID.
func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	q := `SELECT ` + sessionCols + ` FROM sessions WHERE id=$1`
	return scanSession(r.db.Pool.QueryRow(ctx, q, id))
}

// Rotate inserts the successor and links the predecessor in one transaction.
// The predecessor row is locked first so concurrent rotations of the same
// token serialize; the loser sees revoked_at set and gets ErrSessionRevoked.
func (r *SessionRepo) Rotate(ctx context.Context, oldID uuid.UUID, next *model.Session, now time.Time) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT revoked_at FROM sessions WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE sessions SET revoked_at=$2, replaced_by=$3 WHERE id=$1 AND revoked_at IS NULL`

	var revokedAt *time.Time
	switch scanErr := tx.QueryRow(ctx, sel, oldID).Scan(&revokedAt); {
	case errors.Is(scanErr, pgx.ErrNoRows):
		return errs.ErrNotFound
	case scanErr != nil:
		return fmt.Errorf("lock session: %w", scanErr)
	case revokedAt != nil:
		return errs.ErrSessionRevoked
	}

	if _, err = tx.Exec(ctx, insertSession, insertArgs(next)...); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return fmt.Errorf("insert successor: %w", err)
	}
	tag, err := tx.Exec(ctx, upd, oldID, now, next.ID)
	if err != nil {
		return fmt.Errorf("link predecessor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrSessionRevoked
	}
	return nil
}

// Revoke closes a session without a successor; already-revoked rows are untouched.
func (r *SessionRepo) Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	const q = `UPDATE sessions SET revoked_at=$2 WHERE id=$1 AND revoked_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, id, now)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllForUser closes every open session of a user.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.Revoked, error) {
	const q = `
UPDATE sessions SET revoked_at=$2
WHERE user_id=$1 AND revoked_at IS NULL
RETURNING id, expires_at`
	rows, err := r.db.Pool.Query(ctx, q, userID, now)
	if err != nil {
		return nil, fmt.Errorf("revoke all: %w", err)
	}
	defer rows.Close()

	var out []model.Revoked
	for rows.Next() {
		var rv model.Revoked
		if err := rows.Scan(&rv.ID, &rv.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// ListByUser returns every session of a user, newest first.
func (r *SessionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	q := `SELECT ` + sessionCols + ` FROM sessions WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.RefreshTokenHash,
		&s.DeviceID, &s.DeviceType, &s.IP, &s.UserAgent,
		&s.ExpiresAt, &s.RevokedAt, &s.ReplacedBy, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}
