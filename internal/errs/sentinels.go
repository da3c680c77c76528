// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidCredentials indicates failed authentication of a password or token.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation indicates malformed input rejected before reaching the store.
	ErrValidation = errors.New("validation failure")

	// ErrInternal indicates a store/codec failure that callers cannot act on.
	ErrInternal = errors.New("internal failure")

	// ErrSessionRevoked is returned by the session store when a conditional
	// revoke finds the row already revoked (lost rotation race).
	ErrSessionRevoked = errors.New("session already revoked")
)
