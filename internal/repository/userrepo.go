// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/Ivan-Madera/autorizador/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository is the credential store.
type UserRepository interface {
	// Create inserts a new user; a duplicate email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateLastLogin stamps a successful login.
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
