package repository

import (
	"context"

	"github.com/OlivMer765/auth-service/internal/domain/entity"
)

// UserRepository is the persistence contract for the User aggregate.
//
// Every method that returns a *entity.User returns it eagerly hydrated:
// profile, email state, password-reset state and role memberships are loaded
// in the same operation. Email and username matching is case-insensitive;
// token matching is exact.
type UserRepository interface {
	// GetByID returns the aggregate or ErrNotFound.
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// GetByEmail returns the aggregate, or (nil, nil) when no user matches.
	GetByEmail(ctx context.Context, email string) (*entity.User, error)

	// GetByUsername returns the aggregate, or (nil, nil) when no user matches.
	GetByUsername(ctx context.Context, username string) (*entity.User, error)

	// GetByEmailVerificationToken resolves a pending verification token to its
	// user, or (nil, nil). The token is not invalidated; callers clear it.
	GetByEmailVerificationToken(ctx context.Context, token string) (*entity.User, error)

	// GetByPasswordResetToken resolves a reset token to its user, or (nil, nil).
	GetByPasswordResetToken(ctx context.Context, token string) (*entity.User, error)

	// Create persists the aggregate and returns it re-read from storage so the
	// result reflects exactly what was written. Unique conflicts surface as
	// ErrDuplicate; a failed re-read as ErrReadBack.
	Create(ctx context.Context, u *entity.User) (*entity.User, error)

	// Update persists mutations to the aggregate and re-reads it, with the same
	// failure modes as Create plus ErrNotFound when the user row is gone.
	Update(ctx context.Context, u *entity.User) (*entity.User, error)

	// Delete removes the user and, via cascade, all owned rows. ErrNotFound
	// when no such user exists; the store is left unchanged in that case.
	Delete(ctx context.Context, id string) error

	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// UpdateUserRole atomically replaces the user's memberships with a single
	// membership for roleID. Concurrent readers never observe the intermediate
	// zero-role state.
	UpdateUserRole(ctx context.Context, userID, roleID string) error
}
