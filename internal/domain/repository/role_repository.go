package repository

import (
	"context"

	"github.com/OlivMer765/auth-service/internal/domain/entity"
)

// RoleRepository is the persistence contract for roles and membership queries.
type RoleRepository interface {
	// GetByName matches case-insensitively and returns (nil, nil) on a miss.
	GetByName(ctx context.Context, name string) (*entity.Role, error)

	// CountUsersInRole counts current membership rows for the role.
	CountUsersInRole(ctx context.Context, roleID string) (int64, error)

	// GetUsersByRole returns hydrated users currently holding the named role.
	GetUsersByRole(ctx context.Context, roleName string) ([]*entity.User, error)

	// GetUserRoleNames returns the role names held by the user. Zero or one
	// entry is expected under the single-role model, but whatever rows exist
	// are returned.
	GetUserRoleNames(ctx context.Context, userID string) ([]string, error)
}
