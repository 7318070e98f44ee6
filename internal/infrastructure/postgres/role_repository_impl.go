package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OlivMer765/auth-service/internal/domain/entity"
	"github.com/OlivMer765/auth-service/internal/domain/repository"
)

// RoleRepository is the pgx-backed implementation of the role store.
type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// GetByName matches case-insensitively and returns (nil, nil) on a miss.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*entity.Role, error) {
	role := &entity.Role{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM roles WHERE LOWER(name) = LOWER($1)
	`, name).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select role %s: %w", name, err)
	}
	return role, nil
}

// CountUsersInRole counts current membership rows pointing at the role.
func (r *RoleRepository) CountUsersInRole(ctx context.Context, roleID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users in role %s: %w", roleID, err)
	}
	return count, nil
}

// GetUsersByRole returns the hydrated aggregates of every user holding the
// named role.
func (r *RoleRepository) GetUsersByRole(ctx context.Context, roleName string) ([]*entity.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles ro ON ro.id = ur.role_id
		WHERE LOWER(ro.name) = LOWER($1)
	`, roleName)
	if err != nil {
		return nil, fmt.Errorf("select users in role %s: %w", roleName, err)
	}
	defer rows.Close()

	users := []*entity.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}

	// Hydration runs after the membership rows are fully read so only one
	// query is open on the connection at a time.
	for _, u := range users {
		if err := hydrate(ctx, r.pool, u); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// GetUserRoleNames returns whatever role names are present for the user. The
// single-role model expects at most one, but a transiently inconsistent store
// is tolerated.
func (r *RoleRepository) GetUserRoleNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.name
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select role names for %s: %w", userID, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role names: %w", err)
	}
	return names, nil
}

var _ repository.RoleRepository = (*RoleRepository)(nil)
