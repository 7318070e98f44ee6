package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OlivMer765/auth-service/internal/domain/entity"
	"github.com/OlivMer765/auth-service/internal/domain/repository"
	"github.com/OlivMer765/auth-service/pkg/helpers"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so reads compose with
// or without an explicit transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `u.id, u.name, u.surname, u.username, u.email, u.password, u.status, u.created_at, u.updated_at`

// UserRepository is the pgx-backed implementation of the user store.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func isUniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Username, &u.Email,
		&u.Password, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// getOne fetches a single user by an arbitrary predicate and hydrates the full
// aggregate. Returns (nil, nil) when no row matches.
func (r *UserRepository) getOne(ctx context.Context, q querier, query string, args ...any) (*entity.User, error) {
	u, err := scanUser(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if err := hydrate(ctx, q, u); err != nil {
		return nil, err
	}
	return u, nil
}

// hydrate loads the owned relations of u in the same session: profile, email
// state, password-reset state and role memberships with role names.
func hydrate(ctx context.Context, q querier, u *entity.User) error {
	p := &entity.UserProfile{}
	err := q.QueryRow(ctx, `
		SELECT user_id, avatar_url, bio, updated_at
		FROM user_profiles WHERE user_id = $1
	`, u.ID).Scan(&p.UserID, &p.AvatarURL, &p.Bio, &p.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load profile for %s: %w", u.ID, err)
	default:
		u.Profile = p
	}

	e := &entity.UserEmail{}
	err = q.QueryRow(ctx, `
		SELECT user_id, verification_token, verified_at
		FROM user_emails WHERE user_id = $1
	`, u.ID).Scan(&e.UserID, &e.VerificationToken, &e.VerifiedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load email state for %s: %w", u.ID, err)
	default:
		u.EmailState = e
	}

	pr := &entity.UserPasswordReset{}
	err = q.QueryRow(ctx, `
		SELECT user_id, reset_token, requested_at
		FROM user_password_resets WHERE user_id = $1
	`, u.ID).Scan(&pr.UserID, &pr.ResetToken, &pr.RequestedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load reset state for %s: %w", u.ID, err)
	default:
		u.PasswordReset = pr
	}

	rows, err := q.Query(ctx, `
		SELECT ur.id, ur.user_id, ur.role_id, r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
	`, u.ID)
	if err != nil {
		return fmt.Errorf("load roles for %s: %w", u.ID, err)
	}
	defer rows.Close()

	u.Roles = []entity.UserRole{}
	for rows.Next() {
		var ur entity.UserRole
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.RoleName); err != nil {
			return fmt.Errorf("scan role row: %w", err)
		}
		u.Roles = append(u.Roles, ur)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate role rows: %w", err)
	}
	return nil
}

// GetByID returns the full aggregate or repository.ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, err := r.getOne(ctx, r.pool, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return u, nil
}

// GetByEmail matches case-insensitively and returns (nil, nil) on a miss.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, r.pool,
		`SELECT `+userColumns+` FROM users u WHERE LOWER(u.email) = LOWER($1)`, email)
}

// GetByUsername matches case-insensitively and returns (nil, nil) on a miss.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, r.pool,
		`SELECT `+userColumns+` FROM users u WHERE LOWER(u.username) = LOWER($1)`, username)
}

// GetByEmailVerificationToken matches the token exactly; (nil, nil) on a miss.
func (r *UserRepository) GetByEmailVerificationToken(ctx context.Context, token string) (*entity.User, error) {
	return r.getOne(ctx, r.pool, `
		SELECT `+userColumns+`
		FROM users u
		JOIN user_emails ue ON ue.user_id = u.id
		WHERE ue.verification_token = $1
	`, token)
}

// GetByPasswordResetToken matches the token exactly; (nil, nil) on a miss.
func (r *UserRepository) GetByPasswordResetToken(ctx context.Context, token string) (*entity.User, error) {
	return r.getOne(ctx, r.pool, `
		SELECT `+userColumns+`
		FROM users u
		JOIN user_password_resets upr ON upr.user_id = u.id
		WHERE upr.reset_token = $1
	`, token)
}

// Create inserts the aggregate in one transaction, then re-reads it by id so
// the returned value reflects exactly what the store persisted.
func (r *UserRepository) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, name, surname, username, email, password, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Name, u.Surname, u.Username, u.Email, u.Password, u.Status, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			return nil, fmt.Errorf("%s: %w", constraint, repository.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user %s: %w", u.ID, err)
	}

	profile := u.Profile
	if profile == nil {
		profile = &entity.UserProfile{UserID: u.ID}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO user_profiles (user_id, avatar_url, bio, updated_at)
		VALUES ($1, $2, $3, $4)
	`, u.ID, profile.AvatarURL, profile.Bio, now)
	if err != nil {
		return nil, fmt.Errorf("insert profile for %s: %w", u.ID, err)
	}

	var verifyToken *string
	var verifiedAt *time.Time
	if u.EmailState != nil {
		verifyToken = u.EmailState.VerificationToken
		verifiedAt = u.EmailState.VerifiedAt
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO user_emails (user_id, verification_token, verified_at)
		VALUES ($1, $2, $3)
	`, u.ID, verifyToken, verifiedAt)
	if err != nil {
		return nil, fmt.Errorf("insert email state for %s: %w", u.ID, err)
	}

	var resetToken *string
	var requestedAt *time.Time
	if u.PasswordReset != nil {
		resetToken = u.PasswordReset.ResetToken
		requestedAt = u.PasswordReset.RequestedAt
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO user_password_resets (user_id, reset_token, requested_at)
		VALUES ($1, $2, $3)
	`, u.ID, resetToken, requestedAt)
	if err != nil {
		return nil, fmt.Errorf("insert reset state for %s: %w", u.ID, err)
	}

	for _, ur := range u.Roles {
		id := ur.ID
		if id == "" {
			if id, err = helpers.NewID(); err != nil {
				return nil, fmt.Errorf("generate membership id: %w", err)
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO user_roles (id, user_id, role_id)
			VALUES ($1, $2, $3)
		`, id, u.ID, ur.RoleID)
		if err != nil {
			return nil, fmt.Errorf("insert membership for %s: %w", u.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			return nil, fmt.Errorf("%s: %w", constraint, repository.ErrDuplicate)
		}
		return nil, fmt.Errorf("commit create: %w", err)
	}

	created, err := r.GetByID(ctx, u.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("created user %s: %w", u.ID, repository.ErrReadBack)
	}
	return created, err
}

// Update persists mutations to the user row and owned state rows in one
// transaction, then re-reads the aggregate. Memberships are not touched here;
// they change only through UpdateUserRole.
func (r *UserRepository) Update(ctx context.Context, u *entity.User) (*entity.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u.UpdatedAt = time.Now().UTC()
	res, err := tx.Exec(ctx, `
		UPDATE users
		SET name = $2, surname = $3, username = $4, email = $5,
		    password = $6, status = $7, updated_at = $8
		WHERE id = $1
	`, u.ID, u.Name, u.Surname, u.Username, u.Email, u.Password, u.Status, u.UpdatedAt)
	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			return nil, fmt.Errorf("%s: %w", constraint, repository.ErrDuplicate)
		}
		return nil, fmt.Errorf("update user %s: %w", u.ID, err)
	}
	if res.RowsAffected() == 0 {
		return nil, fmt.Errorf("user %s: %w", u.ID, repository.ErrNotFound)
	}

	if u.Profile != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO user_profiles (user_id, avatar_url, bio, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE
			SET avatar_url = EXCLUDED.avatar_url, bio = EXCLUDED.bio, updated_at = EXCLUDED.updated_at
		`, u.ID, u.Profile.AvatarURL, u.Profile.Bio, u.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("upsert profile for %s: %w", u.ID, err)
		}
	}

	if u.EmailState != nil {
		_, err = tx.Exec(ctx, `
			UPDATE user_emails SET verification_token = $2, verified_at = $3
			WHERE user_id = $1
		`, u.ID, u.EmailState.VerificationToken, u.EmailState.VerifiedAt)
		if err != nil {
			return nil, fmt.Errorf("update email state for %s: %w", u.ID, err)
		}
	}

	if u.PasswordReset != nil {
		_, err = tx.Exec(ctx, `
			UPDATE user_password_resets SET reset_token = $2, requested_at = $3
			WHERE user_id = $1
		`, u.ID, u.PasswordReset.ResetToken, u.PasswordReset.RequestedAt)
		if err != nil {
			return nil, fmt.Errorf("update reset state for %s: %w", u.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			return nil, fmt.Errorf("%s: %w", constraint, repository.ErrDuplicate)
		}
		return nil, fmt.Errorf("commit update: %w", err)
	}

	updated, err := r.GetByID(ctx, u.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("updated user %s: %w", u.ID, repository.ErrReadBack)
	}
	return updated, err
}

// Delete removes the user row; owned rows go with it via ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by email: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by username: %w", err)
	}
	return exists, nil
}

// UpdateUserRole replaces all memberships for the user with a single one for
// roleID. Delete and insert share one transaction, so no reader observes the
// user with zero roles in between.
func (r *UserRepository) UpdateUserRole(ctx context.Context, userID, roleID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin role update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear roles for %s: %w", userID, err)
	}

	id, err := helpers.NewID()
	if err != nil {
		return fmt.Errorf("generate membership id: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO user_roles (id, user_id, role_id)
		VALUES ($1, $2, $3)
	`, id, userID, roleID)
	if err != nil {
		return fmt.Errorf("assign role %s to %s: %w", roleID, userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit role update: %w", err)
	}
	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
