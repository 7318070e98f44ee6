package entity

import (
	"strings"
	"time"
)

// User is the aggregate root of the account domain. Every read through the
// repository returns it fully hydrated: Profile, EmailState, PasswordReset and
// Roles are loaded together so callers never chase relations afterwards.
//
// Password holds the bcrypt hash, never the plain credential.
type User struct {
	ID        string
	Name      string
	Surname   string
	Username  string
	Email     string
	Password  string
	Status    bool
	CreatedAt time.Time
	UpdatedAt time.Time

	Profile       *UserProfile
	EmailState    *UserEmail
	PasswordReset *UserPasswordReset
	Roles         []UserRole
}

// UserProfile is the per-user display data, one row per user.
type UserProfile struct {
	UserID    string
	AvatarURL string
	Bio       string
	UpdatedAt time.Time
}

// UserEmail tracks email verification state. VerificationToken is a single-use
// opaque string; clearing it after use is the caller's job, the store only
// matches it exactly.
type UserEmail struct {
	UserID            string
	VerificationToken *string
	VerifiedAt        *time.Time
}

// Verified reports whether the address has been confirmed.
func (e *UserEmail) Verified() bool {
	return e != nil && e.VerifiedAt != nil
}

// UserPasswordReset tracks password recovery state. The token is not expired by
// the store; RequestedAt lets callers apply their own time limit.
type UserPasswordReset struct {
	UserID      string
	ResetToken  *string
	RequestedAt *time.Time
}

// UserRole is one membership grant. RoleName is filled in on reads by joining
// the roles table.
type UserRole struct {
	ID       string
	UserID   string
	RoleID   string
	RoleName string
}

// RoleNames returns the names of the roles currently held. At most one entry is
// expected under the single-role model, but the slice mirrors whatever rows are
// present.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.RoleName)
	}
	return names
}

// HasRole reports whether the user holds the named role (case-insensitive).
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r.RoleName, name) {
			return true
		}
	}
	return false
}
