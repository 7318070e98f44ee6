package entity

import "time"

// Role is reference data seeded at install time, never owned by a user.
// ID is a short code such as "ADMIN"; Name is the unique display name.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
