package entity

import (
	"testing"
	"time"
)

func TestUserEmailVerified(t *testing.T) {
	var e *UserEmail
	if e.Verified() {
		t.Fatal("nil state must not be verified")
	}
	e = &UserEmail{UserID: "u1"}
	if e.Verified() {
		t.Fatal("no VerifiedAt must not be verified")
	}
	now := time.Now()
	e.VerifiedAt = &now
	if !e.Verified() {
		t.Fatal("VerifiedAt set must be verified")
	}
}

func TestRoleNames(t *testing.T) {
	u := &User{}
	if got := u.RoleNames(); got == nil || len(got) != 0 {
		t.Fatalf("no memberships should yield empty non-nil slice, got %v", got)
	}
	u.Roles = []UserRole{
		{ID: "m1", UserID: "u1", RoleID: "r1", RoleName: "ADMIN"},
		{ID: "m2", UserID: "u1", RoleID: "r2", RoleName: "USER"},
	}
	got := u.RoleNames()
	if len(got) != 2 || got[0] != "ADMIN" || got[1] != "USER" {
		t.Fatalf("RoleNames = %v", got)
	}
}

func TestHasRole(t *testing.T) {
	u := &User{Roles: []UserRole{{RoleName: "Admin"}}}
	for _, name := range []string{"Admin", "ADMIN", "admin"} {
		if !u.HasRole(name) {
			t.Fatalf("HasRole(%q) = false", name)
		}
	}
	if u.HasRole("USER") {
		t.Fatal("HasRole(USER) = true for admin-only user")
	}
}
