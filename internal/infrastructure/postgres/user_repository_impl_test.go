package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_key"}
	constraint, ok := isUniqueViolation(fmt.Errorf("insert user: %w", pgErr))
	if !ok {
		t.Fatal("23505 not recognized")
	}
	if constraint != "users_email_lower_key" {
		t.Fatalf("constraint = %q", constraint)
	}

	if _, ok := isUniqueViolation(&pgconn.PgError{Code: "23503"}); ok {
		t.Fatal("foreign key violation must not count as unique violation")
	}
	if _, ok := isUniqueViolation(fmt.Errorf("plain error")); ok {
		t.Fatal("non-pg error must not count as unique violation")
	}
}
