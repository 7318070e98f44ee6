package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/OlivMer765/auth-service/config"
	"github.com/OlivMer765/auth-service/pkg/helpers"
)

// Seeds the base roles and a verified admin account for local development.

var roleNames = []string{"ADMIN", "USER", "GUEST"}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	roleIDs := make(map[string]string, len(roleNames))
	for _, name := range roleNames {
		id, err := helpers.NewID()
		if err != nil {
			log.Fatalf("failed to generate role id: %v", err)
		}
		var got string
		err = db.QueryRow(`
			INSERT INTO roles (id, name) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET updated_at = now()
			RETURNING id
		`, id, name).Scan(&got)
		if err != nil {
			log.Fatalf("failed to upsert role %s: %v", name, err)
		}
		roleIDs[name] = got
	}
	fmt.Printf("roles ensured: %v\n", roleIDs)

	email := "admin@example.com"
	password := "admin-password-123"
	hash, err := helpers.HashPassword(password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	userID, err := helpers.NewID()
	if err != nil {
		log.Fatalf("failed to generate user id: %v", err)
	}

	var id string
	err = db.QueryRow(`
		INSERT INTO users (id, name, surname, username, email, password)
		VALUES ($1, 'Admin', 'Local', 'admin', $2, $3)
		ON CONFLICT ((LOWER(email))) DO UPDATE SET updated_at = now()
		RETURNING id
	`, userID, email, hash).Scan(&id)
	if err != nil {
		log.Fatalf("failed to seed admin user: %v", err)
	}

	if _, err := db.Exec(`
		INSERT INTO user_profiles (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, id); err != nil {
		log.Fatalf("failed to seed profile: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO user_emails (user_id, verified_at) VALUES ($1, now())
		ON CONFLICT (user_id) DO UPDATE SET verified_at = COALESCE(user_emails.verified_at, now())
	`, id); err != nil {
		log.Fatalf("failed to seed email state: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO user_password_resets (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, id); err != nil {
		log.Fatalf("failed to seed reset state: %v", err)
	}

	membershipID, err := helpers.NewID()
	if err != nil {
		log.Fatalf("failed to generate membership id: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO user_roles (id, user_id, role_id) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET role_id = EXCLUDED.role_id
	`, membershipID, id, roleIDs["ADMIN"]); err != nil {
		log.Fatalf("failed to assign admin role: %v", err)
	}

	fmt.Printf("seeded admin: id=%s email=%s password=%s\n", id, email, password)
}
