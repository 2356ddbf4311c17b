// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"identity-sessions/internal/config"
	"identity-sessions/internal/db"
	"identity-sessions/internal/security"
	userdomain "identity-sessions/internal/user/domain"
	userrepo "identity-sessions/internal/user/repository"
)

const (
	devLogin    = "dev"
	devEmail    = "dev@example.com"
	devPassword = "password1"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, devEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	user := userdomain.NewUser(devLogin, devEmail, passwordHash, time.Now().UTC())
	user.IsEmailConfirmed = true
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("create dev user: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devLogin, devPassword)
}
