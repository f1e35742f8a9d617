// seed inserts development users for local testing. Run after migrations.
// Idempotent: an already registered email is skipped.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"resume-builder/backend/internal/config"
	"resume-builder/backend/internal/db"
	identityrepo "resume-builder/backend/internal/identity/repository"
	identityservice "resume-builder/backend/internal/identity/service"
	"resume-builder/backend/internal/logger"
	"resume-builder/backend/internal/security"
	userrepo "resume-builder/backend/internal/user/repository"
)

// devPassword satisfies the registration password policy.
const devPassword = "Resume-Dev-Password-1"

var devUsers = []struct {
	email    string
	name     string
	verified bool
}{
	{"dev@example.com", "Dev User", true},
	{"reviewer@example.com", "Resume Reviewer", false},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Env, cfg.LogLevel).Named("seed")
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	// Registration never opens a session or issues tokens, so neither is wired here.
	auth := identityservice.NewAuthService(users, identityrepo.NewPostgresRepository(pool), nil,
		security.NewHasher(cfg.BcryptCost), nil, nil, nil, log)

	for _, u := range devUsers {
		res, err := auth.Register(ctx, u.email, devPassword, u.name)
		if errors.Is(err, identityservice.ErrEmailAlreadyRegistered) {
			log.Info("user already seeded", zap.String("email", u.email))
			continue
		}
		if err != nil {
			log.Fatal("register", zap.String("email", u.email), zap.Error(err))
		}
		if u.verified {
			if err := users.SetVerified(ctx, res.UserID); err != nil {
				log.Fatal("verify", zap.String("email", u.email), zap.Error(err))
			}
		}
		log.Info("seeded user", zap.String("email", u.email), zap.String("user_id", res.UserID))
	}
	log.Info("seed complete", zap.String("password", devPassword))
}
