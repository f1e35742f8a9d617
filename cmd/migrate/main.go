// migrate applies the embedded schema migrations; go run ./cmd/migrate -direction up|down, or -version to print the applied version.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"resume-builder/backend/internal/config"
	"resume-builder/backend/internal/db/migrate"
	"resume-builder/backend/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	version := flag.Bool("version", false, "Print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	if *version {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("read schema version", zap.Error(err))
		}
		log.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return
	}

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		log.Fatal("invalid direction", zap.Error(err))
	}
	if err := migrate.Run(cfg.DatabaseURL, dir); err != nil {
		log.Fatal("migrate", zap.String("direction", string(dir)), zap.Error(err))
	}
	log.Info("migrations applied", zap.String("direction", string(dir)))
}
