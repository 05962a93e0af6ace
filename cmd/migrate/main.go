// cmd/migrate/main.go: applies or reverts the embedded schema migrations.
// Uso: go run ./cmd/migrate [up|down]
package main

import (
	"os"

	"systeminvoice/internal/config"
	"systeminvoice/internal/infra"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}
	switch direction {
	case "up":
		err = infra.RunMigrations(db)
	case "down":
		err = infra.RollbackMigrations(db)
	default:
		log.Fatal().Str("direction", direction).Msg("usage: migrate [up|down]")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}
