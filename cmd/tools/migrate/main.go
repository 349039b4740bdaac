package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/noah-isme/toko-marketplace/internal/config"
	"github.com/noah-isme/toko-marketplace/internal/obs"
	"github.com/noah-isme/toko-marketplace/internal/store"
)

func main() {
	direction := flag.String("direction", "up", "up, down or version")
	steps := flag.Int("steps", 1, "number of migrations to roll back with -direction=down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "migrate").Logger()

	switch *direction {
	case "up":
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
	case "down":
		if err := store.MigrateDown(cfg.DatabaseURL, *steps); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
	case "version":
	default:
		logger.Fatal().Str("direction", *direction).Msg("unknown direction")
	}

	version, dirty, err := store.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("read migration version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
}
