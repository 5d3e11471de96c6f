// Command migrate opens the execution database and event log, runs
// their migrations, and prints the resulting table inventory. Separate
// from cmd/engine so an operator can provision a fresh database (or
// verify an existing one) without starting the engine itself.
//
// Grounded on scripts/db_setup.go from the teacher repo, retargeted
// from a hand-rolled DROP/CREATE schema dump at a raw *sql.DB onto
// persistence.New's GORM AutoMigrate and eventlog.Open's migrate,
// which own the actual schema definitions.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/axiom-trade/exengine/eventlog"
	"github.com/axiom-trade/exengine/internal/config"
	"github.com/axiom-trade/exengine/persistence"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, continuing with process environment")
	}

	cfg, err := config.Load(os.Getenv("EXENGINE_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	fmt.Printf("migrating execution database: %s\n", cfg.DatabaseDSN)
	store, err := persistence.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("execution database migration failed")
	}
	defer store.Close()
	fmt.Println("execution database ready (orders, positions, accounts)")

	if cfg.EventLogDSN == "" {
		fmt.Println("no eventlog_dsn configured, skipping event log migration")
		return
	}

	fmt.Printf("migrating event log: %s\n", cfg.EventLogDSN)
	journal, err := eventlog.Open(cfg.EventLogDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("event log migration failed")
	}
	defer journal.Close()
	fmt.Println("event log ready (execution_log)")
}
