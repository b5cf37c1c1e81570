package main

import (
	"context"
	"log"
	"os"

	"kickchoice/internal/config"
	"kickchoice/internal/container"
	"kickchoice/internal/migration"

	"github.com/joho/godotenv"
)

// Creates or upgrades the run store schema. The database URL comes from
// DATABASE_URL or the first argument.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if len(os.Args) > 1 {
		cfg.Database.URL = os.Args[1]
	}
	if !cfg.PersistenceEnabled() {
		log.Fatal("Usage: migrate <database_url> (or set DATABASE_URL)")
	}

	db, err := container.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	runner := migration.NewRunner()
	if err := runner.Run(context.Background(), db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Schema is at version %s (%s)", runner.Version(), cfg.Database.Driver)
}
