package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/safar/go-tienda/internal/config"
	"github.com/safar/go-tienda/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|version]")
	}

	command := os.Args[1]
	if command != "up" && command != "down" && command != "version" {
		log.Fatal("Command must be 'up', 'down' or 'version'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewPostgres(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}

	m, err := database.NewMigrator(db)
	if err != nil {
		db.Close()
		log.Fatalf("Create migrator: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Run migrations %s: %v", command, err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Printf("No migrations applied")
	case err != nil:
		log.Fatalf("Read schema version: %v", err)
	default:
		log.Printf("Schema at version %d (dirty: %t)", version, dirty)
	}
}
