// Command migrate applies or rolls back schema migrations. Deployment tooling
// runs it before the API starts; the service itself never mutates schema.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/idris/go-pos-store/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.Database.MigrationsPath),
		cfg.Database.URL,
	)
	if err != nil {
		log.Fatalf("Create migrate instance: %v", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("No migrations to apply")
			return
		}
		log.Fatalf("Run migrations %s: %v", direction, err)
	}

	log.Printf("Migrations %s complete", direction)
}
