package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/miluhq/milu/internal/store/postgres"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the SQL migrations")
	down := flag.Bool("down", false, "roll back all migrations instead of applying them")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if *down {
		if err := postgres.MigrateDown(databaseURL, *dir); err != nil {
			log.Fatalf("failed to roll back migrations: %v", err)
		}
		log.Println("migrations rolled back")
		return
	}

	if err := postgres.Migrate(databaseURL, *dir); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}
	log.Println("migrations applied")
}
