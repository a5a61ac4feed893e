package main

import (
	"database/sql"
	_ "embed"
	"log"

	_ "github.com/lib/pq"

	"affiliate-service/internal/config"
)

//go:embed schema.sql
var schemaSQL string

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatal("migrate only targets postgres; sqlite databases are migrated on startup")
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Println("Applying schema.sql")
	if _, err := db.Exec(schemaSQL); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	log.Println("Schema applied successfully")
}
