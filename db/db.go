package db

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

// Connect opens a postgres connection and verifies it.
func Connect(databaseURL string) (*sql.DB, error) {
	pg, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pg.Ping(); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Keep all timestamp comparisons in UTC.
	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		log.Printf("Failed to set database timezone to UTC: %v", err)
	}

	return pg, nil
}
