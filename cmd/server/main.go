package main

import (
	"context"
	"log"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/sidesa-id/sidesa/db"
	"github.com/sidesa-id/sidesa/internal/config"
	"github.com/sidesa-id/sidesa/router"
)

func main() {
	log.Println("Starting API server...")

	// Load Config
	configPath := os.Getenv("SIDESA_CONFIG_PATH")

	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if config.App.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable (or config) is required")
	}
	if config.App.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable (or config) is required")
	}

	pg, err := db.Connect(config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()
	log.Println("  Connected to database successfully")

	// Redis is optional: without it, session validation always hits postgres.
	var rdb *redis.Client
	if config.App.RedisURL != "" {
		opts, err := redis.ParseURL(config.App.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("Warning: redis unreachable, running without session cache: %v", err)
			rdb = nil
		} else {
			log.Println("  Connected to redis successfully")
		}
	}

	r := router.NewGinRouter(pg, rdb)

	addr := ":" + config.App.Port
	log.Printf("Listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
