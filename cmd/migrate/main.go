// Command migrate manages the tonpost Postgres schema via goose.
//
// Usage:
//
//	go run ./cmd/migrate            # Apply all pending migrations
//	go run ./cmd/migrate up
//	go run ./cmd/migrate down       # Roll back the last migration
//	go run ./cmd/migrate status
//	go run ./cmd/migrate version
//
// DATABASE_URL selects the database, read from the environment or a
// local .env file. The server itself falls back to in-memory stores when
// DATABASE_URL is unset; this command requires it.
package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/tonpost/tonpost/internal/logging"
)

const migrationsDir = "migrations"

func main() {
	logger := logging.New("info", "text")

	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("connect to database", "error", err)
		os.Exit(1)
	}

	if err := goose.RunContext(ctx, command, db, migrationsDir, args...); err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		logger.Error("read schema version", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations done", "command", command, "schema_version", version)
}
