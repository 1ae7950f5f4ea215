package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, or status")
		dir     = flag.String("dir", "db/migrations", "Directory containing migration files")
	)
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(*command, *dir); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}

func run(command, dir string) error {
	dsn, err := dsnFromEnv()
	if err != nil {
		return err
	}

	migrationDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve migration dir %q: %w", dir, err)
	}
	if _, err := os.Stat(migrationDir); os.IsNotExist(err) {
		return fmt.Errorf("migration dir %q does not exist", migrationDir)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	log.Info().Str("migration_dir", migrationDir).Msg("connected to database")

	goose.SetBaseFS(nil)
	goose.SetTableName("goose_db_version")

	switch command {
	case "up":
		if err := goose.Up(db, migrationDir); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		log.Info().Msg("migrations applied")
	case "down":
		if err := goose.Down(db, migrationDir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		log.Info().Msg("migration rolled back")
	case "status":
		if err := goose.Status(db, migrationDir); err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
	default:
		return fmt.Errorf("unknown command %q, use up, down, or status", command)
	}
	return nil
}

func dsnFromEnv() (string, error) {
	host := getEnv("PG_HOST", "localhost")
	port := getEnv("PG_PORT", "5432")
	user := os.Getenv("PG_USER")
	password := os.Getenv("PG_PASSWORD")
	database := os.Getenv("PG_DATABASE")
	sslMode := getEnv("PG_SSL_MODE", "disable")

	for name, v := range map[string]string{"PG_USER": user, "PG_PASSWORD": password, "PG_DATABASE": database} {
		if v == "" {
			return "", fmt.Errorf("%s environment variable is required", name)
		}
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, database, sslMode), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
