package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/reallocator/internal/config"
	"github.com/elys-network/reallocator/internal/logger"
	"github.com/elys-network/reallocator/internal/state"
)

func main() {
	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Starting database reset script...")

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	if err := config.LoadDBConfig(); err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	if !config.DBEnabled {
		log.Fatal().Msg("DB_HOST environment variable not set.")
	}

	log.Info().
		Str("host", config.DB.Host).
		Int("port", config.DB.Port).
		Str("user", config.DB.User).
		Str("dbname", config.DB.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(config.DB); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	log.Info().Msg("Connected to database. Dropping plan_records...")
	if _, err := state.DB.Exec(`DROP TABLE IF EXISTS plan_records CASCADE;`); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}

	log.Info().Msg("Database reset complete!")
}
