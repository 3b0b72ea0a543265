package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/reallocator/internal/state"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ChainID is the EVM chain id of the target network.
	ChainID uint64

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// FetchTimeout bounds a single capacity fetch, API or chain.
	FetchTimeout time.Duration

	// WebPort is the port the HTTP service listens on.
	WebPort string

	// DBEnabled is true when DB_HOST is set; plan records are only persisted then.
	DBEnabled bool
	// DB holds the PostgreSQL connection parameters.
	DB state.DBConfig
)

const (
	DEFAULT_FETCH_TIMEOUT_SECONDS = 20
	DEFAULT_WEB_PORT              = "8080"
	DEFAULT_LOG_LEVEL             = "info"
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// CHAIN_ID and the endpoint variables are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	ChainID, err = getEnvAsUint64("CHAIN_ID")
	if err != nil {
		return err
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", DEFAULT_LOG_LEVEL)
	WebPort = getEnvOrDefault("WEB_PORT", DEFAULT_WEB_PORT)

	timeoutSeconds := uint64(DEFAULT_FETCH_TIMEOUT_SECONDS)
	if getEnvOrDefault("FETCH_TIMEOUT_SECONDS", "") != "" {
		timeoutSeconds, err = getEnvAsUint64("FETCH_TIMEOUT_SECONDS")
		if err != nil {
			return err
		}
	}
	FetchTimeout = time.Duration(timeoutSeconds) * time.Second

	if err := LoadDBConfig(); err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint64("ChainID", ChainID).
		Str("WebPort", WebPort).
		Dur("FetchTimeout", FetchTimeout).
		Bool("DBEnabled", DBEnabled).
		Msg("Configuration loaded successfully.")

	return nil
}

// LoadDBConfig reads the optional DB_* variables. LoadConfig calls it; standalone tools
// that only need the database call it directly.
func LoadDBConfig() error {
	host, set := os.LookupEnv("DB_HOST")
	DBEnabled = set && host != ""
	if !DBEnabled {
		DB = state.DBConfig{}
		return nil
	}

	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return errors.New("environment variable DB_PORT must be a valid port number")
	}

	DB = state.DBConfig{
		Host:     host,
		Port:     port,
		User:     getEnvOrDefault("DB_USER", ""),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", "reallocator"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	if DB.User == "" {
		return errors.New("environment variable DB_USER is required when DB_HOST is set")
	}
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}
