package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DataCSV is the path to the bar history the run is evaluated on.
	DataCSV string

	// RunFile is the path to the YAML file holding the parameter space
	// and run configuration.
	RunFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// DATA_CSV and RUN_CONFIG are required; database settings are read separately
// by the caller because persistence is optional.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	DataCSV, err = getEnv("DATA_CSV")
	if err != nil {
		return err
	}

	RunFile, err = getEnv("RUN_CONFIG")
	if err != nil {
		return err
	}

	log.Debug().
		Str("DataCSV", DataCSV).
		Str("RunFile", RunFile).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// GetEnvOr retrieves a string environment variable with a fallback default.
func GetEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// GetEnvAsIntOr retrieves an environment variable as an int with a fallback default.
func GetEnvAsIntOr(key string, fallback int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid integer environment variable, using default")
		return fallback
	}
	return value
}
