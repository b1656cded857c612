package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// HomeDir is where the node keeps its ledger database.
	HomeDir string
	// DBBackend is the cosmos-db backend for the ledger ("goleveldb" or "memdb").
	DBBackend string

	// ChainID is written into every block header of the local node.
	ChainID string
	// VaultAccount is the custody account holding vault assets.
	VaultAccount string

	// WebPort is the port of the HTTP API.
	WebPort string
	// GRPCPort is the port of the gRPC health service.
	GRPCPort string

	// SnapshotInterval is the period of the NAV snapshot loop.
	SnapshotInterval time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFile optionally mirrors logs to a file.
	LogFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// BVAULT_HOME is required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	HomeDir, err = getEnv("BVAULT_HOME")
	if err != nil {
		return err
	}

	DBBackend = getEnvOrDefault("BVAULT_DB_BACKEND", "goleveldb")
	if DBBackend != "goleveldb" && DBBackend != "memdb" {
		return errors.New("environment variable BVAULT_DB_BACKEND must be goleveldb or memdb, got: " + DBBackend)
	}

	ChainID = getEnvOrDefault("CHAIN_ID", "bvault-local")
	VaultAccount = getEnvOrDefault("VAULT_ACCOUNT", "bvault/custody")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	GRPCPort = getEnvOrDefault("GRPC_PORT", "9090")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	SnapshotInterval, err = getEnvAsDurationOrDefault("SNAPSHOT_INTERVAL", 5*time.Minute)
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}
	if err := loadDatabaseConfig(); err != nil {
		return err
	}
	if err := loadAuthConfig(); err != nil {
		return err
	}

	// Expand the tilde (~) in the home directory path to the user's home directory.
	if strings.HasPrefix(HomeDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		HomeDir = filepath.Join(home, HomeDir[2:])
	}

	log.Debug().
		Str("HomeDir", HomeDir).
		Str("DBBackend", DBBackend).
		Str("ChainID", ChainID).
		Dur("SnapshotInterval", SnapshotInterval).
		Bool("AuditEnabled", AuditEnabled).
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

// getEnvOrDefault retrieves a string environment variable, falling back when it is unset or empty.
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

// getEnvAsDurationOrDefault retrieves an environment variable as a time.Duration, e.g. "90s".
func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
