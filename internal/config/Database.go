package config

import (
	"errors"
	"strconv"
)

// Optional Postgres audit database. Auditing is enabled when DB_NAME is set.
var (
	AuditEnabled bool
	DBHost       string
	DBPort       int
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
)

func loadDatabaseConfig() error {
	DBName = getEnvOrDefault("DB_NAME", "")
	AuditEnabled = DBName != ""
	if !AuditEnabled {
		return nil
	}

	DBHost = getEnvOrDefault("DB_HOST", "localhost")
	DBUser = getEnvOrDefault("DB_USER", "")
	if DBUser == "" {
		return errors.New("environment variable DB_USER is required when DB_NAME is set")
	}
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	portStr := getEnvOrDefault("DB_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return errors.New("environment variable DB_PORT must be a valid port, got: " + portStr)
	}
	DBPort = port
	return nil
}
