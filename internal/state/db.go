// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// ErrNotInitialized is returned by every method of a nil or closed DB.
var ErrNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DB is the audit database: NAV snapshots and instruction receipts. Nothing in it feeds back into
// vault state.
type DB struct {
	conn *sql.DB
}

// NewDB wraps an open connection pool.
func NewDB(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Open connects to Postgres and verifies the connection.
func Open(cfg DBConfig) (*DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	conn, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return NewDB(conn), nil
}

func (d *DB) ready() error {
	if d == nil || d.conn == nil {
		return ErrNotInitialized
	}
	return nil
}

// Close closes the connection pool.
func (d *DB) Close() {
	if d.ready() != nil {
		return
	}
	log.Info().Msg("Closing database connection...")
	if err := d.conn.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	}
	d.conn = nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS nav_snapshots (
		snapshot_id BIGSERIAL PRIMARY KEY,
		cycle_id UUID NOT NULL,
		cycle_number INTEGER NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		block_height BIGINT NOT NULL,
		nav NUMERIC(78, 0) NOT NULL,
		total_shares NUMERIC(78, 0) NOT NULL,
		share_price DOUBLE PRECISION NOT NULL,
		components JSONB,
		status JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_nav_snapshots_timestamp ON nav_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_nav_snapshots_cycle ON nav_snapshots(cycle_number DESC);

	CREATE TABLE IF NOT EXISTS instruction_receipts (
		receipt_id BIGSERIAL PRIMARY KEY,
		instruction_id UUID NOT NULL UNIQUE,
		instruction VARCHAR(32) NOT NULL,
		caller TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		error_kind VARCHAR(32),
		message TEXT,
		block_height BIGINT NOT NULL,
		block_time TIMESTAMPTZ NOT NULL,
		duration_us BIGINT NOT NULL,
		detail JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_instruction_receipts_block_time ON instruction_receipts(block_time DESC);
	CREATE INDEX IF NOT EXISTS idx_instruction_receipts_instruction ON instruction_receipts(instruction);
	CREATE INDEX IF NOT EXISTS idx_instruction_receipts_error_kind ON instruction_receipts(error_kind);

	-- Snapshot counter for persistent cycle numbering across restarts
	CREATE TABLE IF NOT EXISTS snapshot_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO snapshot_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

const dropSQL = `
	DROP TABLE IF EXISTS nav_snapshots CASCADE;
	DROP TABLE IF EXISTS instruction_receipts CASCADE;
	DROP TABLE IF EXISTS snapshot_counter CASCADE;
`

// EnsureSchema applies the DDL to create tables if they don't exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	if _, err := d.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every audit table.
func (d *DB) DropSchema(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	if _, err := d.conn.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Dropped all audit tables")
	return nil
}

// Ping tests if the database connection is healthy.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := d.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
