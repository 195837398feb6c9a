// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS optimization_runs (
			run_id UUID PRIMARY KEY,
			run_number INTEGER NOT NULL,
			status VARCHAR(32) NOT NULL,
			seed BIGINT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			stage_trail JSONB NOT NULL,
			warnings TEXT[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_optimization_runs_started ON optimization_runs(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_optimization_runs_status ON optimization_runs(status);

		CREATE TABLE IF NOT EXISTS certified_parameters (
			set_id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES optimization_runs(run_id),
			candidate_id UUID NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			vector DOUBLE PRECISION[] NOT NULL,
			composite_rank DECIMAL(20, 8) NOT NULL,
			deflated_sortino DECIMAL(20, 8) NOT NULL,
			spa_p_value DECIMAL(20, 8) NOT NULL,
			win_rate DECIMAL(10, 8) NOT NULL,
			avg_win DECIMAL(20, 8) NOT NULL,
			avg_loss DECIMAL(20, 8) NOT NULL,
			trade_count INTEGER NOT NULL,
			payload JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_certified_parameters_active ON certified_parameters(is_active, activated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_certified_parameters_run ON certified_parameters(run_id);

		-- Run counter table for persistent global run numbering
		CREATE TABLE IF NOT EXISTS run_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_run INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO run_counter (id, current_run)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
