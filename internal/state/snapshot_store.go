// ./internal/state/snapshot_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/lib/pq" // PostgreSQL array support
	"github.com/rs/zerolog/log"

	"github.com/stratforge/optimizer/internal/types"
)

// SaveRunReport persists a complete optimization report, stage trail
// included, keyed by the run's UUID.
func SaveRunReport(report types.OptimizationReport, runNumber int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	trailJSON, err := json.Marshal(report.Trail)
	if err != nil {
		return fmt.Errorf("failed to marshal stage_trail: %w", err)
	}

	query := `
		INSERT INTO optimization_runs (
			run_id, run_number, status, seed,
			started_at, finished_at, stage_trail, warnings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = DB.Exec(query,
		report.RunID, runNumber, string(report.Status), report.Seed,
		report.StartedAt, report.FinishedAt, trailJSON, pq.Array(report.Warnings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert optimization run %s: %w", report.RunID, err)
	}

	log.Info().
		Str("run_id", report.RunID).
		Int("run_number", runNumber).
		Str("status", string(report.Status)).
		Msg("Saved optimization run report")
	return nil
}
