package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RunSummary represents one optimization run's headline row.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	RunNumber  int       `json:"run_number"`
	Status     string    `json:"status"`
	Seed       int64     `json:"seed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// StatusBreakdown aggregates terminal statuses across the run history.
type StatusBreakdown struct {
	TotalRuns     int `json:"total_runs"`
	Certified     int `json:"certified"`
	NoViable      int `json:"no_viable_parameters"`
	Convergence   int `json:"convergence_failure"`
	DataErrors    int `json:"data_error"`
	CertifiedSets int `json:"certified_sets"`
}

// GetRecentRuns retrieves recent optimization runs, newest first.
func GetRecentRuns(limit int) ([]RunSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `
		SELECT run_id, run_number, status, seed, started_at, finished_at
		FROM optimization_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent runs")
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.RunNumber, &r.Status, &r.Seed, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run summaries: %w", err)
	}
	return out, nil
}

// GetStatusBreakdown aggregates the run history by terminal status.
func GetStatusBreakdown() (*StatusBreakdown, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	b := &StatusBreakdown{}
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'certified'),
			COUNT(*) FILTER (WHERE status = 'no_viable_parameters'),
			COUNT(*) FILTER (WHERE status = 'convergence_failure'),
			COUNT(*) FILTER (WHERE status = 'data_error')
		FROM optimization_runs
	`
	row := DB.QueryRow(query)
	err := row.Scan(&b.TotalRuns, &b.Certified, &b.NoViable, &b.Convergence, &b.DataErrors)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to aggregate run statuses: %w", err)
	}

	row = DB.QueryRow(`SELECT COUNT(*) FROM certified_parameters`)
	if err := row.Scan(&b.CertifiedSets); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to count certified sets: %w", err)
	}
	return b, nil
}
