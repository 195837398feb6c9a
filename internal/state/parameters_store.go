// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL array support
	"github.com/rs/zerolog/log"

	"github.com/stratforge/optimizer/internal/types"
)

// SaveCertifiedSet persists a certified parameter set. When makeActive is
// true, any previously active set is deactivated in the same transaction
// so exactly one set is live for the deployment collaborator at a time.
func SaveCertifiedSet(runID string, set types.CertifiedParameterSet, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	payload, err := json.Marshal(set)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal certified set: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE certified_parameters SET is_active = FALSE WHERE is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameter set: %w", err)
		}
	}

	stmt := `
        INSERT INTO certified_parameters (
            run_id, candidate_id, is_active, activated_at, created_at,
            vector, composite_rank, deflated_sortino, spa_p_value,
            win_rate, avg_win, avg_loss, trade_count, payload
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9,
            $10, $11, $12, $13, $14
        ) RETURNING set_id;`

	var setID int64
	now := time.Now()
	err = tx.QueryRow(
		stmt,
		runID, set.Candidate.ID, makeActive, now, now,
		pq.Array(set.Candidate.Vector), set.Verdict.CompositeRank, set.Verdict.DeflatedSortino, set.Verdict.SPAPValue,
		set.TradeStats.WinRate, set.TradeStats.AvgWin, set.TradeStats.AvgLoss, set.TradeStats.Trades, payload,
	).Scan(&setID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert certified parameter set: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("run_id", runID).
		Str("candidate_id", set.Candidate.ID).
		Int64("set_id", setID).
		Bool("active", makeActive).
		Msg("Saved certified parameter set")
	return setID, nil
}

// LoadActiveCertifiedSet loads the currently active certified parameter
// set, the one the position sizer should answer queries from.
func LoadActiveCertifiedSet() (*types.CertifiedParameterSet, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT payload
        FROM certified_parameters
        WHERE is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var payload []byte
	row := DB.QueryRow(query)
	err := row.Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active certified parameter set found")
		}
		return nil, fmt.Errorf("failed to scan active certified parameter set: %w", err)
	}

	set := &types.CertifiedParameterSet{}
	if err := json.Unmarshal(payload, set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certified parameter set: %w", err)
	}
	log.Info().Str("candidate_id", set.Candidate.ID).Msg("Loaded active certified parameter set")
	return set, nil
}

// LoadLatestCertifiedSet loads the most recently created certified set
// regardless of activation, for post-run inspection.
func LoadLatestCertifiedSet() (*types.CertifiedParameterSet, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT payload
        FROM certified_parameters
        ORDER BY created_at DESC, set_id DESC
        LIMIT 1;`

	var payload []byte
	row := DB.QueryRow(query)
	err := row.Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no certified parameter set found")
		}
		return nil, fmt.Errorf("failed to scan latest certified parameter set: %w", err)
	}

	set := &types.CertifiedParameterSet{}
	if err := json.Unmarshal(payload, set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certified parameter set: %w", err)
	}
	log.Info().Str("candidate_id", set.Candidate.ID).Msg("Loaded latest certified parameter set")
	return set, nil
}

// GetActiveCertifiedSetID returns the set_id of the active certified
// parameter set, or nil when none is active.
func GetActiveCertifiedSetID() (*int64, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT set_id
        FROM certified_parameters
        WHERE is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var setID int64
	row := DB.QueryRow(query)
	err := row.Scan(&setID)
	if err != nil {
		if err == sql.ErrNoRows {
			// No active set is a valid state, not an error.
			log.Debug().Msg("No active certified parameter set found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active certified parameter set ID: %w", err)
	}

	log.Debug().Int64("set_id", setID).Msg("Retrieved active certified parameter set ID")
	return &setID, nil
}
