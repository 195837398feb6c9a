package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stratforge/optimizer/internal/config"
	"github.com/stratforge/optimizer/internal/dataset"
	"github.com/stratforge/optimizer/internal/logger"
	"github.com/stratforge/optimizer/internal/pipeline"
	"github.com/stratforge/optimizer/internal/state"
	"github.com/stratforge/optimizer/internal/types"
)

// main is the entry point for the optimizer CLI.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}
	logger.Initialize(os.Getenv("LOG_LEVEL"))

	root := &cobra.Command{
		Use:          "optimizer",
		Short:        "Strategy parameter optimization and certification pipeline",
		SilenceUsage: true,
	}
	root.AddCommand(runCmd(), sizeCmd(), historyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd executes a full optimization run against the configured dataset.
func runCmd() *cobra.Command {
	var outPath string
	var noPersist bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full optimization pipeline and emit the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			handle, err := dataset.LoadCSV(config.DataCSV)
			if err != nil {
				return fmt.Errorf("failed to load dataset %s: %w", config.DataCSV, err)
			}
			space, runCfg, err := config.LoadRunFile(config.RunFile)
			if err != nil {
				return fmt.Errorf("failed to load run configuration %s: %w", config.RunFile, err)
			}

			persist := !noPersist && os.Getenv("DB_HOST") != ""
			if persist {
				if err := initPersistence(); err != nil {
					return err
				}
				defer state.CloseDB()
			} else {
				log.Info().Msg("Persistence disabled; report will only be written to output.")
			}

			opt, err := pipeline.New(handle, space, runCfg)
			if err != nil {
				return fmt.Errorf("failed to assemble pipeline: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			report := opt.Run(ctx)

			if persist {
				persistReport(report)
			}
			if err := writeReport(report, outPath); err != nil {
				return err
			}
			if report.Status != types.StatusCertified {
				log.Warn().Str("status", string(report.Status)).Msg("Run finished without certification")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the JSON report to this file instead of stdout")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "skip database persistence even when DB_HOST is set")
	return cmd
}

// sizeCmd answers a position-size query against a certified set.
func sizeCmd() *cobra.Command {
	var balance, drawdown float64
	var reportPath string

	cmd := &cobra.Command{
		Use:   "size",
		Short: "Compute the position size for the active certified parameter set",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadCertifiedSet(reportPath)
			if err != nil {
				return err
			}
			decision, err := pipeline.SizeForCertified(*set, balance, drawdown)
			if err != nil {
				return fmt.Errorf("sizing query failed: %w", err)
			}
			out, err := json.MarshalIndent(decision, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().Float64Var(&balance, "balance", 0, "account balance in quote units (required)")
	cmd.Flags().Float64Var(&drawdown, "drawdown", 0, "current drawdown fraction, e.g. 0.12 for 12%")
	cmd.Flags().StringVar(&reportPath, "report", "", "read the certified set from a report file instead of the database")
	cmd.MarkFlagRequired("balance")
	return cmd
}

// historyCmd lists recent runs from the database.
func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent optimization runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initPersistence(); err != nil {
				return err
			}
			defer state.CloseDB()

			runs, err := state.GetRecentRuns(limit)
			if err != nil {
				return err
			}
			breakdown, err := state.GetStatusBreakdown()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(struct {
				Runs      []state.RunSummary     `json:"runs"`
				Breakdown *state.StatusBreakdown `json:"breakdown"`
			}{runs, breakdown}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to list")
	return cmd
}

// initPersistence connects to Postgres from DB_* environment variables
// and ensures the schema.
func initPersistence() error {
	dbCfg := state.DBConfig{
		Host:     config.GetEnvOr("DB_HOST", "localhost"),
		Port:     config.GetEnvAsIntOr("DB_PORT", 5432),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  config.GetEnvOr("DB_SSLMODE", "disable"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := state.EnsureSchema(); err != nil {
		state.CloseDB()
		return fmt.Errorf("failed to ensure database schema: %w", err)
	}
	return nil
}

// persistReport writes the run and any certified sets to the database.
// Persistence failures are logged, not fatal: the report on stdout is
// the contract.
func persistReport(report types.OptimizationReport) {
	runNumber, err := state.IncrementRunNumber()
	if err != nil {
		log.Error().Err(err).Msg("Failed to increment run counter")
	}
	if err := state.SaveRunReport(report, runNumber); err != nil {
		log.Error().Err(err).Msg("Failed to save run report")
		return
	}
	for i, set := range report.Certified {
		// Only the top-ranked set becomes active.
		if _, err := state.SaveCertifiedSet(report.RunID, set, i == 0); err != nil {
			log.Error().Err(err).Str("candidate_id", set.Candidate.ID).Msg("Failed to save certified set")
		}
	}
}

// loadCertifiedSet resolves the sizing target: a report file when given,
// the active database row otherwise.
func loadCertifiedSet(reportPath string) (*types.CertifiedParameterSet, error) {
	if reportPath != "" {
		data, err := os.ReadFile(reportPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read report %s: %w", reportPath, err)
		}
		var report types.OptimizationReport
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("failed to parse report %s: %w", reportPath, err)
		}
		if len(report.Certified) == 0 {
			return nil, fmt.Errorf("report %s contains no certified parameter set", reportPath)
		}
		return &report.Certified[0], nil
	}

	if err := initPersistence(); err != nil {
		return nil, err
	}
	defer state.CloseDB()
	return state.LoadActiveCertifiedSet()
}

// writeReport emits the report as indented JSON to the path or stdout.
func writeReport(report types.OptimizationReport, outPath string) error {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if outPath == "" {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", outPath, err)
	}
	log.Info().Str("path", outPath).Msg("Report written")
	return nil
}
