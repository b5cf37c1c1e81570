package migration

import (
	"context"
	"log"

	"kickchoice/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations. The schema sticks to
// types both PostgreSQL and SQLite accept.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createEstimationRunsTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create estimation_runs table"))
	}

	if err := r.createParameterEstimatesTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create parameter_estimates table"))
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create indexes"))
	}

	log.Printf("[Migration] schema version %s applied (%s)", r.version, db.DriverName())
	return nil
}

func (r *MigrationRunner) createEstimationRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS estimation_runs (
			id TEXT PRIMARY KEY,
			model_name TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			fingerprint TEXT NOT NULL,
			manifest TEXT NOT NULL,
			log_likelihood DOUBLE PRECISION,
			initial_log_likelihood DOUBLE PRECISION,
			null_log_likelihood DOUBLE PRECISION,
			aic DOUBLE PRECISION,
			bic DOUBLE PRECISION,
			rho_square DOUBLE PRECISION,
			adj_rho_square DOUBLE PRECISION,
			n_parameters INTEGER NOT NULL DEFAULT 0,
			n_groups INTEGER NOT NULL DEFAULT 0,
			n_observations INTEGER NOT NULL DEFAULT 0,
			n_draws INTEGER NOT NULL DEFAULT 0,
			draw_method TEXT,
			converged BOOLEAN NOT NULL DEFAULT FALSE,
			iterations INTEGER NOT NULL DEFAULT 0,
			func_evaluations INTEGER NOT NULL DEFAULT 0,
			optimizer_status TEXT,
			warnings TEXT,
			free_names TEXT,
			covariance TEXT,
			robust_covariance TEXT,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createParameterEstimatesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS parameter_estimates (
			run_id TEXT NOT NULL REFERENCES estimation_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			value DOUBLE PRECISION,
			fixed BOOLEAN NOT NULL DEFAULT FALSE,
			lower_bound DOUBLE PRECISION,
			upper_bound DOUBLE PRECISION,
			std_err DOUBLE PRECISION,
			t_stat DOUBLE PRECISION,
			p_value DOUBLE PRECISION,
			robust_std_err DOUBLE PRECISION,
			robust_t_stat DOUBLE PRECISION,
			robust_p_value DOUBLE PRECISION,
			PRIMARY KEY (run_id, position)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_estimation_runs_created_at ON estimation_runs (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_estimation_runs_model_name ON estimation_runs (model_name)`,
		`CREATE INDEX IF NOT EXISTS idx_estimation_runs_fingerprint ON estimation_runs (fingerprint)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
