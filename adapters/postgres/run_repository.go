package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"kickchoice/domain/choice"
	"kickchoice/domain/core"
	"kickchoice/domain/run"
	"kickchoice/internal/errors"
	"kickchoice/ports"

	"github.com/jmoiron/sqlx"
)

// RunRepositoryImpl implements RunRepository on sqlx. Queries are written
// with ? placeholders and rebound for the driver, so the same code serves
// PostgreSQL and SQLite.
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

type runRow struct {
	ID                   string          `db:"id"`
	ModelName            string          `db:"model_name"`
	Status               string          `db:"status"`
	ErrorMessage         sql.NullString  `db:"error_message"`
	Fingerprint          string          `db:"fingerprint"`
	Manifest             string          `db:"manifest"`
	LogLikelihood        sql.NullFloat64 `db:"log_likelihood"`
	InitialLogLikelihood sql.NullFloat64 `db:"initial_log_likelihood"`
	NullLogLikelihood    sql.NullFloat64 `db:"null_log_likelihood"`
	AIC                  sql.NullFloat64 `db:"aic"`
	BIC                  sql.NullFloat64 `db:"bic"`
	RhoSquare            sql.NullFloat64 `db:"rho_square"`
	AdjRhoSquare         sql.NullFloat64 `db:"adj_rho_square"`
	NumParameters        int             `db:"n_parameters"`
	NumGroups            int             `db:"n_groups"`
	NumObservations      int             `db:"n_observations"`
	NumDraws             int             `db:"n_draws"`
	DrawMethod           sql.NullString  `db:"draw_method"`
	Converged            bool            `db:"converged"`
	Iterations           int             `db:"iterations"`
	FuncEvaluations      int             `db:"func_evaluations"`
	OptimizerStatus      sql.NullString  `db:"optimizer_status"`
	Warnings             sql.NullString  `db:"warnings"`
	FreeNames            sql.NullString  `db:"free_names"`
	Covariance           sql.NullString  `db:"covariance"`
	RobustCovariance     sql.NullString  `db:"robust_covariance"`
	DurationMs           int64           `db:"duration_ms"`
	CreatedAt            int64           `db:"created_at"`
}

type estimateRow struct {
	RunID        string          `db:"run_id"`
	Position     int             `db:"position"`
	Name         string          `db:"name"`
	Value        sql.NullFloat64 `db:"value"`
	Fixed        bool            `db:"fixed"`
	Lower        sql.NullFloat64 `db:"lower_bound"`
	Upper        sql.NullFloat64 `db:"upper_bound"`
	StdErr       sql.NullFloat64 `db:"std_err"`
	TStat        sql.NullFloat64 `db:"t_stat"`
	PValue       sql.NullFloat64 `db:"p_value"`
	RobustStdErr sql.NullFloat64 `db:"robust_std_err"`
	RobustTStat  sql.NullFloat64 `db:"robust_t_stat"`
	RobustPValue sql.NullFloat64 `db:"robust_p_value"`
}

const runColumns = `id, model_name, status, error_message, fingerprint, manifest,
	log_likelihood, initial_log_likelihood, null_log_likelihood, aic, bic, rho_square, adj_rho_square,
	n_parameters, n_groups, n_observations, n_draws, draw_method, converged, iterations, func_evaluations,
	optimizer_status, warnings, free_names, covariance, robust_covariance, duration_ms, created_at`

// Save inserts a run and its estimates in one transaction
func (r *RunRepositoryImpl) Save(ctx context.Context, rn *run.Run) error {
	row, estimates, err := toRows(rn)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO estimation_runs (`+runColumns+`)
		VALUES (:id, :model_name, :status, :error_message, :fingerprint, :manifest,
			:log_likelihood, :initial_log_likelihood, :null_log_likelihood, :aic, :bic, :rho_square, :adj_rho_square,
			:n_parameters, :n_groups, :n_observations, :n_draws, :draw_method, :converged, :iterations, :func_evaluations,
			:optimizer_status, :warnings, :free_names, :covariance, :robust_covariance, :duration_ms, :created_at)
	`, row)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to insert run %s", rn.ID))
	}

	for _, e := range estimates {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO parameter_estimates (run_id, position, name, value, fixed, lower_bound, upper_bound,
				std_err, t_stat, p_value, robust_std_err, robust_t_stat, robust_p_value)
			VALUES (:run_id, :position, :name, :value, :fixed, :lower_bound, :upper_bound,
				:std_err, :t_stat, :p_value, :robust_std_err, :robust_t_stat, :robust_p_value)
		`, e)
		if err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to insert estimate %s", e.Name))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	return nil
}

// Get loads a run with its estimates
func (r *RunRepositoryImpl) Get(ctx context.Context, id core.RunID) (*run.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+runColumns+` FROM estimation_runs WHERE id = ?`), id.String())
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}

	var estimates []estimateRow
	err = r.db.SelectContext(ctx, &estimates, r.db.Rebind(`
		SELECT run_id, position, name, value, fixed, lower_bound, upper_bound,
			std_err, t_stat, p_value, robust_std_err, robust_t_stat, robust_p_value
		FROM parameter_estimates
		WHERE run_id = ?
		ORDER BY position
	`), id.String())
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	return fromRows(row, estimates)
}

// List returns run summaries, newest first
func (r *RunRepositoryImpl) List(ctx context.Context, filters ports.RunFilters) ([]run.Summary, error) {
	query := `
		SELECT id, model_name, status, log_likelihood, aic, bic, n_parameters, n_observations, converged, created_at
		FROM estimation_runs`
	args := []interface{}{}
	if filters.ModelName != "" {
		query += ` WHERE model_name = ?`
		args = append(args, filters.ModelName)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filters.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filters.Limit, filters.Offset)
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	defer rows.Close()

	var summaries []run.Summary
	for rows.Next() {
		var row runRow
		if err := rows.StructScan(&row); err != nil {
			return nil, errors.WithCode(errors.CodeDatabaseError, err)
		}
		summaries = append(summaries, run.Summary{
			ID:              core.RunID(row.ID),
			ModelName:       row.ModelName,
			Status:          run.Status(row.Status),
			LogLikelihood:   fromNull(row.LogLikelihood),
			AIC:             fromNull(row.AIC),
			BIC:             fromNull(row.BIC),
			NumParameters:   row.NumParameters,
			NumObservations: row.NumObservations,
			Converged:       row.Converged,
			CreatedAt:       time.UnixMilli(row.CreatedAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	return summaries, nil
}

func toRows(rn *run.Run) (runRow, []estimateRow, error) {
	manifest, err := json.Marshal(rn.Manifest)
	if err != nil {
		return runRow{}, nil, errors.Wrap(err, "failed to encode run manifest")
	}
	row := runRow{
		ID:           rn.ID.String(),
		ModelName:    rn.Manifest.ModelName,
		Status:       string(rn.Status),
		ErrorMessage: sql.NullString{String: rn.Error, Valid: rn.Error != ""},
		Fingerprint:  rn.Fingerprint.String(),
		Manifest:     string(manifest),
		CreatedAt:    rn.CreatedAt.UnixMilli(),
	}
	res := rn.Result
	if res == nil {
		return row, nil, nil
	}

	row.LogLikelihood = toNull(res.LogLikelihood)
	row.InitialLogLikelihood = toNull(res.InitialLogLikelihood)
	row.NullLogLikelihood = toNull(res.NullLogLikelihood)
	row.AIC = toNull(res.AIC)
	row.BIC = toNull(res.BIC)
	row.RhoSquare = toNull(res.RhoSquare)
	row.AdjRhoSquare = toNull(res.AdjRhoSquare)
	row.NumParameters = res.NumParameters
	row.NumGroups = res.NumGroups
	row.NumObservations = res.NumObservations
	row.NumDraws = res.NumDraws
	row.DrawMethod = sql.NullString{String: res.DrawMethod, Valid: res.DrawMethod != ""}
	row.Converged = res.Converged
	row.Iterations = res.Iterations
	row.FuncEvaluations = res.FuncEvaluations
	row.OptimizerStatus = sql.NullString{String: res.Status, Valid: true}
	row.DurationMs = res.Duration.Milliseconds()
	row.Warnings = jsonColumn(res.Warnings)
	row.FreeNames = jsonColumn(res.FreeNames)
	row.Covariance = jsonColumn(finiteRows(res.Covariance))
	row.RobustCovariance = jsonColumn(finiteRows(res.RobustCovariance))

	estimates := make([]estimateRow, len(res.Estimates))
	for i, e := range res.Estimates {
		estimates[i] = estimateRow{
			RunID:        row.ID,
			Position:     i,
			Name:         e.Name,
			Value:        toNull(e.Value),
			Fixed:        e.Fixed,
			Lower:        toNull(e.Lower),
			Upper:        toNull(e.Upper),
			StdErr:       toNull(e.StdErr),
			TStat:        toNull(e.TStat),
			PValue:       toNull(e.PValue),
			RobustStdErr: toNull(e.RobustStdErr),
			RobustTStat:  toNull(e.RobustTStat),
			RobustPValue: toNull(e.RobustPValue),
		}
	}
	return row, estimates, nil
}

func fromRows(row runRow, estimates []estimateRow) (*run.Run, error) {
	rn := &run.Run{
		ID:          core.RunID(row.ID),
		Fingerprint: core.Hash(row.Fingerprint),
		Status:      run.Status(row.Status),
		Error:       row.ErrorMessage.String,
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(row.Manifest), &rn.Manifest); err != nil {
		return nil, errors.Wrapf(err, "run %s has a corrupt manifest", row.ID)
	}
	if !row.OptimizerStatus.Valid {
		return rn, nil
	}

	res := &choice.Result{
		ModelName:            row.ModelName,
		LogLikelihood:        fromNull(row.LogLikelihood),
		InitialLogLikelihood: fromNull(row.InitialLogLikelihood),
		NullLogLikelihood:    fromNull(row.NullLogLikelihood),
		AIC:                  fromNull(row.AIC),
		BIC:                  fromNull(row.BIC),
		RhoSquare:            fromNull(row.RhoSquare),
		AdjRhoSquare:         fromNull(row.AdjRhoSquare),
		NumParameters:        row.NumParameters,
		NumGroups:            row.NumGroups,
		NumObservations:      row.NumObservations,
		NumDraws:             row.NumDraws,
		DrawMethod:           row.DrawMethod.String,
		Converged:            row.Converged,
		Iterations:           row.Iterations,
		FuncEvaluations:      row.FuncEvaluations,
		Status:               row.OptimizerStatus.String,
		Duration:             time.Duration(row.DurationMs) * time.Millisecond,
	}
	for _, col := range []struct {
		src sql.NullString
		dst interface{}
	}{
		{row.Warnings, &res.Warnings},
		{row.FreeNames, &res.FreeNames},
		{row.Covariance, &res.Covariance},
		{row.RobustCovariance, &res.RobustCovariance},
	} {
		if col.src.Valid {
			if err := json.Unmarshal([]byte(col.src.String), col.dst); err != nil {
				return nil, errors.Wrapf(err, "run %s has a corrupt column", row.ID)
			}
		}
	}

	res.Estimates = make([]choice.ParameterEstimate, len(estimates))
	for i, e := range estimates {
		lower, upper := math.Inf(-1), math.Inf(1)
		if e.Lower.Valid {
			lower = e.Lower.Float64
		}
		if e.Upper.Valid {
			upper = e.Upper.Float64
		}
		res.Estimates[i] = choice.ParameterEstimate{
			Name:         e.Name,
			Value:        fromNull(e.Value),
			Fixed:        e.Fixed,
			Lower:        lower,
			Upper:        upper,
			StdErr:       fromNull(e.StdErr),
			TStat:        fromNull(e.TStat),
			PValue:       fromNull(e.PValue),
			RobustStdErr: fromNull(e.RobustStdErr),
			RobustTStat:  fromNull(e.RobustTStat),
			RobustPValue: fromNull(e.RobustPValue),
		}
	}
	rn.Result = res
	return rn, nil
}

// toNull stores non-finite values as NULL; SQLite cannot hold NaN
func toNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func jsonColumn(v interface{}) sql.NullString {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

// finiteRows drops matrices encoding/json cannot represent
func finiteRows(m [][]float64) [][]float64 {
	for _, row := range m {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil
			}
		}
	}
	return m
}
