package api

import (
	"math"
	"strconv"
	"time"

	"kickchoice/domain/choice"
	"kickchoice/domain/core"
	"kickchoice/domain/run"
	"kickchoice/internal/model"
)

// Number is a float64 that encodes NaN and infinities as JSON null
type Number float64

// MarshalJSON implements json.Marshaler
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// EstimateRequest is the body of POST /api/estimate. Exactly one of CSV and
// File supplies the data.
type EstimateRequest struct {
	Model      string            `json:"model"`
	Definition *model.Definition `json:"definition,omitempty"`
	Panel      bool              `json:"panel"`

	CSV      string `json:"csv,omitempty"`
	File     string `json:"file,omitempty"`
	Sheet    string `json:"sheet,omitempty"`
	SkipRows int    `json:"skip_rows,omitempty"`
	// Recode applies the shot-sheet recoding before estimation.
	Recode bool `json:"recode"`

	DrawMethod    string  `json:"draw_method,omitempty"`
	Draws         int     `json:"draws,omitempty"`
	Seed          *uint64 `json:"seed,omitempty"`
	MaxIterations int     `json:"max_iterations,omitempty"`
}

// EstimateDTO is one parameter row
type EstimateDTO struct {
	Name         string `json:"name"`
	Value        Number `json:"value"`
	Fixed        bool   `json:"fixed"`
	Lower        Number `json:"lower"`
	Upper        Number `json:"upper"`
	StdErr       Number `json:"std_err"`
	TStat        Number `json:"t_stat"`
	PValue       Number `json:"p_value"`
	RobustStdErr Number `json:"robust_std_err"`
	RobustTStat  Number `json:"robust_t_stat"`
	RobustPValue Number `json:"robust_p_value"`
}

// ResultDTO is the JSON view of an estimation result
type ResultDTO struct {
	ModelName            string           `json:"model_name"`
	Estimates            []EstimateDTO    `json:"estimates"`
	FreeNames            []string         `json:"free_names"`
	Covariance           [][]Number       `json:"covariance,omitempty"`
	RobustCovariance     [][]Number       `json:"robust_covariance,omitempty"`
	LogLikelihood        Number           `json:"log_likelihood"`
	InitialLogLikelihood Number           `json:"initial_log_likelihood"`
	NullLogLikelihood    Number           `json:"null_log_likelihood"`
	NumParameters        int              `json:"n_parameters"`
	NumGroups            int              `json:"n_groups"`
	NumObservations      int              `json:"n_observations"`
	NumDraws             int              `json:"n_draws"`
	DrawMethod           string           `json:"draw_method,omitempty"`
	AIC                  Number           `json:"aic"`
	BIC                  Number           `json:"bic"`
	RhoSquare            Number           `json:"rho_square"`
	AdjRhoSquare         Number           `json:"adj_rho_square"`
	Converged            bool             `json:"converged"`
	Iterations           int              `json:"iterations"`
	FuncEvaluations      int              `json:"func_evaluations"`
	Status               string           `json:"status"`
	Warnings             []choice.Warning `json:"warnings,omitempty"`
	DurationMs           int64            `json:"duration_ms"`
}

// RunDTO is the JSON view of a run
type RunDTO struct {
	ID          core.RunID   `json:"id"`
	Status      run.Status   `json:"status"`
	Error       string       `json:"error,omitempty"`
	Fingerprint core.Hash    `json:"fingerprint"`
	Manifest    run.Manifest `json:"manifest"`
	Result      *ResultDTO   `json:"result,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// SummaryDTO is one row of GET /api/runs
type SummaryDTO struct {
	ID              core.RunID `json:"id"`
	ModelName       string     `json:"model_name"`
	Status          run.Status `json:"status"`
	LogLikelihood   Number     `json:"log_likelihood"`
	AIC             Number     `json:"aic"`
	BIC             Number     `json:"bic"`
	NumParameters   int        `json:"n_parameters"`
	NumObservations int        `json:"n_observations"`
	Converged       bool       `json:"converged"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ModelDTO describes a catalogue variant
type ModelDTO struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Panel       bool             `json:"panel"`
	Covariates  []string         `json:"covariates"`
	Definition  model.Definition `json:"definition"`
}

// NewRunDTO converts a run
func NewRunDTO(r *run.Run) RunDTO {
	dto := RunDTO{
		ID:          r.ID,
		Status:      r.Status,
		Error:       r.Error,
		Fingerprint: r.Fingerprint,
		Manifest:    r.Manifest,
		CreatedAt:   r.CreatedAt,
	}
	if r.Result != nil {
		res := NewResultDTO(r.Result)
		dto.Result = &res
	}
	return dto
}

// NewResultDTO converts a result
func NewResultDTO(r *choice.Result) ResultDTO {
	dto := ResultDTO{
		ModelName:            r.ModelName,
		FreeNames:            r.FreeNames,
		Covariance:           numbers(r.Covariance),
		RobustCovariance:     numbers(r.RobustCovariance),
		LogLikelihood:        Number(r.LogLikelihood),
		InitialLogLikelihood: Number(r.InitialLogLikelihood),
		NullLogLikelihood:    Number(r.NullLogLikelihood),
		NumParameters:        r.NumParameters,
		NumGroups:            r.NumGroups,
		NumObservations:      r.NumObservations,
		NumDraws:             r.NumDraws,
		DrawMethod:           r.DrawMethod,
		AIC:                  Number(r.AIC),
		BIC:                  Number(r.BIC),
		RhoSquare:            Number(r.RhoSquare),
		AdjRhoSquare:         Number(r.AdjRhoSquare),
		Converged:            r.Converged,
		Iterations:           r.Iterations,
		FuncEvaluations:      r.FuncEvaluations,
		Status:               r.Status,
		Warnings:             r.Warnings,
		DurationMs:           r.Duration.Milliseconds(),
	}
	for _, e := range r.Estimates {
		dto.Estimates = append(dto.Estimates, EstimateDTO{
			Name:         e.Name,
			Value:        Number(e.Value),
			Fixed:        e.Fixed,
			Lower:        Number(e.Lower),
			Upper:        Number(e.Upper),
			StdErr:       Number(e.StdErr),
			TStat:        Number(e.TStat),
			PValue:       Number(e.PValue),
			RobustStdErr: Number(e.RobustStdErr),
			RobustTStat:  Number(e.RobustTStat),
			RobustPValue: Number(e.RobustPValue),
		})
	}
	return dto
}

// NewSummaryDTO converts a run summary
func NewSummaryDTO(s run.Summary) SummaryDTO {
	return SummaryDTO{
		ID:              s.ID,
		ModelName:       s.ModelName,
		Status:          s.Status,
		LogLikelihood:   Number(s.LogLikelihood),
		AIC:             Number(s.AIC),
		BIC:             Number(s.BIC),
		NumParameters:   s.NumParameters,
		NumObservations: s.NumObservations,
		Converged:       s.Converged,
		CreatedAt:       s.CreatedAt,
	}
}

func numbers(rows [][]float64) [][]Number {
	if rows == nil {
		return nil
	}
	out := make([][]Number, len(rows))
	for i, row := range rows {
		out[i] = make([]Number, len(row))
		for j, v := range row {
			out[i][j] = Number(v)
		}
	}
	return out
}
