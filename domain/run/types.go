package run

import (
	"time"

	"kickchoice/domain/choice"
	"kickchoice/domain/core"
)

// Status of an estimation run
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one estimation of one model on one dataset
type Run struct {
	ID          core.RunID     `json:"id"`
	Manifest    Manifest       `json:"manifest"`
	Fingerprint core.Hash      `json:"fingerprint"`
	Status      Status         `json:"status"`
	Error       string         `json:"error,omitempty"`
	Result      *choice.Result `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Summary is the listing view of a run
type Summary struct {
	ID              core.RunID `json:"id"`
	ModelName       string     `json:"model_name"`
	Status          Status     `json:"status"`
	LogLikelihood   float64    `json:"log_likelihood"`
	AIC             float64    `json:"aic"`
	BIC             float64    `json:"bic"`
	NumParameters   int        `json:"n_parameters"`
	NumObservations int        `json:"n_observations"`
	Converged       bool       `json:"converged"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Summary extracts the listing view
func (r *Run) Summary() Summary {
	s := Summary{
		ID:        r.ID,
		ModelName: r.Manifest.ModelName,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if r.Result != nil {
		s.LogLikelihood = r.Result.LogLikelihood
		s.AIC = r.Result.AIC
		s.BIC = r.Result.BIC
		s.NumParameters = r.Result.NumParameters
		s.NumObservations = r.Result.NumObservations
		s.Converged = r.Result.Converged
	}
	return s
}
