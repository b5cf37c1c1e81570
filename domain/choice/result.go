package choice

import (
	"math"
	"time"
)

// ParameterEstimate is the final value and inference for one parameter.
// Standard errors of fixed parameters are NaN.
type ParameterEstimate struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Fixed        bool    `json:"fixed"`
	Lower        float64 `json:"lower"`
	Upper        float64 `json:"upper"`
	StdErr       float64 `json:"std_err"`
	TStat        float64 `json:"t_stat"`
	PValue       float64 `json:"p_value"`
	RobustStdErr float64 `json:"robust_std_err"`
	RobustTStat  float64 `json:"robust_t_stat"`
	RobustPValue float64 `json:"robust_p_value"`
}

// HasStdErr reports whether a usable standard error was computed
func (p ParameterEstimate) HasStdErr() bool {
	return !p.Fixed && !math.IsNaN(p.StdErr) && !math.IsInf(p.StdErr, 0)
}

// Warning is a non-fatal condition attached to a result
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the immutable outcome of one estimation run
type Result struct {
	ModelName string              `json:"model_name"`
	Estimates []ParameterEstimate `json:"estimates"`

	// FreeNames orders the rows and columns of both covariance matrices.
	FreeNames        []string    `json:"free_names"`
	Covariance       [][]float64 `json:"covariance,omitempty"`
	RobustCovariance [][]float64 `json:"robust_covariance,omitempty"`

	LogLikelihood        float64 `json:"log_likelihood"`
	InitialLogLikelihood float64 `json:"initial_log_likelihood"`
	NullLogLikelihood    float64 `json:"null_log_likelihood"`
	NumParameters        int     `json:"n_parameters"`
	NumGroups            int     `json:"n_groups"`
	NumObservations      int     `json:"n_observations"`
	NumDraws             int     `json:"n_draws"`
	DrawMethod           string  `json:"draw_method,omitempty"`

	AIC          float64 `json:"aic"`
	BIC          float64 `json:"bic"`
	RhoSquare    float64 `json:"rho_square"`
	AdjRhoSquare float64 `json:"adj_rho_square"`

	Converged       bool          `json:"converged"`
	Iterations      int           `json:"iterations"`
	FuncEvaluations int           `json:"func_evaluations"`
	Status          string        `json:"status"`
	Warnings        []Warning     `json:"warnings,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Estimate looks up a parameter by name
func (r *Result) Estimate(name string) (ParameterEstimate, bool) {
	for _, e := range r.Estimates {
		if e.Name == name {
			return e, true
		}
	}
	return ParameterEstimate{}, false
}

// Values returns every parameter value (fixed and free) by name
func (r *Result) Values() map[string]float64 {
	out := make(map[string]float64, len(r.Estimates))
	for _, e := range r.Estimates {
		out[e.Name] = e.Value
	}
	return out
}

// HasWarning reports whether a warning with the given code is attached
func (r *Result) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// AIC computes 2k - 2LL
func AIC(logLikelihood float64, k int) float64 {
	return 2*float64(k) - 2*logLikelihood
}

// BIC computes k ln(n) - 2LL
func BIC(logLikelihood float64, k, n int) float64 {
	return float64(k)*math.Log(float64(n)) - 2*logLikelihood
}
