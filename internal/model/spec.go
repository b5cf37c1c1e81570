package model

import (
	"math"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"
)

type coefKey struct {
	alt       choice.AltID
	covariate string
}

// Specification is an immutable, validated utility model. It is safe for
// concurrent use; all evaluation methods are pure functions of their inputs.
type Specification struct {
	name         string
	registry     *Registry
	alternatives []choice.AltID
	altIndex     map[choice.AltID]int
	covariates   []string
	covIndex     map[string]int
	draws        []string
	terms        [][]Term
	utilities    [][]term
	coefficients map[coefKey]string
}

// Name returns the model name
func (s *Specification) Name() string {
	return s.name
}

// Alternatives returns the ordered alternative set
func (s *Specification) Alternatives() []choice.AltID {
	out := make([]choice.AltID, len(s.alternatives))
	copy(out, s.alternatives)
	return out
}

// NumAlternatives returns the size of the alternative set
func (s *Specification) NumAlternatives() int {
	return len(s.alternatives)
}

// AltIndex returns the position of alt in the alternative set
func (s *Specification) AltIndex(alt choice.AltID) (int, bool) {
	i, ok := s.altIndex[alt]
	return i, ok
}

// Covariates returns the covariate schema; rows passed to Evaluate are
// aligned with it.
func (s *Specification) Covariates() []string {
	out := make([]string, len(s.covariates))
	copy(out, s.covariates)
	return out
}

// NumParameters returns the number of declared parameters (fixed and free)
func (s *Specification) NumParameters() int {
	return s.registry.Len()
}

// Registry returns a fresh copy of the parameter registry at start values
func (s *Specification) Registry() *Registry {
	r := s.registry.Clone()
	r.Reset()
	return r
}

// StartValues returns the dense start vector
func (s *Specification) StartValues() []float64 {
	return s.Registry().Values()
}

// DrawNames lists random coefficient dimensions in draw-vector order
func (s *Specification) DrawNames() []string {
	out := make([]string, len(s.draws))
	copy(out, s.draws)
	return out
}

// NumDrawDimensions returns the number of random coefficients
func (s *Specification) NumDrawDimensions() int {
	return len(s.draws)
}

// HasRandomEffects reports whether simulation is needed
func (s *Specification) HasRandomEffects() bool {
	return len(s.draws) > 0
}

// Terms returns the utility terms of an alternative
func (s *Specification) Terms(alt choice.AltID) []Term {
	i, ok := s.altIndex[alt]
	if !ok {
		return nil
	}
	out := make([]Term, len(s.terms[i]))
	copy(out, s.terms[i])
	return out
}

// Coefficient returns the alternative-specific parameter attached to a
// covariate, if one was declared with AddAlternativeSpecific.
func (s *Specification) Coefficient(alt choice.AltID, covariate string) (string, bool) {
	name, ok := s.coefficients[coefKey{alt: alt, covariate: covariate}]
	return name, ok
}

// Row aligns a covariate mapping with the schema
func (s *Specification) Row(covariates map[string]float64) ([]float64, error) {
	row := make([]float64, len(s.covariates))
	for i, name := range s.covariates {
		v, ok := covariates[name]
		if !ok {
			return nil, errors.Wrapf(errors.ErrUnresolvedReference, "covariate %q missing from row", name)
		}
		row[i] = v
	}
	return row, nil
}

// Evaluate computes the utility of alt for a schema-aligned covariate row,
// a dense parameter vector (registry order) and a draw vector (one value per
// random coefficient; nil when the model has none).
func (s *Specification) Evaluate(alt choice.AltID, row, params, draws []float64) (float64, error) {
	pos, ok := s.altIndex[alt]
	if !ok {
		return math.NaN(), errors.Wrapf(errors.ErrUnresolvedReference, "unknown alternative %d", alt)
	}
	if len(row) != len(s.covariates) || len(params) != s.registry.Len() || len(draws) < len(s.draws) {
		return math.NaN(), errors.InvalidInput("evaluate: row, parameter or draw vector has the wrong length")
	}
	return s.utility(pos, row, params, draws), nil
}

func (s *Specification) utility(pos int, row, params, draws []float64) float64 {
	v := 0.0
	for _, t := range s.utilities[pos] {
		v += t.eval(row, params, draws)
	}
	return v
}

// Utilities fills dst with the utility of every alternative, in order
func (s *Specification) Utilities(row, params, draws, dst []float64) []float64 {
	if len(dst) != len(s.alternatives) {
		dst = make([]float64, len(s.alternatives))
	}
	for pos := range s.utilities {
		dst[pos] = s.utility(pos, row, params, draws)
	}
	return dst
}

// AccumulateGradient adds w * dU_pos/dtheta to dst (length NumParameters)
func (s *Specification) AccumulateGradient(pos int, row, draws []float64, w float64, dst []float64) {
	for _, t := range s.utilities[pos] {
		t.accumulate(row, draws, w, dst)
	}
}
