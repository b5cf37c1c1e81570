package likelihood

import (
	"kickchoice/internal/errors"
	"kickchoice/internal/model"
)

// workspace holds scratch buffers for one goroutine
type workspace struct {
	util []float64
	prob []float64
	grad []float64
}

func newWorkspace(spec *model.Specification) *workspace {
	return &workspace{
		util: make([]float64, spec.NumAlternatives()),
		prob: make([]float64, spec.NumAlternatives()),
		grad: make([]float64, spec.NumParameters()),
	}
}

// SequenceLogLikelihood sums the chosen-alternative log-probabilities over
// the group's occasions, every occasion evaluated with the same draw vector.
// A single-occasion group is the plain logit log-likelihood. When grad is
// non-nil it receives d ll / d params (registry order).
func SequenceLogLikelihood(spec *model.Specification, g Group, params, draw, grad []float64) (float64, error) {
	if err := checkInputs(spec, params, draw, grad); err != nil {
		return 0, err
	}
	if len(g.Occasions) == 0 {
		return 0, errors.DataError(nil, g.IndividualID, 0, "empty panel group")
	}
	return newWorkspace(spec).sequence(spec, g, params, draw, grad), nil
}

func checkInputs(spec *model.Specification, params, draw, grad []float64) error {
	if len(params) != spec.NumParameters() {
		return errors.Newf(errors.CodeInvalidInput, "expected %d parameter values, got %d", spec.NumParameters(), len(params))
	}
	if len(draw) < spec.NumDrawDimensions() {
		return errors.Newf(errors.CodeInvalidInput, "expected %d draw values, got %d", spec.NumDrawDimensions(), len(draw))
	}
	if grad != nil && len(grad) != spec.NumParameters() {
		return errors.Newf(errors.CodeInvalidInput, "gradient buffer has length %d, expected %d", len(grad), spec.NumParameters())
	}
	return nil
}

// sequence assumes compiled, validated occasions. grad is overwritten.
func (w *workspace) sequence(spec *model.Specification, g Group, params, draw, grad []float64) float64 {
	for k := range grad {
		grad[k] = 0
	}
	ll := 0.0
	for _, occ := range g.Occasions {
		w.util = spec.Utilities(occ.Row, params, draw, w.util)
		lse := probabilities(w.util, occ.Avail, w.prob)
		ll += w.util[occ.Chosen] - lse
		if grad == nil {
			continue
		}
		// d log P_c = dV_c - sum_j P_j dV_j
		spec.AccumulateGradient(occ.Chosen, occ.Row, draw, 1, grad)
		for j, av := range occ.Avail {
			if av && w.prob[j] != 0 {
				spec.AccumulateGradient(j, occ.Row, draw, -w.prob[j], grad)
			}
		}
	}
	return ll
}
