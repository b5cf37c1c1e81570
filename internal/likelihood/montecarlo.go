package likelihood

import (
	"math"

	"kickchoice/internal/errors"
	"kickchoice/internal/model"
)

// SimulatedLogLikelihood approximates the log of the integrated panel
// likelihood of group i: log((1/R) sum_r exp(ll_r)), where ll_r is the
// sequence log-likelihood at draw r. The average is taken before the log.
// Without random effects the closed form is returned. When grad is non-nil
// it receives the gradient of the simulated log-likelihood.
func SimulatedLogLikelihood(spec *model.Specification, g Group, i int, params []float64, draws *DrawSet, grad []float64) (float64, error) {
	if len(params) != spec.NumParameters() {
		return 0, errors.Newf(errors.CodeInvalidInput, "expected %d parameter values, got %d", spec.NumParameters(), len(params))
	}
	if grad != nil && len(grad) != spec.NumParameters() {
		return 0, errors.Newf(errors.CodeInvalidInput, "gradient buffer has length %d, expected %d", len(grad), spec.NumParameters())
	}
	if len(g.Occasions) == 0 {
		return 0, errors.DataError(nil, g.IndividualID, 0, "empty panel group")
	}
	if spec.HasRandomEffects() {
		if draws == nil || draws.Dimensions() < spec.NumDrawDimensions() {
			return 0, errors.Newf(errors.CodeInvalidInput, "model %q needs %d draw dimensions", spec.Name(), spec.NumDrawDimensions())
		}
		if i < 0 || i >= draws.NumIndividuals() {
			return 0, errors.Newf(errors.CodeInvalidInput, "no draws for individual index %d", i)
		}
	}
	return newWorkspace(spec).simulated(spec, g, i, params, draws, grad), nil
}

// simulated streams over the R draws with a running maximum, so that no
// per-draw storage is needed and exp never overflows or underflows to an
// all-zero sum.
func (w *workspace) simulated(spec *model.Specification, g Group, i int, params []float64, draws *DrawSet, grad []float64) float64 {
	if !spec.HasRandomEffects() {
		return w.sequence(spec, g, params, nil, grad)
	}

	for k := range grad {
		grad[k] = 0
	}
	var perDraw []float64
	if grad != nil {
		perDraw = w.grad
	}

	R := draws.NumDraws()
	m := math.Inf(-1)
	s := 0.0
	for r := 0; r < R; r++ {
		ll := w.sequence(spec, g, params, draws.Draw(i, r), perDraw)
		if math.IsInf(ll, -1) {
			continue
		}
		if math.IsNaN(ll) || math.IsInf(ll, 1) {
			return math.NaN()
		}
		if ll > m {
			// rescale the accumulated terms to the new maximum
			scale := math.Exp(m - ll)
			s *= scale
			for k := range grad {
				grad[k] *= scale
			}
			m = ll
		}
		e := math.Exp(ll - m)
		s += e
		for k := range grad {
			grad[k] += e * perDraw[k]
		}
	}
	if s == 0 {
		return math.Inf(-1)
	}
	for k := range grad {
		grad[k] /= s
	}
	return m + math.Log(s/float64(R))
}
