package likelihood

import (
	"context"
	"math"
	"runtime"

	"kickchoice/internal/errors"
	"kickchoice/internal/model"

	"golang.org/x/sync/errgroup"
)

// chunksPerWorker controls how finely groups are split across workers
const chunksPerWorker = 4

// Objective is the total (simulated) log-likelihood of a compiled panel.
// Groups are evaluated in parallel; each writes its own slot and the slots
// are summed in group order, so the result does not depend on the number
// of workers.
type Objective struct {
	data    *Data
	spec    *model.Specification
	draws   *DrawSet
	workers int

	ll     []float64
	scores [][]float64
}

// NewObjective binds compiled data to a draw set. draws may be nil when the
// model has no random effects. workers <= 0 means runtime.NumCPU().
func NewObjective(data *Data, draws *DrawSet, workers int) (*Objective, error) {
	spec := data.Spec()
	if spec.HasRandomEffects() {
		if draws == nil {
			return nil, errors.Newf(errors.CodeInvalidInput, "model %q has random effects but no draws were generated", spec.Name())
		}
		if draws.NumIndividuals() < data.NumGroups() || draws.Dimensions() < spec.NumDrawDimensions() {
			return nil, errors.Newf(errors.CodeInvalidInput,
				"draw set covers %d individuals x %d dimensions, need %d x %d",
				draws.NumIndividuals(), draws.Dimensions(), data.NumGroups(), spec.NumDrawDimensions())
		}
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	scores := make([][]float64, data.NumGroups())
	for i := range scores {
		scores[i] = make([]float64, spec.NumParameters())
	}
	return &Objective{
		data:    data,
		spec:    spec,
		draws:   draws,
		workers: workers,
		ll:      make([]float64, data.NumGroups()),
		scores:  scores,
	}, nil
}

// NumParameters returns the length of the dense parameter vector
func (o *Objective) NumParameters() int {
	return o.spec.NumParameters()
}

// NumGroups returns the number of independent contributions
func (o *Objective) NumGroups() int {
	return o.data.NumGroups()
}

// NumObservations returns the number of choice occasions
func (o *Objective) NumObservations() int {
	return o.data.NumObservations()
}

// NullLogLikelihood returns the equal-shares log-likelihood
func (o *Objective) NullLogLikelihood() float64 {
	return o.data.NullLogLikelihood()
}

// NumDraws returns R, or 0 for closed-form models
func (o *Objective) NumDraws() int {
	if !o.spec.HasRandomEffects() {
		return 0
	}
	return o.draws.NumDraws()
}

// DrawMethod returns the draw method, or "" for closed-form models
func (o *Objective) DrawMethod() string {
	if !o.spec.HasRandomEffects() {
		return ""
	}
	return string(o.draws.Method())
}

// Evaluate returns the total log-likelihood at params (dense, registry
// order). When grad is non-nil it receives the total gradient. A
// non-finite total is an ErrNonFiniteLikelihood error. Evaluate is not safe
// for concurrent use; the optimizer calls it sequentially.
func (o *Objective) Evaluate(ctx context.Context, params, grad []float64) (float64, error) {
	if err := o.run(ctx, params, grad != nil); err != nil {
		return math.NaN(), err
	}

	total := 0.0
	for _, v := range o.ll {
		total += v
	}
	if grad != nil {
		for k := range grad {
			grad[k] = 0
		}
		for _, s := range o.scores {
			for k, v := range s {
				grad[k] += v
			}
		}
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		for g, v := range o.ll {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return total, errors.Wrapf(errors.ErrNonFiniteLikelihood,
					"individual %q contributes %v", o.data.groups[g].IndividualID, v)
			}
		}
		return total, errors.ErrNonFiniteLikelihood
	}
	return total, nil
}

// Contributions returns copies of the per-group log-likelihoods and
// scores (gradients), in group order
func (o *Objective) Contributions(ctx context.Context, params []float64) ([]float64, [][]float64, error) {
	if err := o.run(ctx, params, true); err != nil {
		return nil, nil, err
	}
	ll := make([]float64, len(o.ll))
	copy(ll, o.ll)
	scores := make([][]float64, len(o.scores))
	for g, s := range o.scores {
		scores[g] = append([]float64(nil), s...)
	}
	return ll, scores, nil
}

func (o *Objective) run(ctx context.Context, params []float64, withGrad bool) error {
	if len(params) != o.spec.NumParameters() {
		return errors.Newf(errors.CodeInvalidInput, "expected %d parameter values, got %d", o.spec.NumParameters(), len(params))
	}

	n := len(o.data.groups)
	chunk := n / (o.workers * chunksPerWorker)
	if chunk < 1 {
		chunk = 1
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.workers)
	for start := 0; start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w := newWorkspace(o.spec)
			for g := start; g < end; g++ {
				var grad []float64
				if withGrad {
					grad = o.scores[g]
				}
				o.ll[g] = w.simulated(o.spec, o.data.groups[g], g, params, o.draws, grad)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return errors.WithCode(errors.CodeCanceled, err)
	}
	return nil
}
