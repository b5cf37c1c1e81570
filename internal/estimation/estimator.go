package estimation

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"
	"kickchoice/internal/model"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// Objective is the total log-likelihood seen by the estimator. Parameter
// vectors are dense, in registry order.
type Objective interface {
	NumParameters() int
	NumGroups() int
	NumObservations() int
	NullLogLikelihood() float64
	NumDraws() int
	DrawMethod() string
	Evaluate(ctx context.Context, params, grad []float64) (float64, error)
	Contributions(ctx context.Context, params []float64) ([]float64, [][]float64, error)
}

// Options configures one estimation
type Options struct {
	// MaxIterations bounds the optimizer's major iterations.
	MaxIterations int
	// GradientTolerance stops when the sup-norm of the optimizer-space
	// gradient falls below it.
	GradientTolerance float64
	// FunctionTolerance stops when the objective improves by less than
	// this for FunctionIterations consecutive iterations.
	FunctionTolerance  float64
	FunctionIterations int
	// RelativeGradientTolerance accepts an optimizer stall as convergence
	// when max_k |g_k| * max(|x_k|, 1) / max(|LL|, 1) is below it.
	RelativeGradientTolerance float64
	// HessianStep is the finite-difference step for the Hessian.
	HessianStep    float64
	SkipCovariance bool
	Verbose        bool
}

// DefaultOptions returns the settings used by the services
func DefaultOptions() Options {
	return Options{
		MaxIterations:             500,
		GradientTolerance:         1e-6,
		FunctionTolerance:         1e-10,
		FunctionIterations:        20,
		RelativeGradientTolerance: 1e-5,
		HessianStep:               1e-5,
	}
}

// Estimator maximizes a log-likelihood over the free parameters of a
// registry and derives standard errors and fit statistics
type Estimator struct {
	opts Options
}

// NewEstimator fills zero-valued options with defaults
func NewEstimator(opts Options) *Estimator {
	def := DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.GradientTolerance <= 0 {
		opts.GradientTolerance = def.GradientTolerance
	}
	if opts.FunctionTolerance <= 0 {
		opts.FunctionTolerance = def.FunctionTolerance
	}
	if opts.FunctionIterations <= 0 {
		opts.FunctionIterations = def.FunctionIterations
	}
	if opts.RelativeGradientTolerance <= 0 {
		opts.RelativeGradientTolerance = def.RelativeGradientTolerance
	}
	if opts.HessianStep <= 0 {
		opts.HessianStep = def.HessianStep
	}
	return &Estimator{opts: opts}
}

// Options returns the effective options
func (e *Estimator) Options() Options {
	return e.opts
}

// Estimate maximizes obj starting from the registry's start values. The
// registry itself is not modified. Non-convergence and covariance problems
// are reported as warnings on the result; a non-finite log-likelihood at the
// start or at the optimum, or a canceled context, is an error.
func (e *Estimator) Estimate(ctx context.Context, obj Objective, reg *model.Registry) (*choice.Result, error) {
	started := time.Now()
	if reg.Len() != obj.NumParameters() {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"registry has %d parameters, objective expects %d", reg.Len(), obj.NumParameters())
	}
	reg = reg.Clone()
	reg.Reset()
	rp := newReparam(reg)
	k := len(rp.free)

	start := reg.Values()
	initialLL, err := obj.Evaluate(ctx, start, nil)
	if err != nil {
		return nil, e.fatal(ctx, err, "log-likelihood at the start values")
	}

	res := &choice.Result{
		InitialLogLikelihood: initialLL,
		NullLogLikelihood:    obj.NullLogLikelihood(),
		NumParameters:        k,
		NumGroups:            obj.NumGroups(),
		NumObservations:      obj.NumObservations(),
		NumDraws:             obj.NumDraws(),
		DrawMethod:           obj.DrawMethod(),
	}
	for _, h := range rp.free {
		res.FreeNames = append(res.FreeNames, reg.Parameter(h).Name)
	}

	final := start
	if k == 0 {
		res.Converged = true
		res.Status = "NoFreeParameters"
	} else {
		final, err = e.optimize(ctx, obj, rp, res)
		if err != nil {
			return nil, err
		}
	}

	grad := make([]float64, len(final))
	ll, err := obj.Evaluate(ctx, final, grad)
	if err != nil {
		return nil, e.fatal(ctx, err, "log-likelihood at the optimum")
	}
	res.LogLikelihood = ll

	if !res.Converged && k > 0 && relativeGradient(rp, final, grad, ll) < e.opts.RelativeGradientTolerance {
		log.Printf("[Estimator] optimizer stopped with %s but the relative gradient is within tolerance", res.Status)
		res.Converged = true
	}
	if !res.Converged {
		res.Warnings = append(res.Warnings, choice.Warning{
			Code:    errors.CodeNonConvergence,
			Message: fmt.Sprintf("optimizer stopped after %d iterations with status %s", res.Iterations, res.Status),
		})
	}

	var cov *covariance
	if k > 0 && !e.opts.SkipCovariance {
		cov, err = e.covariance(ctx, obj, rp, final, res.FreeNames)
		if err != nil {
			return nil, e.fatal(ctx, err, "covariance")
		}
		res.Warnings = append(res.Warnings, cov.warnings...)
		res.Covariance = symToRows(cov.classical)
		res.RobustCovariance = denseToRows(cov.robust)
	}

	res.Estimates = estimates(reg, rp, final, res.Covariance, res.RobustCovariance)
	fitStatistics(res)
	res.Duration = time.Since(started)

	log.Printf("[Estimator] LL=%.4f (initial %.4f) k=%d n=%d converged=%v status=%s iterations=%d in %v",
		res.LogLikelihood, res.InitialLogLikelihood, k, res.NumGroups, res.Converged, res.Status, res.Iterations, res.Duration)
	return res, nil
}

func (e *Estimator) fatal(ctx context.Context, err error, what string) error {
	if ctx.Err() != nil || errors.Is(err, errors.ErrCanceled) {
		return errors.Wrapf(errors.WithCode(errors.CodeCanceled, err), "estimation canceled while computing %s", what)
	}
	return errors.Wrapf(err, "failed to compute %s", what)
}

// optimize runs BFGS on -LL in unconstrained space and returns the dense
// parameter vector at the best iterate
func (e *Estimator) optimize(ctx context.Context, obj Objective, rp *reparam, res *choice.Result) ([]float64, error) {
	ev := newEvaluation(ctx, obj, rp)
	problem := optimize.Problem{
		Func: ev.Func,
		Grad: ev.Grad,
		Status: func() (optimize.Status, error) {
			if ev.err != nil {
				return optimize.Failure, ev.err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: e.opts.GradientTolerance,
		MajorIterations:   e.opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   e.opts.FunctionTolerance,
			Iterations: e.opts.FunctionIterations,
		},
		Recorder: &progress{ctx: ctx, verbose: e.opts.Verbose},
	}

	result, err := optimize.Minimize(problem, rp.start(), settings, &optimize.BFGS{})
	if ev.err != nil {
		return nil, e.fatal(ctx, ev.err, "log-likelihood during optimization")
	}
	if ctx.Err() != nil {
		return nil, e.fatal(ctx, ctx.Err(), "optimization")
	}
	if result == nil {
		return nil, errors.Wrap(err, "optimizer failed to start")
	}
	if err != nil {
		log.Printf("[Estimator] optimizer stopped: %v", err)
	}

	res.Status = result.Status.String()
	res.Converged = converged(result.Status)
	res.Iterations = result.MajorIterations
	res.FuncEvaluations = ev.evals

	jac := make([]float64, len(rp.free))
	return rp.expand(result.X, nil, jac), nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

func relativeGradient(rp *reparam, full, grad []float64, ll float64) float64 {
	denom := math.Max(math.Abs(ll), 1)
	worst := 0.0
	for _, h := range rp.free {
		worst = math.Max(worst, math.Abs(grad[h])*math.Max(math.Abs(full[h]), 1)/denom)
	}
	return worst
}

// evaluation caches the last objective evaluation so that Func and Grad at
// the same point cost one pass over the data
type evaluation struct {
	ctx context.Context
	obj Objective
	rp  *reparam

	valid     bool
	theta     []float64
	ll        float64
	gradTheta []float64
	params    []float64
	jac       []float64
	grad      []float64
	evals     int
	err       error
}

func newEvaluation(ctx context.Context, obj Objective, rp *reparam) *evaluation {
	k := len(rp.free)
	return &evaluation{
		ctx:       ctx,
		obj:       obj,
		rp:        rp,
		theta:     make([]float64, k),
		gradTheta: make([]float64, k),
		jac:       make([]float64, k),
		grad:      make([]float64, obj.NumParameters()),
	}
}

func (ev *evaluation) at(theta []float64) {
	if ev.valid && floats.Equal(theta, ev.theta) {
		return
	}
	copy(ev.theta, theta)
	ev.valid = true
	ev.evals++

	ev.params = ev.rp.expand(theta, ev.params, ev.jac)
	ll, err := ev.obj.Evaluate(ev.ctx, ev.params, ev.grad)
	if err != nil {
		// Trial points far from the optimum may underflow; the line
		// search backs off from them. Anything else stops the run.
		if !errors.Is(err, errors.ErrNonFiniteLikelihood) && ev.err == nil {
			ev.err = err
		}
		ev.ll = math.Inf(-1)
		for k := range ev.gradTheta {
			ev.gradTheta[k] = 0
		}
		return
	}
	ev.ll = ll
	for k, h := range ev.rp.free {
		ev.gradTheta[k] = ev.grad[h] * ev.jac[k]
	}
}

// Func returns -LL
func (ev *evaluation) Func(theta []float64) float64 {
	ev.at(theta)
	if math.IsInf(ev.ll, -1) {
		return math.Inf(1)
	}
	return -ev.ll
}

// Grad returns -dLL/dtheta
func (ev *evaluation) Grad(dst, theta []float64) {
	ev.at(theta)
	for k, g := range ev.gradTheta {
		dst[k] = -g
	}
}

// progress logs major iterations and stops the run when ctx is done
type progress struct {
	ctx     context.Context
	verbose bool
}

func (p *progress) Init() error {
	return p.ctx.Err()
}

func (p *progress) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op&optimize.MajorIteration == 0 {
		return nil
	}
	if p.verbose {
		norm := math.NaN()
		if loc.Gradient != nil {
			norm = floats.Norm(loc.Gradient, math.Inf(1))
		}
		log.Printf("[Estimator] iteration %d: LL=%.6f |grad|=%.3g evaluations=%d",
			stats.MajorIterations, -loc.F, norm, stats.FuncEvaluations)
	}
	return p.ctx.Err()
}

func estimates(reg *model.Registry, rp *reparam, final []float64, cov, robust [][]float64) []choice.ParameterEstimate {
	freeIndex := make(map[model.Handle]int, len(rp.free))
	for k, h := range rp.free {
		freeIndex[h] = k
	}

	out := make([]choice.ParameterEstimate, reg.Len())
	for i, p := range reg.Parameters() {
		est := choice.ParameterEstimate{
			Name:         p.Name,
			Value:        final[i],
			Fixed:        p.Fixed,
			Lower:        p.Lower,
			Upper:        p.Upper,
			StdErr:       math.NaN(),
			TStat:        math.NaN(),
			PValue:       math.NaN(),
			RobustStdErr: math.NaN(),
			RobustTStat:  math.NaN(),
			RobustPValue: math.NaN(),
		}
		if k, ok := freeIndex[model.Handle(i)]; ok {
			if cov != nil {
				est.StdErr, est.TStat, est.PValue = inference(est.Value, cov[k][k])
			}
			if robust != nil {
				est.RobustStdErr, est.RobustTStat, est.RobustPValue = inference(est.Value, robust[k][k])
			}
		}
		out[i] = est
	}
	return out
}

// inference returns se, t and the two-sided normal p-value. A negative
// variance leaves all three undefined.
func inference(value, variance float64) (float64, float64, float64) {
	if !(variance >= 0) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	se := math.Sqrt(variance)
	t := value / se
	return se, t, 2 * distuv.UnitNormal.Survival(math.Abs(t))
}

func fitStatistics(res *choice.Result) {
	k := res.NumParameters
	res.AIC = choice.AIC(res.LogLikelihood, k)
	res.BIC = choice.BIC(res.LogLikelihood, k, res.NumGroups)
	res.RhoSquare = math.NaN()
	res.AdjRhoSquare = math.NaN()
	if res.NullLogLikelihood != 0 {
		res.RhoSquare = 1 - res.LogLikelihood/res.NullLogLikelihood
		res.AdjRhoSquare = 1 - (res.LogLikelihood-float64(k))/res.NullLogLikelihood
	}
}
