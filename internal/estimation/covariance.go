package estimation

import (
	"context"
	"fmt"
	"math"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// singularRatio is the smallest |eigenvalue| / largest |eigenvalue| accepted
// before the Hessian is declared singular
const singularRatio = 1e-10

// covariance holds the classical and robust covariance of the free
// parameters. Either may be nil when it could not be computed.
type covariance struct {
	classical *mat.SymDense
	robust    *mat.Dense
	warnings  []choice.Warning
}

// hessian approximates the Hessian of the negative log-likelihood with
// respect to the free parameters by central differences of the analytic
// gradient, then symmetrises it
func hessian(ctx context.Context, obj Objective, rp *reparam, full []float64, step float64) (*mat.SymDense, error) {
	k := len(rp.free)
	x := rp.freeValues(full)
	params := make([]float64, len(full))
	grad := make([]float64, len(full))

	var evalErr error
	f := func(y, x []float64) {
		params = rp.reg.Expand(x, params)
		if _, err := obj.Evaluate(ctx, params, grad); err != nil && evalErr == nil {
			evalErr = err
		}
		for i, h := range rp.free {
			y[i] = -grad[h]
		}
	}

	jac := mat.NewDense(k, k, nil)
	fd.Jacobian(jac, f, x, &fd.JacobianSettings{Formula: fd.Central, Step: step})
	if evalErr != nil {
		return nil, evalErr
	}

	h := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			h.SetSym(i, j, (jac.At(i, j)+jac.At(j, i))/2)
		}
	}
	return h, nil
}

// invert returns H^-1. A singular Hessian gives nil and a SingularHessian
// warning; an indefinite one is inverted through its eigendecomposition and
// flagged NotPositiveDefinite.
func invert(h *mat.SymDense, names []string) (*mat.SymDense, []choice.Warning) {
	n := h.SymmetricDim()
	var eig mat.EigenSym
	if !eig.Factorize(h, true) {
		return nil, []choice.Warning{{Code: errors.CodeSingularHessian, Message: "eigendecomposition of the Hessian failed"}}
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	maxAbs := 0.0
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	for i, v := range values {
		if maxAbs == 0 || math.Abs(v) <= singularRatio*maxAbs || math.IsNaN(v) {
			return nil, []choice.Warning{{
				Code:    errors.CodeSingularHessian,
				Message: fmt.Sprintf("Hessian is singular (eigenvalue %.3g); %s", v, weakestDirection(&vectors, i, names)),
			}}
		}
	}

	negative := 0
	for _, v := range values {
		if v < 0 {
			negative++
		}
	}
	if negative == 0 {
		var chol mat.Cholesky
		if chol.Factorize(h) {
			inv := mat.NewSymDense(n, nil)
			if err := chol.InverseTo(inv); err == nil {
				return inv, nil
			}
		}
	}

	inv := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s := 0.0
			for m, v := range values {
				s += vectors.At(i, m) * vectors.At(j, m) / v
			}
			inv.SetSym(i, j, s)
		}
	}
	var warnings []choice.Warning
	if negative > 0 {
		warnings = append(warnings, choice.Warning{
			Code:    errors.CodeNotPositiveDefinite,
			Message: fmt.Sprintf("Hessian has %d negative eigenvalue(s); the estimate may not be a maximum", negative),
		})
	}
	return inv, warnings
}

// weakestDirection names the parameter loading most on eigenvector col
func weakestDirection(vectors *mat.Dense, col int, names []string) string {
	best, arg := 0.0, -1
	r, _ := vectors.Dims()
	for i := 0; i < r; i++ {
		if v := math.Abs(vectors.At(i, col)); v > best {
			best, arg = v, i
		}
	}
	if arg < 0 || arg >= len(names) {
		return "no dominant parameter"
	}
	return fmt.Sprintf("most affected parameter %q", names[arg])
}

// sandwich returns H^-1 B H^-1 where B is the sum of outer products of the
// per-group scores of the free parameters
func sandwich(inv *mat.SymDense, scores [][]float64, rp *reparam) *mat.Dense {
	k := len(rp.free)
	b := mat.NewSymDense(k, nil)
	s := mat.NewVecDense(k, nil)
	for _, score := range scores {
		for i, h := range rp.free {
			s.SetVec(i, score[h])
		}
		b.SymRankOne(b, 1, s)
	}
	var robust mat.Dense
	robust.Product(inv, b, inv)
	return &robust
}

func (e *Estimator) covariance(ctx context.Context, obj Objective, rp *reparam, full []float64, names []string) (*covariance, error) {
	h, err := hessian(ctx, obj, rp, full, e.opts.HessianStep)
	if err != nil {
		return nil, err
	}
	cov := &covariance{}
	inv, warnings := invert(h, names)
	cov.warnings = warnings
	if inv == nil {
		return cov, nil
	}
	cov.classical = inv

	_, scores, err := obj.Contributions(ctx, full)
	if err != nil {
		return nil, err
	}
	cov.robust = sandwich(inv, scores, rp)
	return cov, nil
}

func symToRows(m *mat.SymDense) [][]float64 {
	if m == nil {
		return nil
	}
	n := m.SymmetricDim()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}

func denseToRows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}
