package estimation

import (
	"math"

	"kickchoice/internal/model"
)

// boundEps keeps start values that sit exactly on a bound inside the
// open interval the transforms can reach
const boundEps = 1e-8

// transform maps an unconstrained optimizer coordinate to a parameter that
// respects its box constraints:
//
//	both bounds:  lo + (hi-lo) * logistic(theta)
//	lower only:   lo + exp(theta)
//	upper only:   hi - exp(theta)
//	unbounded:    theta
type transform struct {
	lo, hi float64
	hasLo  bool
	hasHi  bool
}

func newTransform(p model.Parameter) transform {
	return transform{
		lo:    p.Lower,
		hi:    p.Upper,
		hasLo: !math.IsInf(p.Lower, -1),
		hasHi: !math.IsInf(p.Upper, 1),
	}
}

// toTheta is the inverse map, clamping values on a bound slightly inside
func (t transform) toTheta(x float64) float64 {
	switch {
	case t.hasLo && t.hasHi:
		if t.hi == t.lo {
			return 0
		}
		p := (x - t.lo) / (t.hi - t.lo)
		p = math.Min(math.Max(p, boundEps), 1-boundEps)
		return math.Log(p / (1 - p))
	case t.hasLo:
		return math.Log(math.Max(x-t.lo, boundEps))
	case t.hasHi:
		return math.Log(math.Max(t.hi-x, boundEps))
	default:
		return x
	}
}

// toX returns the parameter value and dx/dtheta
func (t transform) toX(theta float64) (float64, float64) {
	switch {
	case t.hasLo && t.hasHi:
		s := logistic(theta)
		return t.lo + (t.hi-t.lo)*s, (t.hi - t.lo) * s * (1 - s)
	case t.hasLo:
		e := math.Exp(theta)
		return t.lo + e, e
	case t.hasHi:
		e := math.Exp(theta)
		return t.hi - e, -e
	default:
		return theta, 1
	}
}

func logistic(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// reparam maps the free parameters of a registry between optimizer space
// and the dense parameter vector
type reparam struct {
	reg        *model.Registry
	free       []model.Handle
	transforms []transform
}

func newReparam(reg *model.Registry) *reparam {
	free := reg.FreeHandles()
	r := &reparam{reg: reg, free: free, transforms: make([]transform, len(free))}
	for k, h := range free {
		r.transforms[k] = newTransform(reg.Parameter(h))
	}
	return r
}

// start returns the optimizer coordinates of the registry's current values
func (r *reparam) start() []float64 {
	free := r.reg.FreeVector()
	theta := make([]float64, len(free))
	for k, x := range free {
		theta[k] = r.transforms[k].toTheta(x)
	}
	return theta
}

// expand writes the dense parameter vector for theta into dst and the
// chain-rule factors into jac (one per free parameter)
func (r *reparam) expand(theta, dst, jac []float64) []float64 {
	free := make([]float64, len(theta))
	for k, th := range theta {
		free[k], jac[k] = r.transforms[k].toX(th)
	}
	return r.reg.Expand(free, dst)
}

// freeValues extracts the free parameters from a dense vector
func (r *reparam) freeValues(full []float64) []float64 {
	out := make([]float64, len(r.free))
	for k, h := range r.free {
		out[k] = full[h]
	}
	return out
}
