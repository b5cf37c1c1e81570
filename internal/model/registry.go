package model

import (
	"math"

	"kickchoice/internal/errors"
)

// Handle is a stable index into a Registry
type Handle int

// Parameter is a named scalar of the utility specification
type Parameter struct {
	Name  string
	Start float64
	Lower float64
	Upper float64
	Fixed bool
}

// Bounded reports whether either bound is finite
func (p Parameter) Bounded() bool {
	return !math.IsInf(p.Lower, -1) || !math.IsInf(p.Upper, 1)
}

// Registry tracks parameters in registration order along with their current
// values. Only the optimizer mutates values, and only through Scatter.
type Registry struct {
	params []Parameter
	values []float64
	index  map[string]Handle
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]Handle)}
}

// Register adds a parameter. Use math.Inf for absent bounds.
func (r *Registry) Register(name string, start, lower, upper float64, fixed bool) (Handle, error) {
	if name == "" {
		return -1, errors.Wrap(errors.ErrInvalidBounds, "parameter name cannot be empty")
	}
	if _, exists := r.index[name]; exists {
		return -1, errors.Wrapf(errors.ErrDuplicateParameter, "parameter %q registered twice", name)
	}
	if math.IsNaN(start) || math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(start, 0) {
		return -1, errors.Wrapf(errors.ErrInvalidBounds, "parameter %q: start and bounds must be numbers", name)
	}
	if !(lower <= start && start <= upper) {
		return -1, errors.Wrapf(errors.ErrInvalidBounds,
			"parameter %q: expected lower <= start <= upper, got %g <= %g <= %g", name, lower, start, upper)
	}

	h := Handle(len(r.params))
	r.params = append(r.params, Parameter{Name: name, Start: start, Lower: lower, Upper: upper, Fixed: fixed})
	r.values = append(r.values, start)
	r.index[name] = h
	return h, nil
}

// Lookup resolves a parameter name
func (r *Registry) Lookup(name string) (Handle, bool) {
	h, ok := r.index[name]
	return h, ok
}

// Len returns the number of registered parameters
func (r *Registry) Len() int {
	return len(r.params)
}

// Parameter returns the declaration behind a handle
func (r *Registry) Parameter(h Handle) Parameter {
	return r.params[h]
}

// Parameters returns a copy of all declarations in registration order
func (r *Registry) Parameters() []Parameter {
	out := make([]Parameter, len(r.params))
	copy(out, r.params)
	return out
}

// Value returns the current value of a parameter
func (r *Registry) Value(h Handle) float64 {
	return r.values[h]
}

// FreeHandles lists non-fixed parameters in registration order
func (r *Registry) FreeHandles() []Handle {
	var out []Handle
	for i, p := range r.params {
		if !p.Fixed {
			out = append(out, Handle(i))
		}
	}
	return out
}

// NumFree returns the number of estimated parameters
func (r *Registry) NumFree() int {
	n := 0
	for _, p := range r.params {
		if !p.Fixed {
			n++
		}
	}
	return n
}

// FreeVector returns the current values of the non-fixed parameters
func (r *Registry) FreeVector() []float64 {
	out := make([]float64, 0, len(r.params))
	for i, p := range r.params {
		if !p.Fixed {
			out = append(out, r.values[i])
		}
	}
	return out
}

// Scatter writes free values back in place. Fixed parameters are untouched.
func (r *Registry) Scatter(free []float64) error {
	if len(free) != r.NumFree() {
		return errors.Newf(errors.CodeInvalidInput, "scatter: expected %d free values, got %d", r.NumFree(), len(free))
	}
	k := 0
	for i, p := range r.params {
		if p.Fixed {
			continue
		}
		r.values[i] = free[k]
		k++
	}
	return nil
}

// Expand builds a dense value vector from free values without mutating the
// registry. Fixed parameters take their start values. dst is reused when it
// has the right length.
func (r *Registry) Expand(free []float64, dst []float64) []float64 {
	if len(dst) != len(r.params) {
		dst = make([]float64, len(r.params))
	}
	k := 0
	for i, p := range r.params {
		if p.Fixed {
			dst[i] = p.Start
			continue
		}
		dst[i] = free[k]
		k++
	}
	return dst
}

// Values returns a copy of the current dense value vector
func (r *Registry) Values() []float64 {
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

// FullVector returns every parameter value keyed by name
func (r *Registry) FullVector() map[string]float64 {
	out := make(map[string]float64, len(r.params))
	for i, p := range r.params {
		out[p.Name] = r.values[i]
	}
	return out
}

// Reset puts every value back to its start value
func (r *Registry) Reset() {
	for i, p := range r.params {
		r.values[i] = p.Start
	}
}

// Clone returns an independent copy
func (r *Registry) Clone() *Registry {
	c := &Registry{
		params: make([]Parameter, len(r.params)),
		values: make([]float64, len(r.values)),
		index:  make(map[string]Handle, len(r.index)),
	}
	copy(c.params, r.params)
	copy(c.values, r.values)
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}

// fix turns a parameter into a fixed one at value. Only the builder uses it,
// before the registry is frozen into a Specification.
func (r *Registry) fix(h Handle, value float64) {
	p := &r.params[h]
	p.Fixed = true
	p.Start = value
	if p.Lower > value {
		p.Lower = value
	}
	if p.Upper < value {
		p.Upper = value
	}
	r.values[h] = value
}
