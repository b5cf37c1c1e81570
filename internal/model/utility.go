package model

import "fmt"

// TermKind tags the entries of a utility term list
type TermKind string

const (
	// TermConstant contributes the parameter value itself.
	TermConstant TermKind = "constant"
	// TermLinear contributes parameter * covariate.
	TermLinear TermKind = "linear"
	// TermIndicator contributes parameter * [covariate == Value].
	TermIndicator TermKind = "indicator"
	// TermRandomEffect contributes (mean + std * draw), multiplied by the
	// covariate when one is set. The mean parameter is optional.
	TermRandomEffect TermKind = "random"
)

// Term is one additive piece of an alternative's utility
type Term struct {
	Kind      TermKind `json:"kind" yaml:"kind"`
	Param     string   `json:"param,omitempty" yaml:"param,omitempty"`
	Covariate string   `json:"covariate,omitempty" yaml:"covariate,omitempty"`
	Value     float64  `json:"value,omitempty" yaml:"value,omitempty"`
	StdParam  string   `json:"std_param,omitempty" yaml:"std_param,omitempty"`
	Draw      string   `json:"draw,omitempty" yaml:"draw,omitempty"`
}

// Constant returns a parameter-only term
func Constant(param string) Term {
	return Term{Kind: TermConstant, Param: param}
}

// Linear returns param * covariate
func Linear(param, covariate string) Term {
	return Term{Kind: TermLinear, Param: param, Covariate: covariate}
}

// Indicator returns param * [covariate == value]
func Indicator(param, covariate string, value float64) Term {
	return Term{Kind: TermIndicator, Param: param, Covariate: covariate, Value: value}
}

// RandomEffect returns mean + std * draw. mean may be empty.
func RandomEffect(mean, std, draw string) Term {
	return Term{Kind: TermRandomEffect, Param: mean, StdParam: std, Draw: draw}
}

// RandomSlope returns (mean + std * draw) * covariate
func RandomSlope(mean, std, draw, covariate string) Term {
	return Term{Kind: TermRandomEffect, Param: mean, StdParam: std, Draw: draw, Covariate: covariate}
}

func (t Term) String() string {
	switch t.Kind {
	case TermConstant:
		return t.Param
	case TermLinear:
		return fmt.Sprintf("%s*%s", t.Param, t.Covariate)
	case TermIndicator:
		return fmt.Sprintf("%s*(%s==%g)", t.Param, t.Covariate, t.Value)
	case TermRandomEffect:
		s := fmt.Sprintf("%s*%s", t.StdParam, t.Draw)
		if t.Param != "" {
			s = t.Param + " + " + s
		}
		if t.Covariate != "" {
			s = fmt.Sprintf("(%s)*%s", s, t.Covariate)
		}
		return s
	default:
		return fmt.Sprintf("<%s>", t.Kind)
	}
}

// term is the resolved form used during evaluation. Absent references are -1.
type term struct {
	kind  TermKind
	param Handle
	std   Handle
	cov   int
	draw  int
	value float64
}

func (t term) eval(row, params, draws []float64) float64 {
	switch t.kind {
	case TermConstant:
		return params[t.param]
	case TermLinear:
		return params[t.param] * row[t.cov]
	case TermIndicator:
		if row[t.cov] == t.value {
			return params[t.param]
		}
		return 0
	case TermRandomEffect:
		b := params[t.std] * draws[t.draw]
		if t.param >= 0 {
			b += params[t.param]
		}
		if t.cov >= 0 {
			b *= row[t.cov]
		}
		return b
	}
	return 0
}

// accumulate adds w * dU/dparam into dst. Utilities are linear in the
// parameters, so the derivative does not depend on parameter values.
func (t term) accumulate(row, draws []float64, w float64, dst []float64) {
	switch t.kind {
	case TermConstant:
		dst[t.param] += w
	case TermLinear:
		dst[t.param] += w * row[t.cov]
	case TermIndicator:
		if row[t.cov] == t.value {
			dst[t.param] += w
		}
	case TermRandomEffect:
		x := 1.0
		if t.cov >= 0 {
			x = row[t.cov]
		}
		if t.param >= 0 {
			dst[t.param] += w * x
		}
		dst[t.std] += w * x * draws[t.draw]
	}
}
