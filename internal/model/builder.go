package model

import (
	"fmt"
	"log"
	"math"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"
)

// ParamOption adjusts a parameter declaration
type ParamOption func(*Parameter)

// Bounds sets box constraints
func Bounds(lower, upper float64) ParamOption {
	return func(p *Parameter) {
		p.Lower = lower
		p.Upper = upper
	}
}

// Fixed keeps the parameter at its start value
func Fixed() ParamOption {
	return func(p *Parameter) {
		p.Fixed = true
	}
}

// Builder assembles a Specification. Methods chain; the first error is
// kept and returned by Build.
type Builder struct {
	name         string
	registry     *Registry
	alternatives []choice.AltID
	altSet       map[choice.AltID]bool
	covariates   []string
	covSet       map[string]bool
	terms        map[choice.AltID][]Term
	coefficients map[coefKey]string
	constants    map[choice.AltID]string
	err          error
}

// NewBuilder starts an empty model
func NewBuilder(name string) *Builder {
	return &Builder{
		name:         name,
		registry:     NewRegistry(),
		altSet:       make(map[choice.AltID]bool),
		covSet:       make(map[string]bool),
		terms:        make(map[choice.AltID][]Term),
		coefficients: make(map[coefKey]string),
		constants:    make(map[choice.AltID]string),
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Err returns the first error recorded so far
func (b *Builder) Err() error {
	return b.err
}

// WithCovariates declares covariate columns. Terms may only reference
// declared covariates.
func (b *Builder) WithCovariates(names ...string) *Builder {
	for _, name := range names {
		if name == "" || b.covSet[name] {
			continue
		}
		b.covSet[name] = true
		b.covariates = append(b.covariates, name)
	}
	return b
}

// AddAlternative appends alternatives to the ordered choice set
func (b *Builder) AddAlternative(alts ...choice.AltID) *Builder {
	for _, alt := range alts {
		if b.altSet[alt] {
			return b.fail(errors.Newf(errors.CodeValidationError, "alternative %d declared twice", alt))
		}
		b.altSet[alt] = true
		b.alternatives = append(b.alternatives, alt)
	}
	return b
}

// AddParameter registers a parameter. Without Bounds it is unbounded.
func (b *Builder) AddParameter(name string, start float64, opts ...ParamOption) *Builder {
	p := Parameter{Name: name, Start: start, Lower: math.Inf(-1), Upper: math.Inf(1)}
	for _, opt := range opts {
		opt(&p)
	}
	if _, err := b.registry.Register(p.Name, p.Start, p.Lower, p.Upper, p.Fixed); err != nil {
		return b.fail(err)
	}
	return b
}

// AddUtilityTerm appends a term to one alternative's utility
func (b *Builder) AddUtilityTerm(alt choice.AltID, t Term) *Builder {
	if !b.altSet[alt] {
		return b.fail(errors.Wrapf(errors.ErrUnresolvedReference, "term %s references undeclared alternative %d", t, alt))
	}
	b.terms[alt] = append(b.terms[alt], t)
	return b
}

// AddCommonTerm appends the same term to every declared alternative
func (b *Builder) AddCommonTerm(t Term) *Builder {
	for _, alt := range b.alternatives {
		b.AddUtilityTerm(alt, t)
	}
	return b
}

// AddAlternativeConstants registers one constant per alternative, named
// prefix+alt, starting at start. Use FixIdentification to pick the
// reference alternatives.
func (b *Builder) AddAlternativeConstants(prefix string, start float64) *Builder {
	for _, alt := range b.alternatives {
		name := fmt.Sprintf("%s%d", prefix, alt)
		b.AddParameter(name, start)
		b.AddUtilityTerm(alt, Constant(name))
		b.constants[alt] = name
	}
	return b
}

// AddAlternativeSpecific registers one slope per alternative for covariate,
// named prefix+alt. Slopes of the reference alternatives are fixed to zero.
func (b *Builder) AddAlternativeSpecific(prefix, covariate string, start float64, reference ...choice.AltID) *Builder {
	ref := make(map[choice.AltID]bool, len(reference))
	for _, alt := range reference {
		ref[alt] = true
	}
	for _, alt := range b.alternatives {
		name := fmt.Sprintf("%s%d", prefix, alt)
		if ref[alt] {
			b.AddParameter(name, 0, Fixed())
		} else {
			b.AddParameter(name, start)
		}
		b.AddUtilityTerm(alt, Linear(name, covariate))
		b.coefficients[coefKey{alt: alt, covariate: covariate}] = name
	}
	return b
}

// AddAlternativeIndicator adds param * [covariate == alt] to every
// alternative, e.g. an inertia term on the previous choice.
func (b *Builder) AddAlternativeIndicator(param, covariate string) *Builder {
	for _, alt := range b.alternatives {
		b.AddUtilityTerm(alt, Indicator(param, covariate, float64(alt)))
	}
	return b
}

// AddRandomEffect adds mean + std * draw to the listed alternatives (all of
// them when none are listed). mean may be empty.
func (b *Builder) AddRandomEffect(draw, mean, std string, alts ...choice.AltID) *Builder {
	if len(alts) == 0 {
		alts = b.alternatives
	}
	for _, alt := range alts {
		b.AddUtilityTerm(alt, RandomEffect(mean, std, draw))
	}
	return b
}

// FixIdentification fixes the alternative constants of the given
// reference alternatives to zero.
func (b *Builder) FixIdentification(alts ...choice.AltID) *Builder {
	for _, alt := range alts {
		name, ok := b.constants[alt]
		if !ok {
			return b.fail(errors.Wrapf(errors.ErrUnresolvedReference, "no alternative constant declared for alternative %d", alt))
		}
		h, _ := b.registry.Lookup(name)
		b.registry.fix(h, 0)
	}
	return b
}

// Build validates every reference and returns the immutable specification
func (b *Builder) Build() (*Specification, error) {
	if b.err != nil {
		return nil, errors.Wrapf(b.err, "model %q", b.name)
	}
	if len(b.alternatives) < 2 {
		return nil, errors.Newf(errors.CodeValidationError, "model %q needs at least two alternatives", b.name)
	}

	spec := &Specification{
		name:         b.name,
		registry:     b.registry.Clone(),
		alternatives: append([]choice.AltID(nil), b.alternatives...),
		altIndex:     make(map[choice.AltID]int, len(b.alternatives)),
		covariates:   append([]string(nil), b.covariates...),
		covIndex:     make(map[string]int, len(b.covariates)),
		terms:        make([][]Term, len(b.alternatives)),
		utilities:    make([][]term, len(b.alternatives)),
		coefficients: make(map[coefKey]string, len(b.coefficients)),
	}
	for i, alt := range spec.alternatives {
		spec.altIndex[alt] = i
	}
	for i, name := range spec.covariates {
		spec.covIndex[name] = i
	}
	for k, v := range b.coefficients {
		spec.coefficients[k] = v
	}

	drawIndex := make(map[string]int)
	used := make(map[Handle]bool)
	for pos, alt := range spec.alternatives {
		for _, t := range b.terms[alt] {
			rt, err := spec.resolve(t, drawIndex)
			if err != nil {
				return nil, errors.Wrapf(err, "model %q alternative %d term %s", b.name, alt, t)
			}
			if rt.param >= 0 {
				used[rt.param] = true
			}
			if rt.std >= 0 {
				used[rt.std] = true
			}
			spec.terms[pos] = append(spec.terms[pos], t)
			spec.utilities[pos] = append(spec.utilities[pos], rt)
		}
	}

	if err := spec.checkIdentification(); err != nil {
		return nil, errors.Wrapf(err, "model %q", b.name)
	}
	spec.logDegenerateTerms(used)

	return spec, nil
}

func (s *Specification) resolve(t Term, drawIndex map[string]int) (term, error) {
	rt := term{kind: t.Kind, param: -1, std: -1, cov: -1, draw: -1, value: t.Value}

	lookupParam := func(name string) (Handle, error) {
		h, ok := s.registry.Lookup(name)
		if !ok {
			return -1, errors.Wrapf(errors.ErrUnresolvedReference, "unknown parameter %q", name)
		}
		return h, nil
	}
	lookupCov := func(name string) (int, error) {
		i, ok := s.covIndex[name]
		if !ok {
			return -1, errors.Wrapf(errors.ErrUnresolvedReference, "unknown covariate %q", name)
		}
		return i, nil
	}

	var err error
	switch t.Kind {
	case TermConstant:
		rt.param, err = lookupParam(t.Param)
	case TermLinear, TermIndicator:
		if rt.param, err = lookupParam(t.Param); err != nil {
			return rt, err
		}
		rt.cov, err = lookupCov(t.Covariate)
	case TermRandomEffect:
		if t.Draw == "" {
			return rt, errors.Wrap(errors.ErrUnresolvedReference, "random effect without a draw name")
		}
		if t.Param != "" {
			if rt.param, err = lookupParam(t.Param); err != nil {
				return rt, err
			}
		}
		if rt.std, err = lookupParam(t.StdParam); err != nil {
			return rt, err
		}
		if t.Covariate != "" {
			if rt.cov, err = lookupCov(t.Covariate); err != nil {
				return rt, err
			}
		}
		d, ok := drawIndex[t.Draw]
		if !ok {
			d = len(s.draws)
			drawIndex[t.Draw] = d
			s.draws = append(s.draws, t.Draw)
		}
		rt.draw = d
	default:
		return rt, errors.Wrapf(errors.ErrUnresolvedReference, "unknown term kind %q", t.Kind)
	}
	return rt, err
}

// checkIdentification rejects constants that cannot be identified: either
// every alternative carries a free constant, or one free constant enters
// every alternative.
func (s *Specification) checkIdentification() error {
	n := len(s.alternatives)
	altsWithFree := 0
	occurrences := make(map[Handle]int)
	for pos := range s.utilities {
		seen := make(map[Handle]bool)
		for _, t := range s.utilities[pos] {
			if t.kind != TermConstant || s.registry.Parameter(t.param).Fixed || seen[t.param] {
				continue
			}
			seen[t.param] = true
			occurrences[t.param]++
		}
		if len(seen) > 0 {
			altsWithFree++
		}
	}
	if altsWithFree == n {
		return errors.Wrap(errors.ErrNotIdentified,
			"every alternative has a free constant; fix the constant of at least one reference alternative")
	}
	for h, count := range occurrences {
		if count == n {
			return errors.Wrapf(errors.ErrNotIdentified, "constant %q enters every alternative", s.registry.Parameter(h).Name)
		}
	}
	return nil
}

// logDegenerateTerms reports free parameters that cannot move the
// likelihood: unused ones, and terms entering every utility identically.
func (s *Specification) logDegenerateTerms(used map[Handle]bool) {
	for i, p := range s.registry.params {
		if !p.Fixed && !used[Handle(i)] {
			log.Printf("[ModelBuilder] %s: parameter %q is not used by any utility", s.name, p.Name)
		}
	}
	counts := make(map[Term]int)
	for pos := range s.terms {
		seen := make(map[Term]bool)
		for _, t := range s.terms[pos] {
			if !seen[t] {
				seen[t] = true
				counts[t]++
			}
		}
	}
	for t, c := range counts {
		if c == len(s.alternatives) && t.Kind != TermConstant {
			log.Printf("[ModelBuilder] %s: term %s enters every alternative identically and cancels out", s.name, t)
		}
	}
}
