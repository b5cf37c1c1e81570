package model

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"

	"gopkg.in/yaml.v3"
)

// ParameterDef is the serializable form of a Parameter. Absent bounds mean
// unbounded.
type ParameterDef struct {
	Name  string   `json:"name" yaml:"name"`
	Start float64  `json:"start" yaml:"start"`
	Lower *float64 `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty" yaml:"upper,omitempty"`
	Fixed bool     `json:"fixed,omitempty" yaml:"fixed,omitempty"`
}

// AlternativeDef lists the utility terms of one alternative
type AlternativeDef struct {
	ID    choice.AltID `json:"id" yaml:"id"`
	Terms []Term       `json:"terms" yaml:"terms"`
}

// Definition is a complete, serializable model description
type Definition struct {
	Name         string           `json:"name" yaml:"name"`
	Covariates   []string         `json:"covariates" yaml:"covariates"`
	Parameters   []ParameterDef   `json:"parameters" yaml:"parameters"`
	Alternatives []AlternativeDef `json:"alternatives" yaml:"alternatives"`
}

// FromDefinition builds and validates a specification
func FromDefinition(def Definition) (*Specification, error) {
	b := NewBuilder(def.Name).WithCovariates(def.Covariates...)
	for _, alt := range def.Alternatives {
		b.AddAlternative(alt.ID)
	}
	for _, p := range def.Parameters {
		opts := []ParamOption{}
		lower, upper := math.Inf(-1), math.Inf(1)
		if p.Lower != nil {
			lower = *p.Lower
		}
		if p.Upper != nil {
			upper = *p.Upper
		}
		opts = append(opts, Bounds(lower, upper))
		if p.Fixed {
			opts = append(opts, Fixed())
		}
		b.AddParameter(p.Name, p.Start, opts...)
	}
	for _, alt := range def.Alternatives {
		for _, t := range alt.Terms {
			b.AddUtilityTerm(alt.ID, t)
		}
	}
	return b.Build()
}

// Definition returns the serializable form of the specification
func (s *Specification) Definition() Definition {
	def := Definition{
		Name:       s.name,
		Covariates: s.Covariates(),
	}
	for _, p := range s.registry.params {
		pd := ParameterDef{Name: p.Name, Start: p.Start, Fixed: p.Fixed}
		if !math.IsInf(p.Lower, -1) {
			lo := p.Lower
			pd.Lower = &lo
		}
		if !math.IsInf(p.Upper, 1) {
			hi := p.Upper
			pd.Upper = &hi
		}
		def.Parameters = append(def.Parameters, pd)
	}
	for pos, alt := range s.alternatives {
		def.Alternatives = append(def.Alternatives, AlternativeDef{ID: alt, Terms: append([]Term(nil), s.terms[pos]...)})
	}
	return def
}

// ParseDefinition decodes a definition; format is "json" or "yaml"
func ParseDefinition(data []byte, format string) (Definition, error) {
	var def Definition
	var err error
	switch strings.ToLower(format) {
	case "json":
		err = json.Unmarshal(data, &def)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &def)
	default:
		return def, errors.Newf(errors.CodeInvalidInput, "unsupported model definition format %q", format)
	}
	if err != nil {
		return def, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to decode %s model definition", format)
	}
	return def, nil
}

// LoadDefinition reads a .json, .yaml or .yml model file
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, errors.Wrapf(err, "failed to read model definition %s", path)
	}
	return ParseDefinition(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Fingerprint returns the canonical JSON encoding used for run fingerprints
func (d Definition) Fingerprint() []byte {
	data, err := json.Marshal(d)
	if err != nil {
		return []byte(d.Name)
	}
	return data
}
