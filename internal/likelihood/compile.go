package likelihood

import (
	"math"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"
	"kickchoice/internal/model"
)

// Occasion is one choice record aligned with a specification: the covariate
// row follows the covariate schema, availability and the chosen index follow
// the alternative order.
type Occasion struct {
	Row    []float64
	Avail  []bool
	Chosen int
}

// Group is the compiled sequence of one individual's occasions
type Group struct {
	IndividualID string
	Occasions    []Occasion
}

// Data is a panel compiled against one specification. It is read-only
// after Compile and shared by every objective evaluation of a run.
type Data struct {
	spec   *model.Specification
	groups []Group
	numObs int
}

// Compile validates the panel against the specification and converts every
// record into dense form. The first offending record aborts compilation.
func Compile(spec *model.Specification, panel *choice.Panel) (*Data, error) {
	if err := panel.Validate(spec.Covariates()); err != nil {
		return nil, err
	}

	alts := spec.Alternatives()
	data := &Data{spec: spec, groups: make([]Group, 0, panel.NumGroups())}
	for _, g := range panel.Groups {
		group := Group{IndividualID: g.IndividualID, Occasions: make([]Occasion, 0, len(g.Observations))}
		for i, obs := range g.Observations {
			for _, alt := range obs.Alternatives {
				if _, ok := spec.AltIndex(alt); !ok {
					return nil, errors.DataError(errors.ErrUnresolvedReference, g.IndividualID, i,
						"alternative %d is not part of model %q", alt, spec.Name())
				}
			}

			row, err := spec.Row(obs.Covariates)
			if err != nil {
				return nil, errors.DataError(err, g.IndividualID, i, "covariates do not match the model schema")
			}

			occ := Occasion{Row: row, Avail: make([]bool, len(alts)), Chosen: -1}
			available := 0
			for j, alt := range alts {
				occ.Avail[j] = obs.Available(alt)
				if occ.Avail[j] {
					available++
				}
				if alt == obs.Chosen {
					occ.Chosen = j
				}
			}
			if available == 0 {
				return nil, errors.DataError(errors.ErrNoAvailableAlternatives, g.IndividualID, i, "no alternative is available")
			}
			if occ.Chosen < 0 || !occ.Avail[occ.Chosen] {
				return nil, errors.DataError(errors.ErrChosenNotAvailable, g.IndividualID, i,
					"chosen alternative %d is not available", obs.Chosen)
			}
			group.Occasions = append(group.Occasions, occ)
			data.numObs++
		}
		data.groups = append(data.groups, group)
	}
	return data, nil
}

// Spec returns the specification the data was compiled against
func (d *Data) Spec() *model.Specification {
	return d.spec
}

// Groups returns the compiled groups in panel order
func (d *Data) Groups() []Group {
	return d.groups
}

// NumGroups returns the number of independent likelihood contributions
func (d *Data) NumGroups() int {
	return len(d.groups)
}

// NumObservations returns the number of choice occasions
func (d *Data) NumObservations() int {
	return d.numObs
}

// NullLogLikelihood is the log-likelihood of equal shares over the
// available alternatives of every occasion
func (d *Data) NullLogLikelihood() float64 {
	ll := 0.0
	for _, g := range d.groups {
		for _, occ := range g.Occasions {
			n := 0
			for _, av := range occ.Avail {
				if av {
					n++
				}
			}
			ll -= math.Log(float64(n))
		}
	}
	return ll
}
