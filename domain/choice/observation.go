package choice

import (
	"fmt"
	"math"
	"sort"

	"kickchoice/internal/errors"
)

// AltID identifies an alternative within a choice set
type AltID int

func (a AltID) String() string {
	return fmt.Sprintf("%d", int(a))
}

// Observation is one choice occasion of one individual
type Observation struct {
	IndividualID string             `json:"individual_id"`
	Occasion     int                `json:"occasion"`
	Alternatives []AltID            `json:"alternatives"`
	Covariates   map[string]float64 `json:"covariates"`
	Chosen       AltID              `json:"chosen"`
	// Availability may be nil, in which case every alternative is available.
	Availability map[AltID]bool `json:"availability,omitempty"`
}

// Offers reports whether alt is part of the observation's alternative set
func (o Observation) Offers(alt AltID) bool {
	for _, a := range o.Alternatives {
		if a == alt {
			return true
		}
	}
	return false
}

// Available reports whether alt is offered and available on this occasion
func (o Observation) Available(alt AltID) bool {
	if !o.Offers(alt) {
		return false
	}
	if o.Availability == nil {
		return true
	}
	av, ok := o.Availability[alt]
	if !ok {
		return true
	}
	return av
}

// Validate checks the record-level invariants. occasion is the position of
// the record inside its panel group and is only used for error reporting.
func (o Observation) Validate(occasion int, covariates []string) error {
	if len(o.Alternatives) == 0 {
		return errors.DataError(errors.ErrNoAvailableAlternatives, o.IndividualID, occasion, "empty alternative set")
	}
	if !o.Offers(o.Chosen) {
		return errors.DataError(errors.ErrChosenNotAvailable, o.IndividualID, occasion,
			"chosen alternative %d is not in the alternative set %v", o.Chosen, o.Alternatives)
	}
	if !o.Available(o.Chosen) {
		return errors.DataError(errors.ErrChosenNotAvailable, o.IndividualID, occasion,
			"chosen alternative %d is not available", o.Chosen)
	}
	for _, name := range covariates {
		v, ok := o.Covariates[name]
		if !ok {
			return errors.DataError(nil, o.IndividualID, occasion, "missing covariate %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.DataError(nil, o.IndividualID, occasion, "covariate %q is not finite (%v)", name, v)
		}
	}
	return nil
}

// PanelGroup is the ordered sequence of occasions of one individual
type PanelGroup struct {
	IndividualID string        `json:"individual_id"`
	Observations []Observation `json:"observations"`
}

// Len returns the number of occasions in the group
func (g PanelGroup) Len() int {
	return len(g.Observations)
}

// Panel is a set of panel groups. Group order is the order of first
// appearance of each individual and is the fixed summation order of the
// likelihood.
type Panel struct {
	Groups []PanelGroup `json:"groups"`
}

// NewPanel groups observations by individual, keeping individuals in order
// of first appearance and sorting each group by occasion (stable, so equal
// occasions keep their input order).
func NewPanel(observations []Observation) *Panel {
	index := make(map[string]int)
	panel := &Panel{}
	for _, obs := range observations {
		gi, ok := index[obs.IndividualID]
		if !ok {
			gi = len(panel.Groups)
			index[obs.IndividualID] = gi
			panel.Groups = append(panel.Groups, PanelGroup{IndividualID: obs.IndividualID})
		}
		panel.Groups[gi].Observations = append(panel.Groups[gi].Observations, obs)
	}
	for gi := range panel.Groups {
		obs := panel.Groups[gi].Observations
		sort.SliceStable(obs, func(i, j int) bool { return obs[i].Occasion < obs[j].Occasion })
	}
	return panel
}

// CrossSection treats every observation as its own individual. Used to fit
// pooled models that ignore the panel structure. Each record is relabelled
// "<id>#<position>" so that it belongs to its own group.
func CrossSection(observations []Observation) *Panel {
	panel := &Panel{Groups: make([]PanelGroup, len(observations))}
	for i, obs := range observations {
		obs.IndividualID = fmt.Sprintf("%s#%d", obs.IndividualID, i)
		panel.Groups[i] = PanelGroup{
			IndividualID: obs.IndividualID,
			Observations: []Observation{obs},
		}
	}
	return panel
}

// NumGroups returns the number of individuals
func (p *Panel) NumGroups() int {
	return len(p.Groups)
}

// NumObservations returns the total number of occasions
func (p *Panel) NumObservations() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Observations)
	}
	return n
}

// Observations flattens the panel back into occasion records
func (p *Panel) Observations() []Observation {
	out := make([]Observation, 0, p.NumObservations())
	for _, g := range p.Groups {
		out = append(out, g.Observations...)
	}
	return out
}

// Validate checks every group and record, stopping at the first error.
// covariates lists the columns every record must carry.
func (p *Panel) Validate(covariates []string) error {
	if len(p.Groups) == 0 {
		return errors.Wrap(errors.ErrDataInvalid, "panel has no groups")
	}
	seen := make(map[string]bool, len(p.Groups))
	for _, g := range p.Groups {
		if seen[g.IndividualID] {
			return errors.DataError(nil, g.IndividualID, 0, "individual appears in more than one group")
		}
		seen[g.IndividualID] = true
		if len(g.Observations) == 0 {
			return errors.DataError(nil, g.IndividualID, 0, "empty panel group")
		}
		for i, obs := range g.Observations {
			if obs.IndividualID != g.IndividualID {
				return errors.DataError(nil, g.IndividualID, i, "record belongs to individual %q", obs.IndividualID)
			}
			if err := obs.Validate(i, covariates); err != nil {
				return err
			}
		}
	}
	return nil
}
