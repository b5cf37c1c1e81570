// Package penalty holds the penalty-kick zone-choice models: the six goal
// zones and the named model variants that can be estimated on shot data.
package penalty

import (
	"fmt"
	"sort"

	"kickchoice/domain/choice"
	"kickchoice/internal/dataset"
	"kickchoice/internal/errors"
	"kickchoice/internal/model"
)

// Goal zones as seen by the shooter
const (
	TopLeft      choice.AltID = 1
	TopCentre    choice.AltID = 2
	TopRight     choice.AltID = 3
	BottomLeft   choice.AltID = 4
	BottomCentre choice.AltID = 5
	BottomRight  choice.AltID = 6
)

var zoneNames = map[choice.AltID]string{
	TopLeft:      "top-left",
	TopCentre:    "top-centre",
	TopRight:     "top-right",
	BottomLeft:   "bottom-left",
	BottomCentre: "bottom-centre",
	BottomRight:  "bottom-right",
}

// ZoneName returns the readable name of a zone
func ZoneName(alt choice.AltID) string {
	if name, ok := zoneNames[alt]; ok {
		return name
	}
	return fmt.Sprintf("zone %d", alt)
}

// Column names of the prepared shot data
const (
	ColumnID         = "ID"
	ColumnChoice     = "Choice"
	ColumnPrevChoice = "prev_choice"
)

// Variant is one named model of the zone choice together with the data
// preparation it expects
type Variant struct {
	Name        string
	Description string
	// Covariates lists the columns the utilities read.
	Covariates []string
	// Standardize lists covariates z-scored before estimation.
	Standardize []string
	// Panel estimates with one group per shooter; otherwise every shot is
	// its own group.
	Panel bool
	// Lag derives prev_choice from the shooter's previous shot.
	Lag bool
	// MissingAsZero reads empty covariate cells as 0.
	MissingAsZero bool

	build      func(b *model.Builder)
	definition *model.Definition
}

// Custom wraps a user-supplied model definition. The shots are grouped by
// shooter when panel is set, and prev_choice is derived when the
// definition reads it.
func Custom(def model.Definition, panel bool) Variant {
	v := Variant{
		Name:          def.Name,
		Description:   "User-supplied model definition",
		Covariates:    def.Covariates,
		Panel:         panel,
		MissingAsZero: true,
		definition:    &def,
	}
	for _, c := range def.Covariates {
		if c == ColumnPrevChoice {
			v.Lag = true
		}
	}
	return v
}

// Specification builds a fresh model for the variant
func (v Variant) Specification() (*model.Specification, error) {
	if v.definition != nil {
		return model.FromDefinition(*v.definition)
	}
	b := model.NewBuilder(v.Name).WithCovariates(v.Covariates...).AddAlternative(dataset.Zones...)
	v.build(b)
	return b.Build()
}

// Prepared is shot data ready for estimation
type Prepared struct {
	Panel    *choice.Panel
	Scalings []dataset.Scaling
}

// Prepare derives the variant's columns on t and builds its panel. t is
// modified in place.
func (v Variant) Prepare(t *dataset.RawTable) (*Prepared, error) {
	if !t.HasColumn(ColumnID) {
		if v.Panel {
			return nil, errors.Wrapf(errors.ErrDataInvalid, "model %s needs a %q column identifying the shooter", v.Name, ColumnID)
		}
		t.Headers = append(t.Headers, ColumnID)
		for i, row := range t.Rows {
			row[ColumnID] = fmt.Sprintf("shot_%05d", i+1)
		}
	}
	if v.Lag {
		if err := dataset.AddLag(t, ColumnID, "", ColumnChoice, ColumnPrevChoice); err != nil {
			return nil, err
		}
	}
	if v.MissingAsZero {
		dataset.FillMissing(t, "0", v.Standardize...)
	}
	scalings, err := dataset.Standardize(t, v.Standardize...)
	if err != nil {
		return nil, err
	}

	spec := dataset.DefaultPanelSpec(v.Covariates...)
	spec.MissingAsZero = v.MissingAsZero
	panel, err := dataset.BuildPanel(t, spec)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", v.Name)
	}
	if !v.Panel {
		panel = choice.CrossSection(panel.Observations())
	}
	return &Prepared{Panel: panel, Scalings: scalings}, nil
}

var variants = map[string]Variant{
	"asc_only": {
		Name:        "asc_only",
		Description: "Zone constants only, top-centre and bottom-centre as references",
		build: func(b *model.Builder) {
			b.AddAlternativeConstants("ASC", 0).FixIdentification(TopCentre, BottomCentre)
		},
	},
	"asc_and_covariates": {
		Name:        "asc_and_covariates",
		Description: "Zone constants with zone-specific slopes on shooting foot and age",
		Covariates:  []string{"foot_R", "age"},
		build: func(b *model.Builder) {
			b.AddAlternativeConstants("ASC", 0).FixIdentification(TopCentre, BottomCentre)
			b.AddAlternativeSpecific("B_foot", "foot_R", 0, TopCentre, BottomCentre)
			b.AddAlternativeSpecific("B_age", "age", 0, TopCentre, BottomCentre)
		},
	},
	"panel_logit_alt_specific": {
		Name:          "panel_logit_alt_specific",
		Description:   "Panel mixed logit with inertia on the previous zone and a shooter random intercept on the top row",
		Covariates:    []string{"foot", "moveGK", ColumnPrevChoice, "perc1", "perc2", "perc3", "perc4", "perc5", "perc6"},
		Standardize:   []string{"foot", "moveGK"},
		Panel:         true,
		Lag:           true,
		MissingAsZero: true,
		build: func(b *model.Builder) {
			b.AddAlternativeConstants("ASC", 0).FixIdentification(TopCentre, BottomCentre)
			b.AddAlternativeSpecific("b_foot", "foot", 0.5, TopCentre, BottomCentre)
			b.AddParameter("g_MOVE", 0.5)
			for _, alt := range []choice.AltID{TopLeft, TopRight, BottomLeft, BottomRight} {
				b.AddUtilityTerm(alt, model.Linear("g_MOVE", "moveGK"))
			}
			for _, alt := range dataset.Zones {
				name := fmt.Sprintf("b_perc%d", alt)
				if alt == TopCentre || alt == BottomCentre {
					b.AddParameter(name, 0, model.Fixed())
				} else {
					b.AddParameter(name, 0.5)
				}
				b.AddUtilityTerm(alt, model.Linear(name, fmt.Sprintf("perc%d", alt)))
			}
			b.AddParameter("alpha", 0)
			b.AddAlternativeIndicator("alpha", ColumnPrevChoice)
			b.AddParameter("sigma_i", 0.5, model.Bounds(0, 5))
			b.AddRandomEffect("omega", "", "sigma_i", TopLeft, TopCentre, TopRight)
		},
	},
}

// Lookup returns the variant registered under name
func Lookup(name string) (Variant, error) {
	v, ok := variants[name]
	if !ok {
		return Variant{}, errors.Wrapf(errors.ErrNotFound, "unknown model %q (available: %v)", name, Names())
	}
	return v, nil
}

// Names lists the registered variants in alphabetical order
func Names() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
