package dataset

import (
	"fmt"
	"log"
	"math"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"
)

// PanelSpec names the columns that make up a panel
type PanelSpec struct {
	IDColumn string
	// OccasionColumn orders each individual's records; row order is used
	// when empty.
	OccasionColumn string
	ChoiceColumn   string
	Alternatives   []choice.AltID
	Covariates     []string
	// AvailabilityPrefix marks per-alternative availability columns, e.g.
	// "av" for av1..av6. Missing columns mean available.
	AvailabilityPrefix string
	// MissingAsZero reads empty or unparsable covariate cells as 0.
	MissingAsZero bool
}

// Zones are the six goal zones of a penalty shot
var Zones = []choice.AltID{1, 2, 3, 4, 5, 6}

// DefaultPanelSpec returns the column layout of the prepared shot data
func DefaultPanelSpec(covariates ...string) PanelSpec {
	return PanelSpec{
		IDColumn:           "ID",
		ChoiceColumn:       "Choice",
		Alternatives:       Zones,
		Covariates:         covariates,
		AvailabilityPrefix: "av",
	}
}

// BuildPanel converts table rows into a validated panel
func BuildPanel(t *RawTable, spec PanelSpec) (*choice.Panel, error) {
	if len(spec.Alternatives) < 2 {
		return nil, errors.InvalidInput("panel needs at least two alternatives")
	}
	for _, col := range []string{spec.IDColumn, spec.ChoiceColumn} {
		if col == "" || !t.HasColumn(col) {
			return nil, errors.Wrapf(errors.ErrDataInvalid, "column %q not found", col)
		}
	}
	for _, col := range spec.Covariates {
		if !t.HasColumn(col) {
			return nil, errors.Wrapf(errors.ErrDataInvalid, "covariate column %q not found", col)
		}
	}
	if spec.OccasionColumn != "" && !t.HasColumn(spec.OccasionColumn) {
		return nil, errors.Wrapf(errors.ErrDataInvalid, "occasion column %q not found", spec.OccasionColumn)
	}

	avCols := make(map[choice.AltID]string)
	if spec.AvailabilityPrefix != "" {
		for _, alt := range spec.Alternatives {
			col := fmt.Sprintf("%s%d", spec.AvailabilityPrefix, alt)
			if t.HasColumn(col) {
				avCols[alt] = col
			}
		}
	}

	counts := make(map[string]int)
	observations := make([]choice.Observation, 0, t.Len())
	for i, row := range t.Rows {
		id := row[spec.IDColumn]
		if id == "" {
			return nil, errors.Wrapf(errors.ErrDataInvalid, "row %d has an empty %q", i+1, spec.IDColumn)
		}
		occasion := counts[id]
		counts[id]++
		if spec.OccasionColumn != "" {
			v, ok := parseNumber(row[spec.OccasionColumn])
			if !ok {
				return nil, errors.DataError(nil, id, occasion, "occasion %q is not a number", row[spec.OccasionColumn])
			}
			occasion = int(v)
		}

		chosen, ok := parseNumber(row[spec.ChoiceColumn])
		if !ok || chosen != math.Trunc(chosen) {
			return nil, errors.DataError(nil, id, occasion, "choice %q is not an alternative id", row[spec.ChoiceColumn])
		}

		covariates := make(map[string]float64, len(spec.Covariates))
		for _, col := range spec.Covariates {
			v, ok := parseNumber(row[col])
			if !ok {
				if !spec.MissingAsZero {
					return nil, errors.DataError(nil, id, occasion, "covariate %q has no numeric value (%q)", col, row[col])
				}
				v = 0
			}
			covariates[col] = v
		}

		var availability map[choice.AltID]bool
		if len(avCols) > 0 {
			availability = make(map[choice.AltID]bool, len(avCols))
			for alt, col := range avCols {
				v, ok := parseNumber(row[col])
				availability[alt] = !ok || v != 0
			}
		}

		observations = append(observations, choice.Observation{
			IndividualID: id,
			Occasion:     occasion,
			Alternatives: spec.Alternatives,
			Covariates:   covariates,
			Chosen:       choice.AltID(chosen),
			Availability: availability,
		})
	}

	panel := choice.NewPanel(observations)
	if err := panel.Validate(spec.Covariates); err != nil {
		return nil, err
	}
	log.Printf("[Dataset] panel built: %d individuals, %d occasions", panel.NumGroups(), panel.NumObservations())
	return panel, nil
}

// LongFormat expands every record into one row per alternative with "alt"
// and "chosen" columns
func LongFormat(t *RawTable, choiceCol string, alts []choice.AltID) (*RawTable, error) {
	if !t.HasColumn(choiceCol) {
		return nil, errors.Wrapf(errors.ErrDataInvalid, "column %q not found", choiceCol)
	}
	out := &RawTable{Headers: append(append([]string(nil), t.Headers...), "alt", "chosen")}
	out.Rows = make([]Row, 0, t.Len()*len(alts))
	for _, row := range t.Rows {
		chosen, ok := parseNumber(row[choiceCol])
		for _, alt := range alts {
			next := make(Row, len(out.Headers))
			for k, v := range row {
				next[k] = v
			}
			next["alt"] = alt.String()
			if ok && chosen == float64(alt) {
				next["chosen"] = "1"
			} else {
				next["chosen"] = "0"
			}
			out.Rows = append(out.Rows, next)
		}
	}
	return out, nil
}
