package likelihood

import (
	"testing"

	"kickchoice/domain/choice"
	"kickchoice/internal/model"

	"github.com/stretchr/testify/require"
)

// threeAltSpec has ASC1/ASC3 free, a slope on x for alternatives 1 and 3 and,
// optionally, a random intercept on alternative 1
func threeAltSpec(t *testing.T, random bool) *model.Specification {
	t.Helper()
	b := model.NewBuilder("three_alt").
		WithCovariates("x").
		AddAlternative(1, 2, 3).
		AddAlternativeConstants("ASC", 0).
		FixIdentification(2).
		AddAlternativeSpecific("b_x", "x", 0, 2)
	if random {
		b.AddParameter("sigma", 1, model.Bounds(0, 5)).
			AddRandomEffect("omega", "", "sigma", 1)
	}
	spec, err := b.Build()
	require.NoError(t, err)
	return spec
}

func withValues(t *testing.T, spec *model.Specification, values map[string]float64) []float64 {
	t.Helper()
	reg := spec.Registry()
	params := reg.Values()
	for name, v := range values {
		h, ok := reg.Lookup(name)
		require.True(t, ok, name)
		params[h] = v
	}
	return params
}

func occasionsFor(id string, chosen []choice.AltID, xs []float64) []choice.Observation {
	var out []choice.Observation
	for i, c := range chosen {
		out = append(out, choice.Observation{
			IndividualID: id,
			Occasion:     i,
			Alternatives: []choice.AltID{1, 2, 3},
			Covariates:   map[string]float64{"x": xs[i]},
			Chosen:       c,
		})
	}
	return out
}

func compileOne(t *testing.T, spec *model.Specification, obs []choice.Observation) *Data {
	t.Helper()
	data, err := Compile(spec, choice.NewPanel(obs))
	require.NoError(t, err)
	return data
}
