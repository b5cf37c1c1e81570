package penalty

import (
	"fmt"
	"testing"

	"kickchoice/domain/choice"
	"kickchoice/internal/dataset"
	"kickchoice/internal/errors"
	"kickchoice/internal/likelihood"
	"kickchoice/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariants_Build(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			v, err := Lookup(name)
			require.NoError(t, err)
			spec, err := v.Specification()
			require.NoError(t, err)
			assert.Equal(t, name, spec.Name())
			assert.Equal(t, dataset.Zones, spec.Alternatives())

			reg := spec.Registry()
			for _, ref := range []string{"ASC2", "ASC5"} {
				h, ok := reg.Lookup(ref)
				require.True(t, ok)
				assert.True(t, reg.Parameter(h).Fixed, ref)
			}
		})
	}
}

func TestPanelVariant_Structure(t *testing.T) {
	v, err := Lookup("panel_logit_alt_specific")
	require.NoError(t, err)
	spec, err := v.Specification()
	require.NoError(t, err)

	assert.True(t, spec.HasRandomEffects())
	assert.Equal(t, []string{"omega"}, spec.DrawNames())

	reg := spec.Registry()
	h, ok := reg.Lookup("sigma_i")
	require.True(t, ok)
	p := reg.Parameter(h)
	assert.Equal(t, 0.5, p.Start)
	assert.Equal(t, 0.0, p.Lower)
	assert.Equal(t, 5.0, p.Upper)

	for _, name := range []string{"b_foot2", "b_foot5", "b_perc2", "b_perc5"} {
		h, ok := reg.Lookup(name)
		require.True(t, ok, name)
		assert.True(t, reg.Parameter(h).Fixed, name)
	}
	// 4 ASCs, 4 foot, g_MOVE, 4 perc, alpha, sigma
	assert.Equal(t, 15, reg.NumFree())

	row, err := spec.Row(map[string]float64{
		"foot": 0, "moveGK": 0, ColumnPrevChoice: 3,
		"perc1": 0, "perc2": 0, "perc3": 0, "perc4": 0, "perc5": 0, "perc6": 0,
	})
	require.NoError(t, err)
	params := reg.Values()
	ha, _ := reg.Lookup("alpha")
	params[ha] = 1.5
	u3, err := spec.Evaluate(TopRight, row, params, []float64{0})
	require.NoError(t, err)
	u4, err := spec.Evaluate(BottomLeft, row, params, []float64{0})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, u3-u4, 1e-12)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("nested_logit")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestZoneName(t *testing.T) {
	assert.Equal(t, "top-left", ZoneName(TopLeft))
	assert.Equal(t, "bottom-centre", ZoneName(BottomCentre))
	assert.Equal(t, "zone 9", ZoneName(9))
}

func TestPrepare_Panel(t *testing.T) {
	headers := []string{"ID", "Choice", "foot", "moveGK", "perc1", "perc2", "perc3", "perc4", "perc5", "perc6"}
	var records [][]string
	for i := 0; i < 6; i++ {
		records = append(records, []string{
			fmt.Sprintf("s%d", i%2), fmt.Sprintf("%d", i+1), fmt.Sprintf("%d", i%2), "",
			"0.1", "0.2", "0.1", "0.3", "0.2", "0.1",
		})
	}
	table := dataset.NewRawTable(headers, records)

	v, err := Lookup("panel_logit_alt_specific")
	require.NoError(t, err)
	prepared, err := v.Prepare(table)
	require.NoError(t, err)

	panel := prepared.Panel
	assert.Equal(t, 2, panel.NumGroups())
	assert.Equal(t, 6, panel.NumObservations())
	s0 := panel.Groups[0].Observations
	assert.Equal(t, 0.0, s0[0].Covariates[ColumnPrevChoice])
	assert.Equal(t, 1.0, s0[1].Covariates[ColumnPrevChoice])
	assert.Equal(t, 3.0, s0[2].Covariates[ColumnPrevChoice])
	assert.Equal(t, 0.0, s0[0].Covariates["moveGK"])

	require.Len(t, prepared.Scalings, 2)
	assert.InDelta(t, 0.5, prepared.Scalings[0].Mean, 1e-12)

	spec, err := v.Specification()
	require.NoError(t, err)
	assert.NoError(t, panel.Validate(spec.Covariates()))
}

func TestPrepare_CrossSection(t *testing.T) {
	table := dataset.NewRawTable([]string{"Choice", "foot_R", "age"}, [][]string{
		{"1", "1", "24"}, {"3", "0", "30"}, {"6", "1", "27"},
	})
	v, err := Lookup("asc_and_covariates")
	require.NoError(t, err)
	prepared, err := v.Prepare(table)
	require.NoError(t, err)
	assert.Equal(t, 3, prepared.Panel.NumGroups())
	assert.Equal(t, choice.AltID(6), prepared.Panel.Groups[2].Observations[0].Chosen)

	spec, err := v.Specification()
	require.NoError(t, err)
	require.NoError(t, prepared.Panel.Validate(spec.Covariates()))
	data, err := likelihood.Compile(spec, prepared.Panel)
	require.NoError(t, err)
	assert.Equal(t, 3, data.NumGroups())
	assert.Equal(t, 3, data.NumObservations())

	panelVariant, err := Lookup("panel_logit_alt_specific")
	require.NoError(t, err)
	_, err = panelVariant.Prepare(dataset.NewRawTable([]string{"Choice"}, [][]string{{"1"}}))
	assert.True(t, errors.Is(err, errors.ErrDataInvalid))
}

func TestCustom_FromDefinition(t *testing.T) {
	base, err := Lookup("panel_logit_alt_specific")
	require.NoError(t, err)
	spec, err := base.Specification()
	require.NoError(t, err)

	def := spec.Definition()
	def.Name = "custom_panel"
	v := Custom(def, true)
	assert.True(t, v.Lag)
	assert.True(t, v.Panel)

	custom, err := v.Specification()
	require.NoError(t, err)
	assert.Equal(t, "custom_panel", custom.Name())
	assert.Equal(t, spec.NumParameters(), custom.NumParameters())
	assert.Equal(t, spec.Registry().NumFree(), custom.Registry().NumFree())

	noLag := Custom(model.Definition{Name: "plain", Covariates: []string{"foot_R"}}, false)
	assert.False(t, noLag.Lag)
}
