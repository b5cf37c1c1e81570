package likelihood

import (
	"math"
	"testing"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func TestSequenceLogLikelihood_SumsOccasions(t *testing.T) {
	spec := threeAltSpec(t, false)
	params := withValues(t, spec, map[string]float64{"ASC1": 0.4, "ASC3": -0.3, "b_x1": 1.1, "b_x3": -0.6})
	data := compileOne(t, spec, occasionsFor("p1", []choice.AltID{1, 3, 2, 1}, []float64{0.5, -1, 2, 0}))

	ll, err := SequenceLogLikelihood(spec, data.Groups()[0], params, nil, nil)
	require.NoError(t, err)

	want := 0.0
	for _, occ := range data.Groups()[0].Occasions {
		u := spec.Utilities(occ.Row, params, nil, nil)
		lp, err := LogProbability(u, occ.Avail, occ.Chosen)
		require.NoError(t, err)
		want += lp
	}
	assert.InDelta(t, want, ll, 1e-12)
}

func TestSimulatedLogLikelihood_SingleOccasionZeroVarianceIsLogit(t *testing.T) {
	spec := threeAltSpec(t, true)
	params := withValues(t, spec, map[string]float64{"ASC1": 0.7, "ASC3": -0.2, "b_x1": 0.3, "sigma": 0})
	data := compileOne(t, spec, occasionsFor("p1", []choice.AltID{3}, []float64{1.5}))
	draws, err := GenerateDraws(DrawPseudo, 1, 250, 1, 11)
	require.NoError(t, err)

	sim, err := SimulatedLogLikelihood(spec, data.Groups()[0], 0, params, draws, nil)
	require.NoError(t, err)

	occ := data.Groups()[0].Occasions[0]
	u := spec.Utilities(occ.Row, params, []float64{0}, nil)
	plain, err := LogProbability(u, occ.Avail, occ.Chosen)
	require.NoError(t, err)
	assert.InDelta(t, plain, sim, 1e-12)
}

func TestSimulatedLogLikelihood_Deterministic(t *testing.T) {
	spec := threeAltSpec(t, true)
	params := withValues(t, spec, map[string]float64{"ASC1": 0.2, "sigma": 1.3})
	data := compileOne(t, spec, occasionsFor("p1", []choice.AltID{1, 1, 2, 1}, []float64{0, 1, -1, 0.5}))

	eval := func() float64 {
		draws, err := GenerateDraws(DrawPseudo, 1, 500, 1, 2024)
		require.NoError(t, err)
		ll, err := SimulatedLogLikelihood(spec, data.Groups()[0], 0, params, draws, nil)
		require.NoError(t, err)
		return ll
	}
	first, second := eval(), eval()
	assert.Equal(t, math.Float64bits(first), math.Float64bits(second))
}

// integratedLogLikelihood integrates the panel likelihood over a standard
// normal intercept with a fine trapezoid rule
func integratedLogLikelihood(t *testing.T, data *Data, params []float64) float64 {
	t.Helper()
	spec := data.Spec()
	g := data.Groups()[0]
	const lo, hi, n = -9.0, 9.0, 6001
	h := (hi - lo) / (n - 1)
	total := 0.0
	for k := 0; k < n; k++ {
		w := lo + float64(k)*h
		ll, err := SequenceLogLikelihood(spec, g, params, []float64{w}, nil)
		require.NoError(t, err)
		f := math.Exp(ll) * math.Exp(-w*w/2) / math.Sqrt(2*math.Pi)
		if k == 0 || k == n-1 {
			f /= 2
		}
		total += f * h
	}
	return math.Log(total)
}

func TestSimulatedLogLikelihood_ConvergesToIntegral(t *testing.T) {
	spec := threeAltSpec(t, true)
	params := withValues(t, spec, map[string]float64{"ASC1": -0.2, "ASC3": 0.1, "b_x1": 0.5, "sigma": 1.5})
	data := compileOne(t, spec, occasionsFor("p1",
		[]choice.AltID{1, 1, 3, 1, 2}, []float64{0.2, -0.4, 1.0, 0.0, -1.2}))
	exact := integratedLogLikelihood(t, data, params)

	halton, err := GenerateDraws(DrawHalton, 1, 4000, 1, 0)
	require.NoError(t, err)
	ll, err := SimulatedLogLikelihood(spec, data.Groups()[0], 0, params, halton, nil)
	require.NoError(t, err)
	assert.InDelta(t, exact, ll, 5e-3, "halton")

	coarse, err := GenerateDraws(DrawHalton, 1, 20, 1, 0)
	require.NoError(t, err)
	llCoarse, err := SimulatedLogLikelihood(spec, data.Groups()[0], 0, params, coarse, nil)
	require.NoError(t, err)
	assert.Less(t, math.Abs(ll-exact), math.Abs(llCoarse-exact)+1e-9)

	pseudo, err := GenerateDraws(DrawPseudo, 1, 40000, 1, 99)
	require.NoError(t, err)
	ll, err = SimulatedLogLikelihood(spec, data.Groups()[0], 0, params, pseudo, nil)
	require.NoError(t, err)
	assert.InDelta(t, exact, ll, 5e-2, "pseudo")
}

func TestSimulatedLogLikelihood_GradientMatchesFiniteDifference(t *testing.T) {
	spec := threeAltSpec(t, true)
	params := withValues(t, spec, map[string]float64{"ASC1": 0.3, "ASC3": -0.4, "b_x1": 0.8, "b_x3": -0.2, "sigma": 0.9})
	data := compileOne(t, spec, occasionsFor("p1", []choice.AltID{1, 3, 1, 2}, []float64{0.3, -0.7, 1.1, 0.4}))
	draws, err := GenerateDraws(DrawHalton, 1, 300, 1, 0)
	require.NoError(t, err)
	g := data.Groups()[0]

	grad := make([]float64, len(params))
	_, err = SimulatedLogLikelihood(spec, g, 0, params, draws, grad)
	require.NoError(t, err)

	numeric := fd.Gradient(nil, func(x []float64) float64 {
		ll, err := SimulatedLogLikelihood(spec, g, 0, x, draws, nil)
		require.NoError(t, err)
		return ll
	}, params, &fd.Settings{Formula: fd.Central})

	names := spec.Registry().Parameters()
	for k := range grad {
		assert.InDelta(t, numeric[k], grad[k], 1e-6, names[k].Name)
	}
}

func TestSimulatedLogLikelihood_Inputs(t *testing.T) {
	spec := threeAltSpec(t, true)
	data := compileOne(t, spec, occasionsFor("p1", []choice.AltID{1}, []float64{0}))
	params := spec.StartValues()

	_, err := SimulatedLogLikelihood(spec, data.Groups()[0], 0, params, nil, nil)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = SimulatedLogLikelihood(spec, data.Groups()[0], 0, params[:1], nil, nil)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = SimulatedLogLikelihood(spec, Group{IndividualID: "empty"}, 0, params, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrDataInvalid))
}
