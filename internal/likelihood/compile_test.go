package likelihood

import (
	"math"
	"testing"

	"kickchoice/domain/choice"
	"kickchoice/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_DenseLayout(t *testing.T) {
	spec := threeAltSpec(t, false)
	obs := occasionsFor("p1", []choice.AltID{3, 1}, []float64{0.5, -1})
	obs[1].Availability = map[choice.AltID]bool{2: false}
	obs = append(obs, occasionsFor("p2", []choice.AltID{2}, []float64{0})...)

	data, err := Compile(spec, choice.NewPanel(obs))
	require.NoError(t, err)
	assert.Equal(t, 2, data.NumGroups())
	assert.Equal(t, 3, data.NumObservations())

	first := data.Groups()[0]
	assert.Equal(t, "p1", first.IndividualID)
	assert.Equal(t, 2, first.Occasions[0].Chosen)
	assert.Equal(t, []float64{0.5}, first.Occasions[0].Row)
	assert.Equal(t, []bool{true, false, true}, first.Occasions[1].Avail)

	// ln(1/3) + ln(1/2) + ln(1/3)
	assert.InDelta(t, 2*math.Log(1.0/3)+math.Log(0.5), data.NullLogLikelihood(), 1e-12)
}

func TestCompile_DataErrors(t *testing.T) {
	spec := threeAltSpec(t, false)

	t.Run("chosen not available", func(t *testing.T) {
		obs := occasionsFor("shooter_7", []choice.AltID{1, 2}, []float64{0, 0})
		obs[1].Availability = map[choice.AltID]bool{2: false}
		_, err := Compile(spec, choice.NewPanel(obs))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrChosenNotAvailable))
		assert.True(t, errors.Is(err, errors.ErrDataInvalid))
		assert.Contains(t, err.Error(), "shooter_7")
		assert.Contains(t, err.Error(), "occasion 1")
	})

	t.Run("non-finite covariate", func(t *testing.T) {
		obs := occasionsFor("shooter_8", []choice.AltID{1}, []float64{math.Inf(1)})
		_, err := Compile(spec, choice.NewPanel(obs))
		assert.True(t, errors.Is(err, errors.ErrDataInvalid))
	})

	t.Run("unknown alternative", func(t *testing.T) {
		obs := occasionsFor("shooter_9", []choice.AltID{1}, []float64{0})
		obs[0].Alternatives = []choice.AltID{1, 2, 3, 9}
		_, err := Compile(spec, choice.NewPanel(obs))
		assert.True(t, errors.Is(err, errors.ErrUnresolvedReference))
	})

	t.Run("empty panel", func(t *testing.T) {
		_, err := Compile(spec, choice.NewPanel(nil))
		assert.True(t, errors.Is(err, errors.ErrDataInvalid))
	})
}
