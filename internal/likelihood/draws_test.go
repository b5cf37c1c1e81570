package likelihood

import (
	"math"
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDraws_SeedReproducible(t *testing.T) {
	for _, method := range []DrawMethod{DrawPseudo, DrawAntithetic, DrawHalton} {
		t.Run(string(method), func(t *testing.T) {
			a, err := GenerateDraws(method, 5, 40, 2, 123)
			require.NoError(t, err)
			b, err := GenerateDraws(method, 5, 40, 2, 123)
			require.NoError(t, err)
			assert.Equal(t, a.values, b.values)
			for _, v := range a.values {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			}
		})
	}

	a, _ := GenerateDraws(DrawPseudo, 2, 10, 1, 1)
	b, _ := GenerateDraws(DrawPseudo, 2, 10, 1, 2)
	assert.NotEqual(t, a.values, b.values)
}

func TestGenerateDraws_Antithetic(t *testing.T) {
	ds, err := GenerateDraws(DrawAntithetic, 3, 10, 2, 5)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for r := 0; r < 10; r += 2 {
			assert.Equal(t, ds.Draw(i, r)[0], -ds.Draw(i, r+1)[0])
			assert.Equal(t, ds.Draw(i, r)[1], -ds.Draw(i, r+1)[1])
		}
	}
}

func TestGenerateDraws_HaltonMoments(t *testing.T) {
	ds, err := GenerateDraws(DrawHalton, 4, 1000, 2, 0)
	require.NoError(t, err)

	for k := 0; k < 2; k++ {
		var column []float64
		for i := 0; i < 4; i++ {
			for r := 0; r < 1000; r++ {
				column = append(column, ds.Draw(i, r)[k])
			}
		}
		mean, err := stats.Mean(column)
		require.NoError(t, err)
		sd, err := stats.StandardDeviation(column)
		require.NoError(t, err)
		assert.InDelta(t, 0, mean, 0.01, "dimension %d", k)
		assert.InDelta(t, 1, sd, 0.02, "dimension %d", k)
	}

	// individuals take disjoint segments of the sequence
	assert.NotEqual(t, ds.Draw(0, 0)[0], ds.Draw(1, 0)[0])
}

func TestRadicalInverse(t *testing.T) {
	assert.Equal(t, 0.5, radicalInverse(1, 2))
	assert.Equal(t, 0.25, radicalInverse(2, 2))
	assert.Equal(t, 0.75, radicalInverse(3, 2))
	assert.InDelta(t, 1.0/3, radicalInverse(1, 3), 1e-15)
	assert.Equal(t, []int{2, 3, 5, 7, 11}, primes(5))
}

func TestParseDrawMethod(t *testing.T) {
	m, err := ParseDrawMethod(" Halton ")
	require.NoError(t, err)
	assert.Equal(t, DrawHalton, m)

	_, err = ParseDrawMethod("sobol")
	assert.Error(t, err)

	_, err = GenerateDraws(DrawPseudo, 1, 0, 1, 0)
	assert.Error(t, err)
}
