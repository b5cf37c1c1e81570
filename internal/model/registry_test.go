package model

import (
	"math"
	"testing"

	"kickchoice/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndVectors(t *testing.T) {
	r := NewRegistry()
	inf := math.Inf(1)

	a, err := r.Register("ASC1", 0.1, -inf, inf, false)
	require.NoError(t, err)
	_, err = r.Register("ASC2", 0, -inf, inf, true)
	require.NoError(t, err)
	c, err := r.Register("sigma_i", 0.5, 0, 5, false)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 2, r.NumFree())
	assert.Equal(t, []Handle{a, c}, r.FreeHandles())
	assert.Equal(t, []float64{0.1, 0.5}, r.FreeVector())

	require.NoError(t, r.Scatter([]float64{1.5, 2.5}))
	assert.Equal(t, map[string]float64{"ASC1": 1.5, "ASC2": 0, "sigma_i": 2.5}, r.FullVector())
	assert.Equal(t, []float64{1.5, 0, 2.5}, r.Values())

	r.Reset()
	assert.Equal(t, []float64{0.1, 0, 0.5}, r.Values())
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("B_foot", 0, math.Inf(-1), math.Inf(1), false)
	require.NoError(t, err)

	_, err = r.Register("B_foot", 1, math.Inf(-1), math.Inf(1), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateParameter))
	assert.Contains(t, err.Error(), "B_foot")
}

func TestRegistry_InvalidBounds(t *testing.T) {
	tests := []struct {
		name                string
		start, lower, upper float64
	}{
		{"start below lower", -1, 0, 5},
		{"start above upper", 6, 0, 5},
		{"inverted bounds", 1, 5, 0},
		{"nan start", math.NaN(), 0, 5},
		{"infinite start", math.Inf(1), math.Inf(-1), math.Inf(1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry().Register("p", tc.start, tc.lower, tc.upper, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidBounds))
		})
	}

	_, err := NewRegistry().Register("at_bound", 0, 0, 5, false)
	assert.NoError(t, err, "start equal to a bound is allowed")
}

func TestRegistry_ScatterLeavesFixedAlone(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register("a", 1, math.Inf(-1), math.Inf(1), true)
	_, _ = r.Register("b", 2, math.Inf(-1), math.Inf(1), false)

	require.NoError(t, r.Scatter([]float64{9}))
	assert.Equal(t, []float64{1, 9}, r.Values())

	assert.Error(t, r.Scatter([]float64{1, 2}), "length mismatch must fail")
}

func TestRegistry_ExpandDoesNotMutate(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register("a", 1, math.Inf(-1), math.Inf(1), true)
	_, _ = r.Register("b", 2, math.Inf(-1), math.Inf(1), false)

	full := r.Expand([]float64{7}, nil)
	assert.Equal(t, []float64{1, 7}, full)
	assert.Equal(t, []float64{1, 2}, r.Values())

	reused := r.Expand([]float64{8}, full)
	assert.Equal(t, []float64{1, 8}, reused)
}

func TestRegistry_CloneIsIndependent(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register("a", 1, math.Inf(-1), math.Inf(1), false)
	c := r.Clone()
	require.NoError(t, c.Scatter([]float64{3}))
	assert.Equal(t, 1.0, r.Value(0))
	assert.Equal(t, 3.0, c.Value(0))
}
