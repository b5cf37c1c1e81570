package estimation

import (
	"math"
	"testing"

	"kickchoice/internal/model"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
)

func TestTransform_RoundTripAndDerivative(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name   string
		lo, hi float64
		x      float64
	}{
		{"unbounded", -inf, inf, -3.2},
		{"both", 0, 5, 0.5},
		{"lower", 1, inf, 2.5},
		{"upper", -inf, 2, -4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTransform(model.Parameter{Lower: tc.lo, Upper: tc.hi})
			theta := tr.toTheta(tc.x)
			x, dx := tr.toX(theta)
			assert.InDelta(t, tc.x, x, 1e-12)

			numeric := fd.Derivative(func(th float64) float64 {
				v, _ := tr.toX(th)
				return v
			}, theta, &fd.Settings{Formula: fd.Central})
			assert.InDelta(t, numeric, dx, 1e-6)
		})
	}
}

func TestTransform_StaysInsideBounds(t *testing.T) {
	tr := newTransform(model.Parameter{Lower: 0, Upper: 5})
	for _, theta := range []float64{-800, -20, 0, 20, 800} {
		x, _ := tr.toX(theta)
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 5.0)
	}

	// a start value on the bound is nudged inside
	theta := tr.toTheta(0)
	assert.False(t, math.IsInf(theta, 0))
}
