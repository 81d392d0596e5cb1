package capsule

import (
	"math"
	"testing"

	"capsnet/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

func TestSquashVecProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		v := make([]float64, 1+rng.Intn(10))
		for i := range v {
			v[i] = (rng.Float64()*2 - 1) * 10
		}
		orig := append([]float64(nil), v...)
		SquashVec(v)

		norm := floats.Norm(v, 2)
		assert.Less(t, norm, 1.0)
		// Same direction: cosine similarity of 1.
		cos := floats.Dot(v, orig) / (norm * floats.Norm(orig, 2))
		assert.InDelta(t, 1, cos, 1e-9)
	}
}

func TestSquashVecZero(t *testing.T) {
	v := []float64{0, 0, 0}
	SquashVec(v)
	for _, x := range v {
		assert.False(t, math.IsNaN(x))
		assert.Equal(t, 0.0, x)
	}
}

func TestSquashVecLarge(t *testing.T) {
	for _, v := range [][]float64{
		{1e200, 0},
		{1e200, -1e200, 3e199},
		{1e8, 0},
		{1e300, 1e300},
	} {
		orig := append([]float64(nil), v...)
		SquashVec(v)
		for _, x := range v {
			require.False(t, math.IsNaN(x) || math.IsInf(x, 0), "squash(%v) = %v", orig, v)
		}
		norm := floats.Norm(v, 2)
		assert.Less(t, norm, 1.0)
		assert.Greater(t, norm, 0.999)
		// Compare directions on unit vectors; orig·orig would overflow.
		unit := append([]float64(nil), orig...)
		floats.Scale(1/floats.Norm(orig, 2), unit)
		assert.InDelta(t, 1, floats.Dot(v, unit)/norm, 1e-9)
	}
}

func TestSquashNonFinite(t *testing.T) {
	x, err := tensor.FromData([]float64{1, math.Inf(1)}, 1, 2)
	require.NoError(t, err)
	_, err = Squash(x, -1)
	assert.ErrorIs(t, err, ErrNumericInstability)
}

func TestSquashVecKnownValue(t *testing.T) {
	v := []float64{3, 4} // ‖v‖ = 5
	SquashVec(v)
	scale := 25.0 / 26.0 / (5 + squashEpsilon)
	assert.InDeltaSlice(t, []float64{3 * scale, 4 * scale}, v, 1e-12)
}

func TestSquashAxis(t *testing.T) {
	x, err := tensor.FromData([]float64{3, 0, 4, 0}, 1, 2, 2)
	require.NoError(t, err)

	// Axis 1 pairs (3, 4) and (0, 0).
	out, err := Squash(x, 1)
	require.NoError(t, err)
	scale := 25.0 / 26.0 / (5 + squashEpsilon)
	assert.InDeltaSlice(t, []float64{3 * scale, 0, 4 * scale, 0}, out.Data, 1e-12)
	assert.Equal(t, []float64{3, 0, 4, 0}, x.Data, "input is not modified")

	// Last axis pairs (3, 0) and (4, 0).
	out, err = Squash(x, -1)
	require.NoError(t, err)
	assert.InDelta(t, 9.0/10.0, out.Data[0], 1e-9)
	assert.InDelta(t, 16.0/17.0, out.Data[2], 1e-9)

	_, err = Squash(x, 3)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
