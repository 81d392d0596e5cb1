package layers

import (
	"testing"

	"capsnet/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxPool2D(t *testing.T) {
	x := seq(1, 1, 4, 4)
	out, err := NewMaxPool2D(2, 0, 0).Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, out.Shape)
	assert.Equal(t, []float64{6, 8, 14, 16}, out.Data)
}

func TestMaxPool2D_PaddedNegative(t *testing.T) {
	x := Constant(-3)(1, 2, 3, 3)
	out, err := NewMaxPool2D(3, 2, 1).Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 2}, out.Shape)
	for _, v := range out.Data {
		assert.Equal(t, -3.0, v, "padding must never win the max")
	}
}

func TestMaxPool2D_Errors(t *testing.T) {
	_, err := NewMaxPool2D(2, 2, 0).Forward(tensor.New(4, 4))
	require.Error(t, err)
	_, err = NewMaxPool2D(3, 1, 0).Forward(tensor.New(1, 1, 2, 2))
	require.Error(t, err)
}

func TestReLUAndSigmoid(t *testing.T) {
	x, _ := tensor.FromData([]float64{-800, -1, 0, 1, 800}, 5)
	r, err := NewReLU().Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 1, 800}, r.Data)

	s, err := NewSigmoid().Forward(x)
	require.NoError(t, err)
	assert.True(t, s.AllFinite())
	assert.InDelta(t, 0, s.Data[0], 1e-12)
	assert.InDelta(t, 0.5, s.Data[2], 1e-12)
	assert.InDelta(t, 1, s.Data[4], 1e-12)
	assert.InDelta(t, 1-s.Data[1], s.Data[3], 1e-12)
}

func TestView(t *testing.T) {
	out, err := NewView(-1, 8).Forward(tensor.New(1, 1, 8))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8}, out.Shape, "batch axis of size one is kept")
	_, err = NewView(-1, 8).Forward(tensor.New(1, 1, 6))
	require.Error(t, err)
}
