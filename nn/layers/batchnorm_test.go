package layers

import (
	"math"
	"testing"

	"capsnet/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchNorm_Inference(t *testing.T) {
	bn := NewBatchNorm(2, WithEpsilon(0))
	bn.RunningMean.Data = []float64{1, -1}
	bn.RunningVar.Data = []float64{4, 1}
	bn.Gamma.Data = []float64{2, 1}
	bn.Beta.Data = []float64{0, 10}

	x, err := tensor.FromData([]float64{3, 5, 0, 1}, 1, 2, 2)
	require.NoError(t, err)
	out, err := bn.Forward(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 4, 11, 12}, out.Data, 1e-12)
	assert.Equal(t, []float64{3, 5, 0, 1}, x.Data, "input must not be mutated")
}

func TestBatchNorm_TrainingUsesBatchStatistics(t *testing.T) {
	bn := NewBatchNorm(1, WithTraining(true))
	require.True(t, bn.Training())

	x, err := tensor.FromData([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 2, 1, 2, 2)
	require.NoError(t, err)
	out, err := bn.Forward(x)
	require.NoError(t, err)

	mean, sq := 0.0, 0.0
	for _, v := range out.Data {
		mean += v
	}
	mean /= float64(len(out.Data))
	for _, v := range out.Data {
		sq += (v - mean) * (v - mean)
	}
	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, 1, math.Sqrt(sq/float64(len(out.Data))), 1e-4)
}

func TestBatchNorm_ConstantInputStaysFinite(t *testing.T) {
	bn := NewBatchNorm(3, WithTraining(true))
	x := Constant(7)(1, 3, 1)
	out, err := bn.Forward(x)
	require.NoError(t, err)
	assert.True(t, out.AllFinite())
	assert.InDeltaSlice(t, []float64{0, 0, 0}, out.Data, 1e-9)
}

func TestBatchNorm_ShapeError(t *testing.T) {
	bn := NewBatchNorm(4)
	_, err := bn.Forward(tensor.New(2, 3, 5))
	require.Error(t, err)
	_, err = bn.Forward(tensor.New(4))
	require.Error(t, err)
	assert.Len(t, bn.Params("bn"), 4)
}
