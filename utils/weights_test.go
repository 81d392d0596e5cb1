package utils

import (
	"os"
	"path/filepath"
	"testing"

	"capsnet/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorToWeightData(t *testing.T) {
	ten := tensor.New(2, 3)
	for i := range ten.Data {
		ten.Data[i] = float64(i) * 0.5
	}

	wd := TensorToWeightData("test_weight", ten)
	assert.Equal(t, "test_weight", wd.Name)
	assert.Equal(t, []int{2, 3}, wd.Shape)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2, 2.5}, wd.Data)

	// The snapshot does not alias the tensor.
	ten.Data[0] = 42
	assert.Equal(t, 0.0, wd.Data[0])
}

func TestWeightDataToTensor(t *testing.T) {
	wd := &WeightData{Name: "test", Shape: []int{3, 4}, Data: make([]float64, 12)}
	for i := range wd.Data {
		wd.Data[i] = float64(i)
	}
	ten, err := WeightDataToTensor(wd)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, ten.Shape)
	assert.Equal(t, wd.Data, ten.Data)

	_, err = WeightDataToTensor(&WeightData{Shape: []int{2, 2}, Data: []float64{1}})
	assert.Error(t, err)
}

func TestSaveLoadApplyWeights(t *testing.T) {
	weightsFile := filepath.Join(t.TempDir(), "weights.json")

	w := tensor.New(2, 3)
	for i := range w.Data {
		w.Data[i] = float64(i) * 0.001
	}
	b, err := tensor.FromData([]float64{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.NoError(t, SaveWeights(weightsFile, CollectWeights(map[string]*tensor.Tensor{
		"capsules.0.0.weight": w,
		"capsules.0.0.bias":   b,
	})))

	loaded, err := LoadWeights(weightsFile)
	require.NoError(t, err)
	assert.Equal(t, WeightsVersion, loaded.Version)
	require.Len(t, loaded.Layers, 2)

	dstW, dstB, extra := tensor.New(2, 3), tensor.New(2), tensor.New(1)
	n, err := ApplyWeights(loaded, map[string]*tensor.Tensor{
		"capsules.0.0.weight": dstW,
		"capsules.0.0.bias":   dstB,
		"route_weights":       extra,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, w.Data, dstW.Data)
	assert.Equal(t, b.Data, dstB.Data)
	assert.Equal(t, []float64{0}, extra.Data)
}

func TestApplyWeightsRejectsMismatch(t *testing.T) {
	w := CollectWeights(map[string]*tensor.Tensor{
		"a": tensor.NewWithData([]float64{1, 2}),
		"b": tensor.NewWithData([]float64{3}),
	})

	dstA := tensor.New(2)
	_, err := ApplyWeights(w, map[string]*tensor.Tensor{"a": dstA, "b": tensor.New(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"b"`)
	assert.Equal(t, []float64{0, 0}, dstA.Data, "nothing is written on error")

	_, err = ApplyWeights(w, map[string]*tensor.Tensor{"a": dstA})
	assert.Error(t, err)
}

func TestLoadWeightsNotFound(t *testing.T) {
	_, err := LoadWeights("/nonexistent/path/weights.json")
	assert.Error(t, err)
}

func TestLoadWeightsInvalidJSON(t *testing.T) {
	badFile := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(badFile, []byte("not valid json"), 0644))
	_, err := LoadWeights(badFile)
	assert.Error(t, err)
}
