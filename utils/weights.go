package utils

import (
	"encoding/json"
	"os"
	"sort"

	"capsnet/tensor"

	"github.com/pkg/errors"
)

// WeightsVersion is written into every saved weight file.
const WeightsVersion = "1.0"

// WeightData represents serializable weight data for one tensor
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model, keyed by dotted parameter
// name ("capsules.0.3.weight").
type ModelWeights struct {
	Version string                 `json:"version"`
	Layers  map[string]*WeightData `json:"layers"`
}

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal weights")
	}
	return errors.Wrapf(os.WriteFile(filepath, data, 0644), "failed to write weights file %s", filepath)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read weights file %s", filepath)
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal weights %s", filepath)
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

// WeightDataToTensor converts weight data back to a tensor
func WeightDataToTensor(wd *WeightData) (*tensor.Tensor, error) {
	return tensor.FromData(wd.Data, wd.Shape...)
}

// CollectWeights snapshots the named tensors into a ModelWeights.
func CollectWeights(named map[string]*tensor.Tensor) *ModelWeights {
	w := &ModelWeights{Version: WeightsVersion, Layers: make(map[string]*WeightData, len(named))}
	for name, t := range named {
		w.Layers[name] = TensorToWeightData(name, t)
	}
	return w
}

// ApplyWeights copies every stored tensor into the destination of the same
// name, in place. Entries the model does not have and shape mismatches are
// errors and leave the model untouched. Model tensors absent from the file
// keep their value; the number of tensors written is returned.
func ApplyWeights(w *ModelWeights, named map[string]*tensor.Tensor) (int, error) {
	names := make([]string, 0, len(w.Layers))
	for name := range w.Layers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		wd := w.Layers[name]
		if wd == nil {
			return 0, errors.Errorf("weight %q is empty", name)
		}
		dst, ok := named[name]
		if !ok {
			return 0, errors.Errorf("weights file has %q, which the model does not", name)
		}
		src, err := WeightDataToTensor(wd)
		if err != nil {
			return 0, errors.WithMessagef(err, "weight %q", name)
		}
		if !tensor.SameShape(src, dst) {
			return 0, errors.Errorf("weight %q has shape %v, model expects %v", name, src.Shape, dst.Shape)
		}
	}
	for _, name := range names {
		copy(named[name].Data, w.Layers[name].Data)
	}
	return len(names), nil
}
