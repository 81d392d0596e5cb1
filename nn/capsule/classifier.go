package capsule

import (
	"capsnet/nn/layers"
	"capsnet/tensor"

	"github.com/pkg/errors"
)

// Prediction is the classifier output for one forward pass.
type Prediction struct {
	// Raw is the routing output z, [B, data_out, out_caps].
	Raw *tensor.Tensor
	// Scores is sigmoid(z), same shape as Raw.
	Scores *tensor.Tensor
	// Class holds, for the first batch element only, the mean score of each
	// output capsule over data_out.
	Class []float64
}

// Classify turns a routing output into a Prediction. Only the first batch
// element contributes to Class.
func Classify(z *tensor.Tensor) (*Prediction, error) {
	if z.Rank() != 3 || z.Shape[0] == 0 || z.Shape[1] == 0 {
		return nil, errors.Wrapf(ErrShapeMismatch, "classifier expects [B, data_out, out_caps], got %v", z.Shape)
	}
	scores, err := layers.NewSigmoid().Forward(z)
	if err != nil {
		return nil, err
	}
	dataOut, outCaps := z.Shape[1], z.Shape[2]
	class := make([]float64, outCaps)
	for d := 0; d < dataOut; d++ {
		for o := 0; o < outCaps; o++ {
			class[o] += scores.Data[d*outCaps+o]
		}
	}
	for o := range class {
		class[o] /= float64(dataOut)
	}
	return &Prediction{Raw: z, Scores: scores, Class: class}, nil
}
