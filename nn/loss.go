package nn

import (
	"math"

	"capsnet/nn/layers"
	"capsnet/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Softmax applies the softmax function to a tensor.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(logits.Shape...)
	SoftmaxInto(out.Data, logits.Data)
	return out
}

// SoftmaxInto writes softmax(src) into dst, shifting by the maximum so large
// logits cannot overflow. dst and src may alias.
func SoftmaxInto(dst, src []float64) {
	if len(src) == 0 {
		return
	}
	maxLogit := floats.Max(src)
	expSum := 0.0
	for i, v := range src {
		e := math.Exp(v - maxLogit)
		dst[i] = e
		expSum += e
	}
	floats.Scale(1/expSum, dst[:len(src)])
}

// BCEWithLogits is the mean binary cross-entropy between sigmoid(logits) and
// targets, computed as max(x,0) - x·y + log(1+e^-|x|).
func BCEWithLogits(logits, targets []float64) (float64, error) {
	if len(logits) != len(targets) {
		return 0, errors.Errorf("BCEWithLogits: %d logits vs %d targets", len(logits), len(targets))
	}
	if len(logits) == 0 {
		return 0, errors.New("BCEWithLogits: empty input")
	}
	sum := 0.0
	for i, x := range logits {
		sum += math.Max(x, 0) - x*targets[i] + math.Log1p(math.Exp(-math.Abs(x)))
	}
	return sum / float64(len(logits)), nil
}

// CapsuleLoss accumulates one binary cross-entropy term per row of the raw
// routing output.
//
// classes is [B, K, out_caps] and labels is [out_caps]. Each term applies the
// with-logits criterion to sigmoid(classes[0, i, :]), so the scores are
// squashed twice, as the network was originally trained. Only batch element 0
// contributes.
type CapsuleLoss struct{}

// Forward returns Σ_i BCEWithLogits(sigmoid(classes[0,i,:]), labels).
func (CapsuleLoss) Forward(classes, labels *tensor.Tensor) (float64, error) {
	if classes.Rank() != 3 {
		return 0, errors.Errorf("CapsuleLoss: classes shape %v, wanted [B, K, out_caps]", classes.Shape)
	}
	k, outCaps := classes.Shape[1], classes.Shape[2]
	if classes.Shape[0] == 0 || k == 0 {
		return 0, errors.Errorf("CapsuleLoss: empty classes shape %v", classes.Shape)
	}
	if err := labels.CheckShape(outCaps); err != nil {
		return 0, errors.WithMessage(err, "CapsuleLoss: labels")
	}

	loss := 0.0
	row := make([]float64, outCaps)
	for i := 0; i < k; i++ {
		for o := 0; o < outCaps; o++ {
			row[o] = layers.SigmoidValue(classes.Data[i*outCaps+o])
		}
		term, err := BCEWithLogits(row, labels.Data)
		if err != nil {
			return 0, err
		}
		loss += term
	}
	return loss, nil
}
