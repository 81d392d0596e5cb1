package layers

import (
	"math"

	"capsnet/tensor"
)

// ReLU is the rectified linear unit.
type ReLU struct{}

// NewReLU returns a ReLU layer.
func NewReLU() *ReLU { return &ReLU{} }

func (*ReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReluPlain(x), nil
}

func (*ReLU) Tag() string { return "ReLU" }

// Sigmoid is the logistic function applied element-wise.
type Sigmoid struct{}

// NewSigmoid returns a Sigmoid layer.
func NewSigmoid() *Sigmoid { return &Sigmoid{} }

func (*Sigmoid) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = SigmoidValue(v)
	}
	return out, nil
}

func (*Sigmoid) Tag() string { return "Sigmoid" }

// SigmoidValue computes 1/(1+e^-v) without overflowing for large |v|.
func SigmoidValue(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}
