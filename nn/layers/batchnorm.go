package layers

import (
	"fmt"
	"math"

	"capsnet/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// BatchNorm normalizes each channel (axis 1) of a [B, C, ...] input.
//
// In training mode the statistics come from the batch itself (biased
// variance, as in Ioffe & Szegedy). Otherwise the running statistics are used.
// Running statistics are owned by the caller's training loop; Forward never
// updates them.
type BatchNorm struct {
	channels int
	eps      float64
	training bool

	Gamma       *tensor.Tensor // [C]
	Beta        *tensor.Tensor // [C]
	RunningMean *tensor.Tensor // [C]
	RunningVar  *tensor.Tensor // [C]
}

// BatchNormOption configures a BatchNorm at construction.
type BatchNormOption func(*BatchNorm)

// WithEpsilon sets the variance epsilon (default 1e-5).
func WithEpsilon(eps float64) BatchNormOption {
	return func(bn *BatchNorm) { bn.eps = eps }
}

// WithTraining selects batch statistics instead of running statistics.
func WithTraining(training bool) BatchNormOption {
	return func(bn *BatchNorm) { bn.training = training }
}

// WithScaleInit draws gamma from init instead of ones.
func WithScaleInit(init Initializer) BatchNormOption {
	return func(bn *BatchNorm) { bn.Gamma = init(bn.channels) }
}

// NewBatchNorm creates a batch normalization over the given channel count.
func NewBatchNorm(channels int, opts ...BatchNormOption) *BatchNorm {
	bn := &BatchNorm{
		channels:    channels,
		eps:         1e-5,
		Gamma:       Constant(1)(channels),
		Beta:        tensor.New(channels),
		RunningMean: tensor.New(channels),
		RunningVar:  Constant(1)(channels),
	}
	for _, opt := range opts {
		opt(bn)
	}
	return bn
}

// Training reports whether batch statistics are used.
func (bn *BatchNorm) Training() bool { return bn.training }

// Forward normalizes x, which must have rank ≥ 2 with channels on axis 1.
func (bn *BatchNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() < 2 || x.Shape[1] != bn.channels {
		return nil, errors.Errorf("%s: input shape %v, wanted [B, %d, ...]", bn.Tag(), x.Shape, bn.channels)
	}
	batch := x.Shape[0]
	inner := tensor.Volume(x.Shape[2:])
	out := tensor.New(x.Shape...)
	values := make([]float64, batch*inner)

	for c := 0; c < bn.channels; c++ {
		mean, variance := bn.RunningMean.Data[c], bn.RunningVar.Data[c]
		if bn.training {
			for b := 0; b < batch; b++ {
				copy(values[b*inner:(b+1)*inner], x.Data[(b*bn.channels+c)*inner:(b*bn.channels+c+1)*inner])
			}
			mean, variance = stat.PopMeanVariance(values, nil)
		}
		scale := bn.Gamma.Data[c] / math.Sqrt(variance+bn.eps)
		shift := bn.Beta.Data[c] - mean*scale
		for b := 0; b < batch; b++ {
			base := (b*bn.channels + c) * inner
			for i := 0; i < inner; i++ {
				out.Data[base+i] = x.Data[base+i]*scale + shift
			}
		}
	}
	return out, nil
}

// Params returns gamma and beta. Running statistics are buffers, reported as
// non-trainable.
func (bn *BatchNorm) Params(prefix string) []Param {
	return []Param{
		{Name: JoinName(prefix, "weight"), Value: bn.Gamma, Trainable: true},
		{Name: JoinName(prefix, "bias"), Value: bn.Beta, Trainable: true},
		{Name: JoinName(prefix, "running_mean"), Value: bn.RunningMean},
		{Name: JoinName(prefix, "running_var"), Value: bn.RunningVar},
	}
}

func (bn *BatchNorm) Tag() string {
	return fmt.Sprintf("BatchNorm_%d", bn.channels)
}
