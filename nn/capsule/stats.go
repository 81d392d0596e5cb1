package capsule

import (
	"math"

	"capsnet/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// StatsPool collapses the spatial axes of a [B, C, H, W] feature map into
// per-channel statistics [B, 2, C]: row 0 holds the means, row 1 the unbiased
// (n-1) standard deviations.
//
// A 1×1 map has no spread to estimate; its standard deviation is reported
// as 0 instead of the NaN the unbiased estimator would give.
type StatsPool struct{}

func (StatsPool) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 4 {
		return nil, errors.Wrapf(ErrShapeMismatch, "stats pooling expects [B, C, H, W], got %v", x.Shape)
	}
	if !x.AllFinite() {
		return nil, errors.Wrapf(ErrNumericInstability, "stats pooling input %v contains NaN or Inf", x.Shape)
	}
	B, C := x.Shape[0], x.Shape[1]
	n := x.Shape[2] * x.Shape[3]
	if n == 0 {
		return nil, errors.Wrapf(ErrShapeMismatch, "stats pooling over empty spatial axes %v", x.Shape)
	}
	if n == 1 {
		klog.V(2).Infof("stats pooling over a 1x1 map: standard deviations set to 0")
	}

	out := tensor.New(B, 2, C)
	for b := 0; b < B; b++ {
		for c := 0; c < C; c++ {
			values := x.Data[(b*C+c)*n : (b*C+c+1)*n]
			var mean, std float64
			if n == 1 {
				mean = values[0]
			} else {
				mean, std = stat.MeanStdDev(values, nil)
				// Rounding can push a near-zero variance just below 0.
				if math.IsNaN(std) {
					std = 0
				}
			}
			out.Data[(b*2)*C+c] = mean
			out.Data[(b*2+1)*C+c] = std
		}
	}
	return out, nil
}

func (StatsPool) Tag() string { return "StatsPool" }
