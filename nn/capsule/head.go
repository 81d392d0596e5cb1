package capsule

import (
	"fmt"

	"capsnet/nn"
	"capsnet/nn/layers"
	"capsnet/tensor"

	"github.com/pkg/errors"
)

// Head is one primary capsule: it reduces a [B, 256, H, W] feature map to a
// [B, D] embedding.
//
//	conv3x3 256→64, bn, relu
//	conv3x3 64→2D, bn, relu
//	stats pooling            → [B, 2, 2D]
//	conv1d k5 s2 p2 2→8, bn  → [B, 8, D]
//	conv1d k3 s1 p1 8→1, bn  → [B, 1, D]
//	view(-1, D)              → [B, D]
//
// With the default D = 8 the second convolution has 16 channels.
type Head struct {
	dim int
	seq *nn.Sequential
}

func newHead(dim int, training bool, init initializers) *Head {
	statChannels := 2 * dim
	return &Head{
		dim: dim,
		seq: nn.NewSequential(
			init.conv2D(BackboneChannels, 64, 3, layers.WithPadding(1)),
			init.batchNorm(64, training),
			layers.NewReLU(),
			init.conv2D(64, statChannels, 3, layers.WithPadding(1)),
			init.batchNorm(statChannels, training),
			layers.NewReLU(),
			StatsPool{},
			init.conv1D(2, 8, 5, layers.WithStride(2), layers.WithPadding(2)),
			init.batchNorm(8, training),
			init.conv1D(8, 1, 3, layers.WithPadding(1)),
			init.batchNorm(1, training),
			layers.NewView(-1, dim),
		),
	}
}

// Forward returns the [B, D] embedding of x.
func (h *Head) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := x.CheckShape(-1, BackboneChannels, -1, -1); err != nil {
		return nil, errors.Wrap(ErrShapeMismatch, err.Error())
	}
	return h.seq.Forward(x)
}

func (h *Head) Params(prefix string) []layers.Param { return h.seq.Params(prefix) }

func (h *Head) Tag() string { return fmt.Sprintf("CapsuleHead_%d", h.dim) }
