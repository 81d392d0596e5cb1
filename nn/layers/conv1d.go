package layers

import (
	"fmt"

	"capsnet/tensor"

	"github.com/pkg/errors"
)

// Conv1D wraps Conv2D with kh=1.
// Input  [B, C, L]
// Output [B, C_out, (L+2p-k)/s+1]
type Conv1D struct {
	*Conv2D
}

// NewConv1D creates a 1-D convolution. Stride and padding options apply to the
// sequence axis only.
func NewConv1D(inC, outC, k int, opts ...Conv2DOption) *Conv1D {
	conv := NewConv2D(inC, outC, 1, k, opts...)
	// Height is a unit axis: never stride or pad it.
	conv.strideH, conv.padH = 1, 0
	return &Conv1D{Conv2D: conv}
}

// Forward lifts [B, C, L] to [B, C, 1, L], convolves, and drops the unit axis.
func (c *Conv1D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if err := input.CheckShape(-1, c.inChan, -1); err != nil {
		return nil, errors.WithMessage(err, c.Tag())
	}
	lifted, err := input.Reshape(input.Shape[0], input.Shape[1], 1, input.Shape[2])
	if err != nil {
		return nil, err
	}
	out, err := c.Conv2D.Forward(lifted)
	if err != nil {
		return nil, err
	}
	return out.Reshape(out.Shape[0], out.Shape[1], out.Shape[3])
}

// OutputLength returns the sequence length produced for an input of length l.
func (c *Conv1D) OutputLength(l int) int {
	_, w := c.GetOutputShape(1, l)
	return w
}

func (c *Conv1D) Tag() string {
	return fmt.Sprintf("Conv1D_k%d_%d->%d_s%d_p%d", c.kw, c.inChan, c.outChan, c.strideW, c.padW)
}
