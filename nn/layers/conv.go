package layers

import (
	"fmt"

	"capsnet/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Conv2D is a 2D convolutional layer over [batch, channel, height, width]
// inputs, computed as an im2col product.
type Conv2D struct {
	// Layer parameters
	inChan, outChan  int // number of input/output channels
	kh, kw           int // kernel height and width
	strideH, strideW int
	padH, padW       int
	bias             bool

	W *tensor.Tensor // weights: [outChan, inChan, kh, kw]
	B *tensor.Tensor // bias: [outChan], nil when bias is disabled
}

// Conv2DOption configures a Conv2D at construction.
type Conv2DOption func(*Conv2D)

// WithStride sets the same stride on both spatial axes.
func WithStride(s int) Conv2DOption {
	return func(c *Conv2D) { c.strideH, c.strideW = s, s }
}

// WithPadding sets symmetric zero padding on both spatial axes.
func WithPadding(p int) Conv2DOption {
	return func(c *Conv2D) { c.padH, c.padW = p, p }
}

// WithoutBias drops the bias term.
func WithoutBias() Conv2DOption {
	return func(c *Conv2D) { c.bias = false }
}

// WithWeightInit draws the kernel from init instead of leaving it zero.
func WithWeightInit(init Initializer) Conv2DOption {
	return func(c *Conv2D) { c.W = init(c.outChan, c.inChan, c.kh, c.kw) }
}

// NewConv2D creates a new Conv2D layer with stride 1, no padding and a zero bias.
func NewConv2D(inChan, outChan, kh, kw int, opts ...Conv2DOption) *Conv2D {
	c := &Conv2D{
		inChan:  inChan,
		outChan: outChan,
		kh:      kh,
		kw:      kw,
		strideH: 1,
		strideW: 1,
		bias:    true,
		W:       tensor.New(outChan, inChan, kh, kw),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bias {
		c.B = tensor.New(outChan)
	}
	return c
}

// InChannels returns the expected input channel count.
func (c *Conv2D) InChannels() int { return c.inChan }

// OutChannels returns the produced channel count.
func (c *Conv2D) OutChannels() int { return c.outChan }

// GetOutputShape returns the output dimensions for given input dimensions.
func (c *Conv2D) GetOutputShape(inH, inW int) (outH, outW int) {
	outH = (inH+2*c.padH-c.kh)/c.strideH + 1
	outW = (inW+2*c.padW-c.kw)/c.strideW + 1
	return outH, outW
}

// Forward performs the convolution. Input must be [batch, inChan, height, width].
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if err := input.CheckShape(-1, c.inChan, -1, -1); err != nil {
		return nil, errors.WithMessage(err, c.Tag())
	}
	batchSize, height, width := input.Shape[0], input.Shape[2], input.Shape[3]
	outH, outW := c.GetOutputShape(height, width)
	if outH <= 0 || outW <= 0 {
		return nil, errors.Errorf("%s: input %dx%d too small for kernel %dx%d", c.Tag(), height, width, c.kh, c.kw)
	}

	patch := c.inChan * c.kh * c.kw
	positions := outH * outW
	output := tensor.New(batchSize, c.outChan, outH, outW)
	kernel := mat.NewDense(c.outChan, patch, c.W.Data)
	cols := mat.NewDense(patch, positions, nil)
	inPlane := c.inChan * height * width
	outPlane := c.outChan * positions

	for b := 0; b < batchSize; b++ {
		c.im2col(input.Data[b*inPlane:(b+1)*inPlane], height, width, outH, outW, cols)
		dst := mat.NewDense(c.outChan, positions, output.Data[b*outPlane:(b+1)*outPlane])
		dst.Mul(kernel, cols)
		if c.bias {
			for oc := 0; oc < c.outChan; oc++ {
				row := output.Data[b*outPlane+oc*positions : b*outPlane+(oc+1)*positions]
				for i := range row {
					row[i] += c.B.Data[oc]
				}
			}
		}
	}
	return output, nil
}

// im2col unrolls one image into cols: row (ic, dy, dx), column (y, x).
func (c *Conv2D) im2col(img []float64, height, width, outH, outW int, cols *mat.Dense) {
	row := 0
	for ic := 0; ic < c.inChan; ic++ {
		plane := img[ic*height*width : (ic+1)*height*width]
		for dy := 0; dy < c.kh; dy++ {
			for dx := 0; dx < c.kw; dx++ {
				for y := 0; y < outH; y++ {
					iy := y*c.strideH + dy - c.padH
					for x := 0; x < outW; x++ {
						ix := x*c.strideW + dx - c.padW
						v := 0.0
						if iy >= 0 && iy < height && ix >= 0 && ix < width {
							v = plane[iy*width+ix]
						}
						cols.Set(row, y*outW+x, v)
					}
				}
				row++
			}
		}
	}
}

// Params returns the kernel and, when present, the bias.
func (c *Conv2D) Params(prefix string) []Param {
	params := []Param{{Name: JoinName(prefix, "weight"), Value: c.W, Trainable: true}}
	if c.bias {
		params = append(params, Param{Name: JoinName(prefix, "bias"), Value: c.B, Trainable: true})
	}
	return params
}

func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%dx%d_%d->%d_s%d_p%d", c.kh, c.kw, c.inChan, c.outChan, c.strideH, c.padH)
}
