package layers

import (
	"fmt"
	"math"

	"capsnet/tensor"

	"github.com/pkg/errors"
)

// MaxPool2D takes the maximum over square windows of a [B, C, H, W] input.
// Padded positions never win.
type MaxPool2D struct {
	Window  int
	Stride  int
	Padding int
}

// NewMaxPool2D creates a pooling layer; stride defaults to the window size
// when zero.
func NewMaxPool2D(window, stride, padding int) *MaxPool2D {
	if stride == 0 {
		stride = window
	}
	return &MaxPool2D{Window: window, Stride: stride, Padding: padding}
}

// GetOutputShape returns the pooled spatial size.
func (p *MaxPool2D) GetOutputShape(inH, inW int) (outH, outW int) {
	outH = (inH+2*p.Padding-p.Window)/p.Stride + 1
	outW = (inW+2*p.Padding-p.Window)/p.Stride + 1
	return outH, outW
}

func (p *MaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 4 {
		return nil, errors.Errorf("%s expects [B, C, H, W], got shape %v", p.Tag(), x.Shape)
	}
	B, C, H, W := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outH, outW := p.GetOutputShape(H, W)
	if outH <= 0 || outW <= 0 {
		return nil, errors.Errorf("%s: input %dx%d too small", p.Tag(), H, W)
	}
	out := tensor.New(B, C, outH, outW)

	for bc := 0; bc < B*C; bc++ {
		plane := x.Data[bc*H*W : (bc+1)*H*W]
		dst := out.Data[bc*outH*outW : (bc+1)*outH*outW]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				best := math.Inf(-1)
				for dy := 0; dy < p.Window; dy++ {
					iy := oy*p.Stride + dy - p.Padding
					if iy < 0 || iy >= H {
						continue
					}
					for dx := 0; dx < p.Window; dx++ {
						ix := ox*p.Stride + dx - p.Padding
						if ix < 0 || ix >= W {
							continue
						}
						if v := plane[iy*W+ix]; v > best {
							best = v
						}
					}
				}
				dst[oy*outW+ox] = best
			}
		}
	}
	return out, nil
}

func (p *MaxPool2D) Tag() string {
	return fmt.Sprintf("MaxPool2D_%d_s%d_p%d", p.Window, p.Stride, p.Padding)
}
