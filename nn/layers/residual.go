package layers

import (
	"fmt"

	"capsnet/tensor"

	"github.com/pkg/errors"
)

type residualSubModule interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Tag() string
}

// ResidualBlock computes relu(Main(x) + Shortcut(x)). An empty Shortcut is the
// identity.
type ResidualBlock struct {
	Main     []residualSubModule
	Shortcut []residualSubModule
}

func NewResidualBlock(main, shortcut []residualSubModule) *ResidualBlock {
	return &ResidualBlock{Main: main, Shortcut: shortcut}
}

// NewBottleneck builds the 1x1 → 3x3 → 1x1 block of ResNet-50 with
// expansion 4. A projection shortcut is added when the stride or channel
// count changes. The stride sits on the 3x3 convolution.
func NewBottleneck(inChan, width, stride int, training bool, convInit, scaleInit Initializer) *ResidualBlock {
	outChan := width * 4
	bn := func(c int) *BatchNorm {
		return NewBatchNorm(c, WithTraining(training), WithScaleInit(scaleInit))
	}
	main := []residualSubModule{
		NewConv2D(inChan, width, 1, 1, WithoutBias(), WithWeightInit(convInit)),
		bn(width),
		NewReLU(),
		NewConv2D(width, width, 3, 3, WithStride(stride), WithPadding(1), WithoutBias(), WithWeightInit(convInit)),
		bn(width),
		NewReLU(),
		NewConv2D(width, outChan, 1, 1, WithoutBias(), WithWeightInit(convInit)),
		bn(outChan),
	}
	var shortcut []residualSubModule
	if stride != 1 || inChan != outChan {
		shortcut = []residualSubModule{
			NewConv2D(inChan, outChan, 1, 1, WithStride(stride), WithoutBias(), WithWeightInit(convInit)),
			bn(outChan),
		}
	}
	return NewResidualBlock(main, shortcut)
}

func runChain(mods []residualSubModule, x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	for _, m := range mods {
		x, err = m.Forward(x)
		if err != nil {
			return nil, errors.WithMessage(err, m.Tag())
		}
	}
	return x, nil
}

func (r *ResidualBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	main, err := runChain(r.Main, x)
	if err != nil {
		return nil, err
	}
	skip, err := runChain(r.Shortcut, x)
	if err != nil {
		return nil, err
	}
	sum, err := tensor.Add(main, skip)
	if err != nil {
		return nil, errors.WithMessage(err, "ResidualBlock: skip connection")
	}
	return tensor.ReluPlain(sum), nil
}

// Params returns main-path parameters under "main.<i>" and shortcut
// parameters under "shortcut.<i>".
func (r *ResidualBlock) Params(prefix string) []Param {
	var params []Param
	for i, m := range r.Main {
		if p, ok := m.(Parametrized); ok {
			params = append(params, p.Params(JoinName(JoinName(prefix, "main"), i))...)
		}
	}
	for i, m := range r.Shortcut {
		if p, ok := m.(Parametrized); ok {
			params = append(params, p.Params(JoinName(JoinName(prefix, "shortcut"), i))...)
		}
	}
	return params
}

func (r *ResidualBlock) Tag() string {
	tags := "ResidualBlock["
	for i, m := range r.Main {
		if i > 0 {
			tags += ","
		}
		tags += m.Tag()
	}
	return tags + fmt.Sprintf("|shortcut=%d]", len(r.Shortcut))
}
