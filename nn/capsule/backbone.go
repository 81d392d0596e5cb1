package capsule

import (
	"fmt"

	"capsnet/nn"
	"capsnet/nn/layers"
	"capsnet/tensor"

	"github.com/pkg/errors"
)

// frozenChildren is how many leading backbone children stay frozen in
// training mode. Outside training the whole backbone is frozen.
const frozenChildren = 10

// FeatureBackbone turns an RGB image batch [B, 3, H, W] into the
// [B, BackboneChannels, H', W'] feature map the capsule heads consume.
type FeatureBackbone interface {
	Extract(image *tensor.Tensor) (*tensor.Tensor, error)
	OutChannels() int
	Params(prefix string) []layers.Param
	Tag() string
}

// sequentialBackbone is a backbone made of an ordered list of children, the
// first frozen of which report their parameters as not trainable.
type sequentialBackbone struct {
	name   string
	seq    *nn.Sequential
	frozen int
}

func newSequentialBackbone(name string, training bool, children ...nn.Module) *sequentialBackbone {
	frozen := len(children)
	if training && frozenChildren < frozen {
		frozen = frozenChildren
	}
	return &sequentialBackbone{name: name, seq: nn.NewSequential(children...), frozen: frozen}
}

func (s *sequentialBackbone) Extract(image *tensor.Tensor) (*tensor.Tensor, error) {
	if err := image.CheckShape(-1, 3, -1, -1); err != nil {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s expects an RGB batch: %v", s.name, err)
	}
	out, err := s.seq.Forward(image)
	if err != nil {
		return nil, errors.WithMessage(err, s.name)
	}
	return out, nil
}

func (s *sequentialBackbone) OutChannels() int { return BackboneChannels }

// Children returns the number of top-level stages.
func (s *sequentialBackbone) Children() int { return len(s.seq.Layers) }

// Frozen returns the number of leading stages excluded from training.
func (s *sequentialBackbone) Frozen() int { return s.frozen }

func (s *sequentialBackbone) Params(prefix string) []layers.Param {
	var params []layers.Param
	for i, m := range s.seq.Layers {
		p, ok := m.(layers.Parametrized)
		if !ok {
			continue
		}
		child := p.Params(layers.JoinName(prefix, i))
		if i < s.frozen {
			for k := range child {
				child[k].Trainable = false
			}
		}
		params = append(params, child...)
	}
	return params
}

func (s *sequentialBackbone) Tag() string {
	return fmt.Sprintf("%s[%d children, %d frozen]", s.name, len(s.seq.Layers), s.frozen)
}

// VggExtractor is the first nineteen stages of VGG-19's feature stack: two
// 64-channel convolutions, pool, two 128-channel convolutions, pool, four
// 256-channel convolutions, pool. The output is downsampled 8×.
type VggExtractor struct {
	*sequentialBackbone
}

func newVggExtractor(training bool, init initializers) *VggExtractor {
	var children []nn.Module
	in := 3
	for _, stage := range []struct{ convs, width int }{{2, 64}, {2, 128}, {4, 256}} {
		for c := 0; c < stage.convs; c++ {
			children = append(children, init.conv2D(in, stage.width, 3, layers.WithPadding(1)), layers.NewReLU())
			in = stage.width
		}
		children = append(children, layers.NewMaxPool2D(2, 2, 0))
	}
	return &VggExtractor{newSequentialBackbone("VggExtractor", training, children...)}
}

// ResNetExtractor is ResNet-50 through layer2 (stem, max pool, three
// 64-wide and four 128-wide bottlenecks) followed by a 1×1 projection from
// 512 to 256 channels and a batch norm. The output is downsampled 8×.
type ResNetExtractor struct {
	*sequentialBackbone
}

func newResNetExtractor(training bool, init initializers) *ResNetExtractor {
	layer := func(inChan, width, blocks, stride int) nn.Module {
		mods := make([]nn.Module, blocks)
		for b := range mods {
			s := 1
			if b == 0 {
				s = stride
			}
			mods[b] = layers.NewBottleneck(inChan, width, s, training, init.conv, init.bnScale)
			inChan = width * 4
		}
		return nn.NewSequential(mods...)
	}
	return &ResNetExtractor{newSequentialBackbone("ResNetExtractor", training,
		init.conv2D(3, 64, 7, layers.WithStride(2), layers.WithPadding(3), layers.WithoutBias()),
		init.batchNorm(64, training),
		layers.NewReLU(),
		layers.NewMaxPool2D(3, 2, 1),
		layer(64, 64, 3, 1),
		layer(256, 128, 4, 2),
		init.conv2D(512, BackboneChannels, 1, layers.WithoutBias()),
		init.batchNorm(BackboneChannels, training),
	)}
}

func newBackbone(cfg Config, init initializers) (FeatureBackbone, error) {
	switch cfg.Backbone {
	case BackboneVGG:
		return newVggExtractor(cfg.Training, init), nil
	case BackboneResNet:
		return newResNetExtractor(cfg.Training, init), nil
	}
	return nil, errors.Wrapf(ErrConfiguration, "unknown backbone %q", cfg.Backbone)
}
