package capsule

import (
	"capsnet/nn/layers"
	"capsnet/tensor"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// FeatureExtractor runs the primary capsule heads over the same feature map
// and stacks their squashed embeddings into a [B, D, N] capsule tensor.
type FeatureExtractor struct {
	Heads    []*Head
	dim      int
	parallel bool
}

func newFeatureExtractor(numCaps, dim int, training, parallel bool, init initializers) *FeatureExtractor {
	heads := make([]*Head, numCaps)
	for i := range heads {
		heads[i] = newHead(dim, training, init)
	}
	return &FeatureExtractor{Heads: heads, dim: dim, parallel: parallel}
}

// Forward evaluates every head on x. Heads share nothing, so with parallel
// evaluation they run concurrently; the result is always stacked in head
// order. Heads are not cancelled on failure; the first error is returned once
// all have finished. The stacked tensor is squashed along the capsule axis.
func (f *FeatureExtractor) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	outputs := make([]*tensor.Tensor, len(f.Heads))
	if f.parallel {
		var g errgroup.Group
		for i, h := range f.Heads {
			i, h := i, h
			g.Go(func() error {
				out, err := h.Forward(x)
				if err != nil {
					return errors.WithMessagef(err, "capsule head %d", i)
				}
				outputs[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, h := range f.Heads {
			out, err := h.Forward(x)
			if err != nil {
				return nil, errors.WithMessagef(err, "capsule head %d", i)
			}
			outputs[i] = out
		}
	}

	stacked, err := stackLast(outputs, f.dim)
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("capsule tensor %v from %d heads", stacked.Shape, len(f.Heads))
	return Squash(stacked, -1)
}

// stackLast stacks N [B, D] tensors into [B, D, N].
func stackLast(parts []*tensor.Tensor, dim int) (*tensor.Tensor, error) {
	n := len(parts)
	batch := parts[0].Shape[0]
	out := tensor.New(batch, dim, n)
	for k, p := range parts {
		if err := p.CheckShape(batch, dim); err != nil {
			return nil, errors.Wrapf(ErrShapeMismatch, "capsule %d: %v", k, err)
		}
		for b := 0; b < batch; b++ {
			for d := 0; d < dim; d++ {
				out.Data[(b*dim+d)*n+k] = p.Data[b*dim+d]
			}
		}
	}
	return out, nil
}

// Params returns the parameters of every head under "capsules.<i>".
func (f *FeatureExtractor) Params(prefix string) []layers.Param {
	var params []layers.Param
	for i, h := range f.Heads {
		params = append(params, h.Params(layers.JoinName(layers.JoinName(prefix, "capsules"), i))...)
	}
	return params
}
