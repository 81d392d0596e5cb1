package nn

import (
	"capsnet/nn/layers"
	"capsnet/tensor"

	"github.com/pkg/errors"
)

// Module defines a single layer/unit in the network.
//
// Forward must not mutate its input and must be safe to call from several
// goroutines at once: modules keep no per-call state.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Tag() string
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// NewSequential returns a Sequential over the given modules.
func NewSequential(mods ...Module) *Sequential {
	return &Sequential{Layers: mods}
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	for i, layer := range s.Layers {
		var err error
		out, err = layer.Forward(out)
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %d (%s)", i, layer.Tag())
		}
	}
	return out, nil
}

// Tag lists the tags of all layers.
func (s *Sequential) Tag() string {
	tags := "Sequential["
	for i, m := range s.Layers {
		if i > 0 {
			tags += ","
		}
		tags += m.Tag()
	}
	return tags + "]"
}

// Params collects parameters of every layer that has any, prefixing names
// with the layer index.
func (s *Sequential) Params(prefix string) []layers.Param {
	var params []layers.Param
	for i, m := range s.Layers {
		if p, ok := m.(layers.Parametrized); ok {
			params = append(params, p.Params(layers.JoinName(prefix, i))...)
		}
	}
	return params
}
