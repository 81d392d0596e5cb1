package capsule

import (
	"capsnet/nn/layers"

	"golang.org/x/exp/rand"
)

// initializers produce the starting parameters of a fresh network: conv
// kernels N(0, 0.02), batch-norm scales N(1, 0.02) (shifts stay 0) and route
// weights N(0, 1). Every call returns a new tensor; nothing is re-initialized
// after construction.
type initializers struct {
	conv    layers.Initializer
	bnScale layers.Initializer
	route   layers.Initializer
}

func newInitializers(seed uint64) initializers {
	src := rand.NewSource(seed)
	return initializers{
		conv:    layers.Normal(0, 0.02, src),
		bnScale: layers.Normal(1, 0.02, src),
		route:   layers.Normal(0, 1, src),
	}
}

func (in initializers) conv2D(inChan, outChan, k int, opts ...layers.Conv2DOption) *layers.Conv2D {
	return layers.NewConv2D(inChan, outChan, k, k, append(opts, layers.WithWeightInit(in.conv))...)
}

func (in initializers) conv1D(inChan, outChan, k int, opts ...layers.Conv2DOption) *layers.Conv1D {
	return layers.NewConv1D(inChan, outChan, k, append(opts, layers.WithWeightInit(in.conv))...)
}

func (in initializers) batchNorm(channels int, training bool) *layers.BatchNorm {
	return layers.NewBatchNorm(channels, layers.WithTraining(training), layers.WithScaleInit(in.bnScale))
}
