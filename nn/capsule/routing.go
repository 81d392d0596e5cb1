package capsule

import (
	"fmt"
	"sync"

	"capsnet/nn"
	"capsnet/nn/layers"
	"capsnet/tensor"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"k8s.io/klog/v2"
)

// RouteNoiseStdDev is the standard deviation of the noise added to the route
// weights when a forward pass asks for it.
const RouteNoiseStdDev = 0.01

// RoutingLayer aggregates input capsules into output capsules by dynamic
// routing by agreement.
//
// Weights is the only state that outlives a forward pass. Forward only reads
// it, so concurrent forward passes are safe as long as the caller does not
// update the weights at the same time.
type RoutingLayer struct {
	// Weights is [out_caps, in_caps, data_out, data_in].
	Weights *tensor.Tensor

	dims       RouteDims // Batch is unset: it comes from each input.
	iterations int
	priors     PriorEvaluator

	mu  sync.Mutex // guards src
	src rand.Source
}

// RoutingOption configures a RoutingLayer at construction.
type RoutingOption func(*RoutingLayer)

// WithPriorEvaluator replaces the plaintext vote computation.
func WithPriorEvaluator(p PriorEvaluator) RoutingOption {
	return func(r *RoutingLayer) { r.priors = p }
}

// WithRouteWeights sets the initial route weights.
func WithRouteWeights(init layers.Initializer) RoutingOption {
	return func(r *RoutingLayer) {
		r.Weights = init(r.dims.OutCaps, r.dims.InCaps, r.dims.DataOut, r.dims.DataIn)
	}
}

// WithSeed seeds the noise and dropout draws.
func WithSeed(seed uint64) RoutingOption {
	return func(r *RoutingLayer) { r.src = rand.NewSource(seed) }
}

// NewRoutingLayer creates a routing layer from inCaps capsules of length
// dataIn to outCaps capsules of length dataOut. Route weights start at zero
// unless WithRouteWeights is given.
func NewRoutingLayer(inCaps, outCaps, dataIn, dataOut, iterations int, opts ...RoutingOption) (*RoutingLayer, error) {
	if inCaps <= 0 || outCaps <= 0 || dataIn <= 0 || dataOut <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "routing dimensions must be positive: in_caps=%d out_caps=%d data_in=%d data_out=%d",
			inCaps, outCaps, dataIn, dataOut)
	}
	if iterations <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "routing iterations must be positive, got %d", iterations)
	}
	r := &RoutingLayer{
		dims:       RouteDims{OutCaps: outCaps, InCaps: inCaps, DataOut: dataOut, DataIn: dataIn},
		iterations: iterations,
		priors:     PlainPriors{},
		src:        rand.NewSource(1),
	}
	r.Weights = tensor.New(outCaps, inCaps, dataOut, dataIn)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Iterations returns the number of routing rounds.
func (r *RoutingLayer) Iterations() int { return r.iterations }

// RoutingTrace records the intermediate state of one forward pass. Logits[k]
// and Probs[k] are the logits and routing coefficients used in round k, both
// laid out as [B, out_caps, in_caps, data_out].
type RoutingTrace struct {
	Dims   RouteDims
	Priors []float64
	Logits [][]float64
	Probs  [][]float64
}

// Forward routes x [B, data_in, in_caps] to [B, data_out, out_caps].
//
// With random set, N(0, 0.01²) noise is added to a copy of the route weights.
// dropout ∈ [0, 1] is the probability of zeroing each prior vote vector; the
// kept votes are not rescaled.
func (r *RoutingLayer) Forward(x *tensor.Tensor, random bool, dropout float64) (*tensor.Tensor, error) {
	return r.route(x, random, dropout, nil)
}

// ForwardTrace is Forward that also returns the per-round logits and routing
// coefficients.
func (r *RoutingLayer) ForwardTrace(x *tensor.Tensor, random bool, dropout float64) (*tensor.Tensor, *RoutingTrace, error) {
	trace := &RoutingTrace{}
	out, err := r.route(x, random, dropout, trace)
	if err != nil {
		return nil, nil, err
	}
	return out, trace, nil
}

// checkInput validates x against the route weights before any computation.
func (r *RoutingLayer) checkInput(x *tensor.Tensor, dropout float64) (RouteDims, error) {
	dims := r.dims
	if x.Rank() != 3 || x.Shape[0] <= 0 || x.Shape[1] != dims.DataIn || x.Shape[2] != dims.InCaps {
		return dims, errors.Wrapf(ErrShapeMismatch, "routing input %v, route weights %v expect [B, %d, %d]",
			x.Shape, r.Weights.Shape, dims.DataIn, dims.InCaps)
	}
	if err := r.Weights.CheckShape(dims.OutCaps, dims.InCaps, dims.DataOut, dims.DataIn); err != nil {
		return dims, errors.Wrap(ErrShapeMismatch, err.Error())
	}
	if dropout < 0 || dropout > 1 {
		return dims, errors.Wrapf(ErrConfiguration, "dropout must be in [0, 1], got %g", dropout)
	}
	if !x.AllFinite() {
		return dims, errors.Wrapf(ErrNumericInstability, "routing input contains NaN or Inf")
	}
	dims.Batch = x.Shape[0]
	return dims, nil
}

func (r *RoutingLayer) route(x *tensor.Tensor, random bool, dropout float64, trace *RoutingTrace) (*tensor.Tensor, error) {
	dims, err := r.checkInput(x, dropout)
	if err != nil {
		return nil, err
	}

	// x[b, data, in_caps] → xt[b, in_caps, data]
	xt := make([]float64, dims.Batch*dims.InCaps*dims.DataIn)
	for b := 0; b < dims.Batch; b++ {
		for k := 0; k < dims.DataIn; k++ {
			for i := 0; i < dims.InCaps; i++ {
				xt[dims.Input(b, i)+k] = x.Data[(b*dims.DataIn+k)*dims.InCaps+i]
			}
		}
	}

	weights := r.Weights.Data
	if random {
		weights = r.noisyWeights()
	}

	priors, err := r.priors.Priors(weights, xt, dims)
	if err != nil {
		return nil, errors.WithMessage(err, "computing prior votes")
	}
	if dropout > 0 {
		r.dropVotes(priors, dims, dropout)
	}

	logits := make([]float64, len(priors))
	probs := make([]float64, len(priors))
	outputs := make([]float64, dims.Batch*dims.OutCaps*dims.DataOut)
	column := make([]float64, dims.InCaps)
	if trace != nil {
		trace.Dims = dims
		trace.Priors = priors
	}

	for it := 0; it < r.iterations; it++ {
		// probs = softmax(logits) over in_caps, for each (b, o, d).
		for b := 0; b < dims.Batch; b++ {
			for o := 0; o < dims.OutCaps; o++ {
				for d := 0; d < dims.DataOut; d++ {
					for i := range column {
						column[i] = logits[dims.Vote(b, o, i)+d]
					}
					nn.SoftmaxInto(column, column)
					for i, p := range column {
						probs[dims.Vote(b, o, i)+d] = p
					}
				}
			}
		}
		if trace != nil {
			trace.Logits = append(trace.Logits, append([]float64(nil), logits...))
			trace.Probs = append(trace.Probs, append([]float64(nil), probs...))
		}

		// outputs = squash(Σ_in probs·priors) over data_out.
		for b := 0; b < dims.Batch; b++ {
			for o := 0; o < dims.OutCaps; o++ {
				v := outputs[(b*dims.OutCaps+o)*dims.DataOut : (b*dims.OutCaps+o+1)*dims.DataOut]
				for d := range v {
					v[d] = 0
				}
				for i := 0; i < dims.InCaps; i++ {
					base := dims.Vote(b, o, i)
					for d := range v {
						v[d] += probs[base+d] * priors[base+d]
					}
				}
				SquashVec(v)
			}
		}

		if it == r.iterations-1 {
			break
		}
		// Agreement: each vote's logit grows with its product against the
		// current output. The update is a plain accumulator, not a path back
		// into the priors.
		for b := 0; b < dims.Batch; b++ {
			for o := 0; o < dims.OutCaps; o++ {
				v := outputs[(b*dims.OutCaps+o)*dims.DataOut : (b*dims.OutCaps+o+1)*dims.DataOut]
				for i := 0; i < dims.InCaps; i++ {
					base := dims.Vote(b, o, i)
					for d, vd := range v {
						logits[base+d] += priors[base+d] * vd
					}
				}
			}
		}
		klog.V(2).Infof("routing round %d/%d done", it+1, r.iterations)
	}

	// outputs[b, o, d] → [b, d, o]
	out := tensor.New(dims.Batch, dims.DataOut, dims.OutCaps)
	for b := 0; b < dims.Batch; b++ {
		for o := 0; o < dims.OutCaps; o++ {
			for d := 0; d < dims.DataOut; d++ {
				out.Data[(b*dims.DataOut+d)*dims.OutCaps+o] = outputs[(b*dims.OutCaps+o)*dims.DataOut+d]
			}
		}
	}
	if !out.AllFinite() {
		return nil, errors.Wrapf(ErrNumericInstability, "routing output contains NaN or Inf")
	}
	return out, nil
}

// noisyWeights returns a fresh copy of the route weights with independent
// N(0, 0.01²) noise on every element.
func (r *RoutingLayer) noisyWeights() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	noise := distuv.Normal{Mu: 0, Sigma: RouteNoiseStdDev, Src: r.src}
	w := make([]float64, len(r.Weights.Data))
	for i, v := range r.Weights.Data {
		w[i] = v + noise.Rand()
	}
	return w
}

// dropVotes zeroes whole vote vectors, one Bernoulli draw per (b, o, i).
func (r *RoutingLayer) dropVotes(priors []float64, dims RouteDims, p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := distuv.Bernoulli{P: 1 - p, Src: r.src}
	for b := 0; b < dims.Batch; b++ {
		for o := 0; o < dims.OutCaps; o++ {
			for i := 0; i < dims.InCaps; i++ {
				if keep.Rand() == 0 {
					base := dims.Vote(b, o, i)
					for d := 0; d < dims.DataOut; d++ {
						priors[base+d] = 0
					}
				}
			}
		}
	}
}

// Params returns the route weights.
func (r *RoutingLayer) Params(prefix string) []layers.Param {
	return []layers.Param{{Name: layers.JoinName(prefix, "route_weights"), Value: r.Weights, Trainable: true}}
}

func (r *RoutingLayer) Tag() string {
	return fmt.Sprintf("Routing_%dx%d->%dx%d_it%d", r.dims.InCaps, r.dims.DataIn, r.dims.OutCaps, r.dims.DataOut, r.iterations)
}
