package capsule

import (
	"gonum.org/v1/gonum/mat"
)

// RouteDims names the axes of the routing computation. Every buffer in the
// routing layer is indexed through it, never through tensor rank.
type RouteDims struct {
	Batch   int
	OutCaps int
	InCaps  int
	DataOut int
	DataIn  int
}

// Vote returns the offset of vote (b, o, i) in a [B, out, in, data_out] buffer.
func (d RouteDims) Vote(b, o, i int) int {
	return ((b*d.OutCaps+o)*d.InCaps + i) * d.DataOut
}

// Weight returns the offset of the [data_out, data_in] block (o, i) of the
// route weights.
func (d RouteDims) Weight(o, i int) int {
	return (o*d.InCaps + i) * d.DataOut * d.DataIn
}

// Input returns the offset of capsule i of batch element b in the transposed
// [B, in, data_in] input.
func (d RouteDims) Input(b, i int) int {
	return (b*d.InCaps + i) * d.DataIn
}

// PriorsLen is the size of the [B, out, in, data_out] priors buffer.
func (d RouteDims) PriorsLen() int {
	return d.Batch * d.OutCaps * d.InCaps * d.DataOut
}

// PriorEvaluator computes the prior votes
//
//	priors[b, o, i, :] = weights[o, i] · x[b, i, :]
//
// for weights [out, in, data_out, data_in] and transposed input
// [B, in, data_in]. Batch and output capsules are independent broadcast axes.
type PriorEvaluator interface {
	Priors(weights, x []float64, dims RouteDims) ([]float64, error)
}

// PlainPriors evaluates votes in the clear with one matrix-vector product per
// (batch, output capsule, input capsule).
type PlainPriors struct{}

func (PlainPriors) Priors(weights, x []float64, dims RouteDims) ([]float64, error) {
	priors := make([]float64, dims.PriorsLen())
	for o := 0; o < dims.OutCaps; o++ {
		for i := 0; i < dims.InCaps; i++ {
			off := dims.Weight(o, i)
			w := mat.NewDense(dims.DataOut, dims.DataIn, weights[off:off+dims.DataOut*dims.DataIn])
			for b := 0; b < dims.Batch; b++ {
				in := mat.NewVecDense(dims.DataIn, x[dims.Input(b, i):dims.Input(b, i)+dims.DataIn])
				vote := mat.NewVecDense(dims.DataOut, priors[dims.Vote(b, o, i):dims.Vote(b, o, i)+dims.DataOut])
				vote.MulVec(w, in)
			}
		}
	}
	return priors, nil
}
