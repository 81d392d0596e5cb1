package capsule

import (
	"sync"

	"capsnet/core/ckkswrapper"

	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
	"k8s.io/klog/v2"
)

// EncryptedPriors computes the prior votes with the input capsules under CKKS
// encryption. The route weights stay in plaintext.
//
// Slot layout for one input capsule vector x of length data_in, padded to a
// power-of-two block:
//
//	ct   = [x | x | ... | x]            (data_out blocks)
//	mask = [W[o,i,0,:] | ... | W[o,i,data_out-1,:]]
//
// ct·mask is summed inside each block with log2(block) rotations, after which
// slot r·block holds vote component r.
type EncryptedPriors struct {
	he    *ckkswrapper.HeContext
	kit   *ckkswrapper.ServerKit
	eval  *ckkswrapper.CountingEvaluator
	block int

	mu    sync.Mutex // the evaluator keeps scratch buffers
	total ckkswrapper.OpCounts
}

// NewEncryptedPriors prepares rotation keys for data_in-length capsules routed
// into data_out-length votes.
func NewEncryptedPriors(he *ckkswrapper.HeContext, dataIn, dataOut int) (*EncryptedPriors, error) {
	if dataIn <= 0 || dataOut <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "encrypted priors need positive sizes, got data_in=%d data_out=%d", dataIn, dataOut)
	}
	block := 1
	for block < dataIn {
		block <<= 1
	}
	if slots := he.Params.MaxSlots(); block*dataOut > slots {
		return nil, errors.Wrapf(ErrConfiguration, "%d vote rows of %d slots exceed the %d CKKS slots", dataOut, block, slots)
	}
	var rots []int
	for step := 1; step < block; step <<= 1 {
		rots = append(rots, step)
	}
	klog.V(1).Infof("encrypted priors: logN=%d block=%d rotations=%v", he.Params.LogN(), block, rots)
	kit := he.GenServerKit(rots)
	return &EncryptedPriors{he: he, kit: kit, eval: ckkswrapper.NewCountingEvaluator(kit.Evaluator), block: block}, nil
}

func (e *EncryptedPriors) Priors(weights, x []float64, dims RouteDims) ([]float64, error) {
	if dims.DataIn > e.block || dims.DataOut*e.block > e.he.Params.MaxSlots() {
		return nil, errors.Wrapf(ErrShapeMismatch, "encrypted priors built for blocks of %d, got data_in=%d data_out=%d",
			e.block, dims.DataIn, dims.DataOut)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eval.ResetCounters()
	defer func() {
		c := e.eval.Counts()
		e.total.Rotate += c.Rotate
		e.total.Mul += c.Mul
		e.total.Rescale += c.Rescale
		e.total.Add += c.Add
		klog.V(2).Infof("encrypted priors for %d votes: %s", dims.Batch*dims.OutCaps*dims.InCaps, c)
	}()

	priors := make([]float64, dims.PriorsLen())
	packed := make([]float64, dims.DataOut*e.block)
	mask := make([]float64, dims.DataOut*e.block)
	for b := 0; b < dims.Batch; b++ {
		for i := 0; i < dims.InCaps; i++ {
			in := x[dims.Input(b, i) : dims.Input(b, i)+dims.DataIn]
			for r := 0; r < dims.DataOut; r++ {
				copy(packed[r*e.block:], in)
			}
			ct, err := e.he.EncryptVector(packed)
			if err != nil {
				return nil, errors.WithMessagef(err, "encrypting capsule %d of batch %d", i, b)
			}
			if !ckkswrapper.HasLevels(ct, 1) {
				return nil, errors.Errorf("ciphertext at level %d cannot absorb a rescale", ct.Level())
			}

			for o := 0; o < dims.OutCaps; o++ {
				w := weights[dims.Weight(o, i) : dims.Weight(o, i)+dims.DataOut*dims.DataIn]
				for r := 0; r < dims.DataOut; r++ {
					copy(mask[r*e.block:r*e.block+dims.DataIn], w[r*dims.DataIn:(r+1)*dims.DataIn])
				}
				vote, err := e.dot(ct, mask)
				if err != nil {
					return nil, errors.WithMessagef(err, "vote (%d, %d, %d)", b, o, i)
				}
				dst := priors[dims.Vote(b, o, i) : dims.Vote(b, o, i)+dims.DataOut]
				for r := range dst {
					dst[r] = vote[r*e.block]
				}
			}
		}
	}
	return priors, nil
}

// OpCounts returns the homomorphic operations performed by all Priors calls.
func (e *EncryptedPriors) OpCounts() ckkswrapper.OpCounts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// dot multiplies ct by the plaintext mask and sums every block into its first
// slot, returning the decrypted slots.
func (e *EncryptedPriors) dot(ct *rlwe.Ciphertext, mask []float64) ([]float64, error) {
	eval := e.eval
	pt := ckks.NewPlaintext(e.he.Params, ct.Level())
	if err := e.kit.Encoder.Encode(mask, pt); err != nil {
		return nil, errors.Wrap(err, "encoding weight mask")
	}
	prod, err := eval.MulNew(ct, pt)
	if err != nil {
		return nil, errors.Wrap(err, "mul")
	}
	if err := eval.Rescale(prod, prod); err != nil {
		return nil, errors.Wrap(err, "rescale")
	}
	for step := 1; step < e.block; step <<= 1 {
		rot, err := eval.RotateNew(prod, step)
		if err != nil {
			return nil, errors.Wrapf(err, "rotate by %d", step)
		}
		if err := eval.Add(prod, rot, prod); err != nil {
			return nil, errors.Wrap(err, "add")
		}
	}
	return e.he.DecryptVector(prod)
}
