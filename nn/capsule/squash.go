package capsule

import (
	"math"

	"capsnet/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// squashEpsilon keeps v/‖v‖ defined at v = 0.
const squashEpsilon = 1e-8

// maxSquashLength caps the squashed length below 1 where ‖v‖²/(1+‖v‖²)
// rounds to 1.
const maxSquashLength = 1 - 1e-12

// SquashVec squashes v in place:
//
//	squash(v) = ‖v‖²/(1+‖v‖²) · v/(‖v‖+ε)
//
// The result keeps v's direction and has norm in [0, 1) for any finite v.
// squash(0) = 0.
func SquashVec(v []float64) {
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return
	}
	// ‖v‖²/(1+‖v‖²) without forming ‖v‖², which overflows for large v.
	length := math.Min(1/(1+1/(norm*norm)), maxSquashLength)
	floats.Scale(length/(norm+squashEpsilon), v)
}

// Squash returns a copy of t with every vector along axis squashed. Non-finite
// input yields ErrNumericInstability.
func Squash(t *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	if axis < 0 {
		axis += t.Rank()
	}
	if axis < 0 || axis >= t.Rank() {
		return nil, errors.Wrapf(ErrShapeMismatch, "squash axis %d out of range for shape %v", axis, t.Shape)
	}
	if !t.AllFinite() {
		return nil, errors.Wrapf(ErrNumericInstability, "squash input %v contains NaN or Inf", t.Shape)
	}
	out := t.Clone()
	n := t.Shape[axis]
	inner := tensor.Volume(t.Shape[axis+1:])
	outer := tensor.Volume(t.Shape[:axis])
	if inner == 1 {
		for o := 0; o < outer; o++ {
			SquashVec(out.Data[o*n : (o+1)*n])
		}
		return out, nil
	}

	v := make([]float64, n)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			for k := 0; k < n; k++ {
				v[k] = out.Data[base+k*inner]
			}
			SquashVec(v)
			for k := 0; k < n; k++ {
				out.Data[base+k*inner] = v[k]
			}
		}
	}
	return out, nil
}
