package ckkswrapper

import (
	"fmt"

	"capsnet/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// OpCounts tallies homomorphic operations by kind.
type OpCounts struct {
	Rotate  int
	Mul     int
	Rescale int
	Add     int
}

func (c OpCounts) String() string {
	return fmt.Sprintf("Rotates: %d, Muls: %d, Rescales: %d, Adds: %d", c.Rotate, c.Mul, c.Rescale, c.Add)
}

// CountingEvaluator wraps a ckks.Evaluator to count operations. Like the
// evaluator it wraps, it is not safe for concurrent use.
type CountingEvaluator struct {
	eval   *ckks.Evaluator
	counts OpCounts
}

// NewCountingEvaluator wraps eval.
func NewCountingEvaluator(eval *ckks.Evaluator) *CountingEvaluator {
	return &CountingEvaluator{eval: eval}
}

// Counts returns the operations performed since the last reset.
func (w *CountingEvaluator) Counts() OpCounts { return w.counts }

// ResetCounters resets all operation counters to zero
func (w *CountingEvaluator) ResetCounters() { w.counts = OpCounts{} }

// PrintCounters prints the current operation counts.
// Respects utils.Verbose flag - does nothing if Verbose is false.
func (w *CountingEvaluator) PrintCounters(phaseName string) {
	if !utils.Verbose {
		return
	}
	fmt.Fprintf(utils.Output, "=== Phase: %s ===\n%s\n", phaseName, w.counts)
}

// RotateNew wraps eval.RotateNew and counts rotations
func (w *CountingEvaluator) RotateNew(ct *rlwe.Ciphertext, k int) (*rlwe.Ciphertext, error) {
	w.counts.Rotate++
	return w.eval.RotateNew(ct, k)
}

// MulNew wraps eval.MulNew for a plaintext operand and counts multiplications
func (w *CountingEvaluator) MulNew(ct *rlwe.Ciphertext, pt *rlwe.Plaintext) (*rlwe.Ciphertext, error) {
	w.counts.Mul++
	return w.eval.MulNew(ct, pt)
}

// Rescale wraps eval.Rescale and counts rescales
func (w *CountingEvaluator) Rescale(ct, ctOut *rlwe.Ciphertext) error {
	w.counts.Rescale++
	return w.eval.Rescale(ct, ctOut)
}

// Add wraps eval.Add and counts additions
func (w *CountingEvaluator) Add(ct1, ct2, ctOut *rlwe.Ciphertext) error {
	w.counts.Add++
	return w.eval.Add(ct1, ct2, ctOut)
}
