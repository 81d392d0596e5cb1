package ckkswrapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

func TestHeContextRoundTrip(t *testing.T) {
	h, err := NewHeContext()
	require.NoError(t, err)

	vals := []float64{3.1415926535, -2, 0.25}
	ct, err := h.EncryptVector(vals)
	require.NoError(t, err)
	assert.True(t, HasLevels(ct, 1))

	got, err := h.DecryptVector(ct)
	require.NoError(t, err)
	require.Len(t, got, h.Params.MaxSlots())
	assert.InDeltaSlice(t, vals, got[:len(vals)], 1e-6)
	assert.InDelta(t, 0, got[len(vals)], 1e-6)
}

func TestServerKitMulRotate(t *testing.T) {
	h, err := NewHeContext()
	require.NoError(t, err)
	kit := h.GenServerKit([]int{1, 2})

	ct, err := h.EncryptVector([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	mask := ckks.NewPlaintext(h.Params, ct.Level())
	require.NoError(t, kit.Encoder.Encode([]float64{2, 2, 2, 2}, mask))
	ct2, err := kit.Evaluator.MulNew(ct, mask)
	require.NoError(t, err)
	require.NoError(t, kit.Evaluator.Rescale(ct2, ct2))
	rot, err := kit.Evaluator.RotateNew(ct2, 1)
	require.NoError(t, err)

	got, err := h.DecryptVector(rot)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 6, 8, 0}, got[:4], 1e-4)
}

func TestEncryptVectorTooLong(t *testing.T) {
	h, err := NewHeContext()
	require.NoError(t, err)
	_, err = h.EncryptVector(make([]float64, h.Params.MaxSlots()+1))
	require.Error(t, err)
}

func TestCountingEvaluator(t *testing.T) {
	h, err := NewHeContext()
	require.NoError(t, err)
	kit := h.GenServerKit([]int{1})
	eval := NewCountingEvaluator(kit.Evaluator)

	ct, err := h.EncryptVector([]float64{1, 2})
	require.NoError(t, err)
	pt := ckks.NewPlaintext(h.Params, ct.Level())
	require.NoError(t, kit.Encoder.Encode([]float64{1, 1}, pt))

	prod, err := eval.MulNew(ct, pt)
	require.NoError(t, err)
	require.NoError(t, eval.Rescale(prod, prod))
	rot, err := eval.RotateNew(prod, 1)
	require.NoError(t, err)
	require.NoError(t, eval.Add(prod, rot, prod))

	assert.Equal(t, OpCounts{Rotate: 1, Mul: 1, Rescale: 1, Add: 1}, eval.Counts())
	got, err := h.DecryptVector(prod)
	require.NoError(t, err)
	assert.InDelta(t, 3, got[0], 1e-4)

	eval.ResetCounters()
	assert.Equal(t, OpCounts{}, eval.Counts())
}
