// Package ckkswrapper bundles the CKKS parameters, keys and codecs needed to
// evaluate linear maps on encrypted vectors.
package ckkswrapper

import (
	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// DefaultLogN is the ring degree used by NewHeContext.
const DefaultLogN = 13

// HeContext holds the client side of a CKKS setup: parameters, the key
// generator and the secret key, plus encoder, encryptor and decryptor.
type HeContext struct {
	Params    ckks.Parameters
	KeyGen    *rlwe.KeyGenerator
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor

	sk  *rlwe.SecretKey
	rlk *rlwe.RelinearizationKey
}

// ServerKit is what an evaluator needs: an evaluator loaded with the
// relinearization key and the requested rotation keys, and its own encoder.
type ServerKit struct {
	Evaluator *ckks.Evaluator
	Encoder   *ckks.Encoder
}

// NewHeContext creates a context with DefaultLogN.
func NewHeContext() (*HeContext, error) {
	return NewHeContextWithLogN(DefaultLogN)
}

// NewHeContextWithLogN creates a context for ring degree 2^logN with a
// 2^40 default scale and two multiplicative levels.
func NewHeContextWithLogN(logN int) (*HeContext, error) {
	params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:            logN,
		LogQ:            []int{55, 40, 40},
		LogP:            []int{45},
		LogDefaultScale: 40,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create CKKS parameters for logN=%d", logN)
	}
	return NewHeContextWithParams(params), nil
}

// NewHeContextWithParams generates fresh keys for params.
func NewHeContextWithParams(params ckks.Parameters) *HeContext {
	kgen := rlwe.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()
	return &HeContext{
		Params:    params,
		KeyGen:    kgen,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: rlwe.NewEncryptor(params, pk),
		Decryptor: rlwe.NewDecryptor(params, sk),
		sk:        sk,
		rlk:       kgen.GenRelinearizationKeyNew(sk),
	}
}

// GenServerKit generates rotation keys for the given rotation steps and
// returns an evaluator holding them.
func (h *HeContext) GenServerKit(rots []int) *ServerKit {
	galEls := make([]uint64, len(rots))
	for i, rot := range rots {
		galEls[i] = h.Params.GaloisElement(rot)
	}
	evk := rlwe.NewMemEvaluationKeySet(h.rlk, h.KeyGen.GenGaloisKeysNew(galEls, h.sk)...)
	return &ServerKit{
		Evaluator: ckks.NewEvaluator(h.Params, evk),
		Encoder:   ckks.NewEncoder(h.Params),
	}
}

// EncryptVector encodes values (zero-padded to the slot count) at the top
// level and encrypts them.
func (h *HeContext) EncryptVector(values []float64) (*rlwe.Ciphertext, error) {
	if len(values) > h.Params.MaxSlots() {
		return nil, errors.Errorf("vector of %d values exceeds %d slots", len(values), h.Params.MaxSlots())
	}
	pt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(values, pt); err != nil {
		return nil, errors.Wrap(err, "encode failed")
	}
	ct, err := h.Encryptor.EncryptNew(pt)
	if err != nil {
		return nil, errors.Wrap(err, "encryption failed")
	}
	return ct, nil
}

// DecryptVector decrypts ct and returns the real parts of all slots.
func (h *HeContext) DecryptVector(ct *rlwe.Ciphertext) ([]float64, error) {
	pt := h.Decryptor.DecryptNew(ct)
	decoded := make([]complex128, h.Params.MaxSlots())
	if err := h.Encoder.Decode(pt, decoded); err != nil {
		return nil, errors.Wrap(err, "decode failed")
	}
	values := make([]float64, len(decoded))
	for i, c := range decoded {
		values[i] = real(c)
	}
	return values, nil
}

// HasLevels reports whether ct can still absorb n rescales.
func HasLevels(ct *rlwe.Ciphertext, n int) bool {
	return ct.Level() >= n
}
