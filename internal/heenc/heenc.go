// Package heenc wraps the lattigo BFV scheme behind the narrow surface
// PolynomialEval and ClientCore/ServerCore actually need: context
// creation, encoding, encryption/decryption, ciphertext<->plaintext
// arithmetic, and serialization (spec.md §9 "BFV library dependency").
//
// tenseal (the reference implementation's HE library) bundles encryption
// parameters and a public key into one serializable ts.Context; lattigo
// keeps bfv.Parameters and *rlwe.PublicKey as separate values, so
// PublicContext below is the minimal envelope this repo needs to round-trip
// the same information over the wire (see DESIGN.md "Open Questions").
package heenc

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/bits"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bfv"
)

// Parameters is the BFV parameter set negotiated from psiparams.Parameters
// (plain_modulus, poly_modulus_degree).
type Parameters struct {
	bfv.Parameters
}

// NewParameters builds BFV parameters with poly_modulus_degree slots and
// the given plaintext modulus (spec.md §3 "plain_modulus,
// poly_modulus_degree: BFV parameters").
func NewParameters(polyModulusDegree int, plainModulus uint64) (Parameters, error) {
	logN := bits.Len(uint(polyModulusDegree)) - 1
	literal := bfv.ParametersLiteral{
		LogN:             logN,
		LogQ:             []int{55, 55, 55},
		LogP:             []int{55},
		PlaintextModulus: plainModulus,
	}
	p, err := bfv.NewParametersFromLiteral(literal)
	if err != nil {
		return Parameters{}, fmt.Errorf("heenc: building BFV parameters: %w", err)
	}
	return Parameters{p}, nil
}

// KeyPair holds a BFV secret/public key pair, generated once per client
// session (spec.md §4.6 ClientCore preprocessing).
type KeyPair struct {
	Secret *rlwe.SecretKey
	Public *rlwe.PublicKey
}

// GenerateKeyPair generates a fresh BFV key pair under params.
func GenerateKeyPair(params Parameters) *KeyPair {
	kgen := rlwe.NewKeyGenerator(params.Parameters.Parameters)
	sk, pk := kgen.GenKeyPairNew()
	return &KeyPair{Secret: sk, Public: pk}
}

// GenerateRelinKey derives a relinearization key from the client's secret
// key. tenseal's ts.context bundles an equivalent relin key into the
// public context automatically (spec.md §9 "BFV library dependency");
// lattigo requires it be generated and shipped explicitly, so
// PublicContext below carries it alongside the public key.
func GenerateRelinKey(params Parameters, sk *rlwe.SecretKey) *rlwe.RelinearizationKey {
	kgen := rlwe.NewKeyGenerator(params.Parameters.Parameters)
	return kgen.GenRelinearizationKeyNew(sk)
}

// PublicContext is the wire envelope for {Parameters, PublicKey, RelinKey},
// the lattigo equivalent of a tenseal public ts.Context (see package doc):
// everything the server needs to encode/add plaintexts into a ciphertext's
// shape and to multiply-and-relinearize ciphertexts, without access to the
// secret key.
type PublicContext struct {
	Literal   bfv.ParametersLiteral
	PublicKey []byte
	RelinKey  []byte
}

// NewPublicContext builds the wire envelope for the given params/keys.
func NewPublicContext(params Parameters, pk *rlwe.PublicKey, rlk *rlwe.RelinearizationKey) (*PublicContext, error) {
	keyBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("heenc: marshaling public key: %w", err)
	}
	rlkBytes, err := rlk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("heenc: marshaling relinearization key: %w", err)
	}
	return &PublicContext{
		Literal:   params.ParametersLiteral(),
		PublicKey: keyBytes,
		RelinKey:  rlkBytes,
	}, nil
}

// Serialize gob-encodes the envelope for transmission as the `query`
// RPC's `public_context` field (spec.md §6).
func (c *PublicContext) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("heenc: serializing public context: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializePublicContext decodes a PublicContext and rebuilds its
// Parameters, PublicKey, and RelinearizationKey.
func DeserializePublicContext(data []byte) (Parameters, *rlwe.PublicKey, *rlwe.RelinearizationKey, error) {
	var env PublicContext
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return Parameters{}, nil, nil, fmt.Errorf("heenc: deserializing public context: %w", err)
	}
	params, err := bfv.NewParametersFromLiteral(env.Literal)
	if err != nil {
		return Parameters{}, nil, nil, fmt.Errorf("heenc: rebuilding parameters: %w", err)
	}
	pk := rlwe.NewPublicKey(params.Parameters)
	if err := pk.UnmarshalBinary(env.PublicKey); err != nil {
		return Parameters{}, nil, nil, fmt.Errorf("heenc: unmarshaling public key: %w", err)
	}
	rlk := rlwe.NewRelinearizationKey(params.Parameters)
	if err := rlk.UnmarshalBinary(env.RelinKey); err != nil {
		return Parameters{}, nil, nil, fmt.Errorf("heenc: unmarshaling relinearization key: %w", err)
	}
	return Parameters{params}, pk, rlk, nil
}

// Encoder batch-encodes/decodes uint64 vectors into/from BFV plaintexts,
// one poly_modulus_degree-wide plaintext per bucket-indexed vector
// (spec.md §4.4 "the ciphertext's poly_modulus_degree plaintext slots hold
// the W[i][j] values for the respective cuckoo slots").
type Encoder struct {
	params  Parameters
	encoder *bfv.Encoder
}

// NewEncoder builds an Encoder for params.
func NewEncoder(params Parameters) *Encoder {
	return &Encoder{params: params, encoder: bfv.NewEncoder(params.Parameters)}
}

// Encode packs values (one per plaintext slot) into a fresh plaintext.
func (e *Encoder) Encode(values []uint64) (*rlwe.Plaintext, error) {
	pt := bfv.NewPlaintext(e.params.Parameters, e.params.MaxLevel())
	if err := e.encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("heenc: encoding plaintext: %w", err)
	}
	return pt, nil
}

// Decode unpacks every slot of pt back into a uint64 vector.
func (e *Encoder) Decode(pt *rlwe.Plaintext) ([]uint64, error) {
	values := make([]uint64, e.params.N())
	if err := e.encoder.Decode(pt, values); err != nil {
		return nil, fmt.Errorf("heenc: decoding plaintext: %w", err)
	}
	return values, nil
}

// Encryptor encrypts plaintexts under a public key.
type Encryptor struct {
	params    Parameters
	encryptor *rlwe.Encryptor
}

// NewEncryptor builds an Encryptor bound to pk.
func NewEncryptor(params Parameters, pk *rlwe.PublicKey) *Encryptor {
	return &Encryptor{params: params, encryptor: rlwe.NewEncryptor(params.Parameters.Parameters, pk)}
}

// Encrypt encrypts pt into a fresh ciphertext.
func (e *Encryptor) Encrypt(pt *rlwe.Plaintext) (*rlwe.Ciphertext, error) {
	ct := bfv.NewCiphertext(e.params.Parameters, 1, e.params.MaxLevel())
	if err := e.encryptor.Encrypt(pt, ct); err != nil {
		return nil, fmt.Errorf("heenc: encrypting: %w", err)
	}
	return ct, nil
}

// EncryptUint64 is a convenience combining Encode+Encrypt for a batch of
// values (one ClientCore query ciphertext per (i,j) position, spec.md §4.4).
func (e *Encoder) EncryptUint64(enc *Encryptor, values []uint64) (*rlwe.Ciphertext, error) {
	pt, err := e.Encode(values)
	if err != nil {
		return nil, err
	}
	return enc.Encrypt(pt)
}

// Decryptor decrypts ciphertexts under a secret key.
type Decryptor struct {
	params    Parameters
	decryptor *rlwe.Decryptor
}

// NewDecryptor builds a Decryptor bound to sk.
func NewDecryptor(params Parameters, sk *rlwe.SecretKey) *Decryptor {
	return &Decryptor{params: params, decryptor: rlwe.NewDecryptor(params.Parameters.Parameters, sk)}
}

// Decrypt decrypts ct into a fresh plaintext.
func (d *Decryptor) Decrypt(ct *rlwe.Ciphertext) *rlwe.Plaintext {
	pt := bfv.NewPlaintext(d.params.Parameters, ct.Level())
	d.decryptor.Decrypt(ct, pt)
	return pt
}

// Evaluator performs the ciphertext<->plaintext arithmetic
// PolynomialEval needs: ciphertext x ciphertext multiplication (+
// relinearization) for the power-reconstruction tree, and ciphertext +
// plaintext-vector / x plaintext-vector for the per-minibin dot product
// (spec.md §9 "BFV library dependency").
type Evaluator struct {
	params    Parameters
	evaluator *bfv.Evaluator
	encoder   *Encoder
}

// NewEvaluator builds an Evaluator from a relinearization key alone — the
// shape the server actually has (spec.md §4.7 ServerCore.Query: the
// server never sees a secret key, only the RelinKey shipped inside the
// client's PublicContext).
func NewEvaluator(params Parameters, rlk *rlwe.RelinearizationKey) *Evaluator {
	evk := rlwe.NewMemEvaluationKeySet(rlk)
	return &Evaluator{
		params:    params,
		evaluator: bfv.NewEvaluator(params.Parameters, evk),
		encoder:   NewEncoder(params),
	}
}

// MulRelin multiplies two ciphertexts and relinearizes the result, the
// single-depth-step the balanced multiplication tree uses repeatedly
// (spec.md §4.5 "balanced binary multiplication tree").
func (e *Evaluator) MulRelin(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := e.evaluator.MulNew(a, b)
	if err != nil {
		return nil, fmt.Errorf("heenc: multiplying ciphertexts: %w", err)
	}
	if err := e.evaluator.Relinearize(out, out); err != nil {
		return nil, fmt.Errorf("heenc: relinearizing: %w", err)
	}
	return out, nil
}

// MulPlainScalar multiplies ciphertext a by the plaintext vector coeffs
// (one transposed polynomial-table row), used by the per-minibin dot
// product (spec.md §4.5 step 2).
func (e *Evaluator) MulPlainScalar(a *rlwe.Ciphertext, coeffs []uint64) (*rlwe.Ciphertext, error) {
	pt, err := e.encoder.Encode(coeffs)
	if err != nil {
		return nil, err
	}
	out, err := e.evaluator.MulNew(a, pt)
	if err != nil {
		return nil, fmt.Errorf("heenc: multiplying by plaintext: %w", err)
	}
	return out, nil
}

// AddPlainScalar adds the plaintext vector coeffs to ciphertext a, used
// for the dot product's constant (degree-0) term.
func (e *Evaluator) AddPlainScalar(a *rlwe.Ciphertext, coeffs []uint64) (*rlwe.Ciphertext, error) {
	pt, err := e.encoder.Encode(coeffs)
	if err != nil {
		return nil, err
	}
	out, err := e.evaluator.AddNew(a, pt)
	if err != nil {
		return nil, fmt.Errorf("heenc: adding plaintext: %w", err)
	}
	return out, nil
}

// Add adds two ciphertexts.
func (e *Evaluator) Add(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := e.evaluator.AddNew(a, b)
	if err != nil {
		return nil, fmt.Errorf("heenc: adding ciphertexts: %w", err)
	}
	return out, nil
}

// SerializeCiphertext marshals ct to bytes for the wire (spec.md §6
// "Ciphertexts are serialised in the HE library's native form").
func SerializeCiphertext(ct *rlwe.Ciphertext) ([]byte, error) {
	b, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("heenc: serializing ciphertext: %w", err)
	}
	return b, nil
}

// DeserializeCiphertext unmarshals a ciphertext under params.
func DeserializeCiphertext(params Parameters, data []byte) (*rlwe.Ciphertext, error) {
	ct := bfv.NewCiphertext(params.Parameters, 1, params.MaxLevel())
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("heenc: deserializing ciphertext: %w", err)
	}
	return ct, nil
}
