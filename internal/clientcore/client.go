// Package clientcore orchestrates the client side of the protocol:
// blind a small set, run it through the server's OPRF, cuckoo-hash and
// window the result, send an encrypted query, and recover which items
// matched (spec.md §4.7 ClientCore, §6 External Interfaces). Grounded on
// original_source/moya/overlap/client.py's Client class.
package clientcore

import (
	"context"
	"math/big"

	"github.com/moya-app/overlap-psi/internal/cuckoohash"
	"github.com/moya-app/overlap-psi/internal/curve"
	"github.com/moya-app/overlap-psi/internal/heenc"
	"github.com/moya-app/overlap-psi/internal/oprf"
	"github.com/moya-app/overlap-psi/internal/psierr"
	"github.com/moya-app/overlap-psi/internal/psiparams"
	"github.com/moya-app/overlap-psi/internal/windowing"
)

// Helper is the transport-agnostic interface a Client talks to — one of
// internal/transport/inprocess or internal/transport/httpclient
// (original_source's ClientHelperBase). query requests are always
// answered synchronously; ctx governs cancellation/deadlines.
type Helper interface {
	OPRF(ctx context.Context, points []oprf.Point) ([]oprf.Point, error)
	Query(ctx context.Context, publicContext []byte, encQuery [][][]byte) ([][]byte, error)
}

// Client runs the query protocol against a Helper for one session's key
// material (spec.md §4.7 "ClientCore"). A Client is single-use per
// get_intersection call in the sense that its BFV key pair is generated
// once at construction, matching original_source's per-Client context.
type Client struct {
	params psiparams.Parameters
	helper Helper
	prf    *oprf.OPRF
	key    *big.Int

	heParams heenc.Parameters
	keyPair  *heenc.KeyPair
	pubCtx   []byte
}

// New builds a Client for the given Parameters/Helper. If oprfClientKey is
// nil, a fresh CSPRNG key is generated (spec.md §9 Open Questions upgrades
// the reference implementation's non-cryptographic RNG).
func New(params psiparams.Parameters, helper Helper, oprfClientKey *big.Int) (*Client, error) {
	key := oprfClientKey
	if key == nil {
		k, err := curve.RandomScalar()
		if err != nil {
			return nil, psierr.New(psierr.CryptoFailure, "clientcore.New", err)
		}
		key = k
	}

	heParams, err := heenc.NewParameters(params.PolyModulusDegree, params.PlainModulus)
	if err != nil {
		return nil, psierr.New(psierr.ParameterMismatch, "clientcore.New", err)
	}
	kp := heenc.GenerateKeyPair(heParams)
	rlk := heenc.GenerateRelinKey(heParams, kp.Secret)
	pubCtx, err := heenc.NewPublicContext(heParams, kp.Public, rlk)
	if err != nil {
		return nil, psierr.New(psierr.CryptoFailure, "clientcore.New", err)
	}
	pubCtxBytes, err := pubCtx.Serialize()
	if err != nil {
		return nil, psierr.New(psierr.CryptoFailure, "clientcore.New", err)
	}

	return &Client{
		params:   params,
		helper:   helper,
		prf:      oprf.New(params),
		key:      key,
		heParams: heParams,
		keyPair:  kp,
		pubCtx:   pubCtxBytes,
	}, nil
}

// PreprocessOPRF blinds client_set against the client's own OPRF key,
// ready to send to the `oprf` RPC; callers may cache and resend this
// across multiple queries under the same key (original_source's
// Client.preprocess_oprf).
func (c *Client) PreprocessOPRF(clientSet []uint64) []oprf.Point {
	point := curve.ScalarMult(c.key, curve.Generator())
	return c.prf.ClientOffline(clientSet, point)
}

// Run drives the full post-blinding protocol: OPRF, cuckoo hashing,
// windowing, the encrypted query, and match recovery. It returns indices
// into the clientSet slice originally passed to PreprocessOPRF
// (original_source's Client.run).
func (c *Client) Run(ctx context.Context, blinded []oprf.Point) ([]int, error) {
	oprfResponse, err := c.helper.OPRF(ctx, blinded)
	if err != nil {
		return nil, psierr.New(psierr.TransportFailure, "clientcore.Run", err)
	}

	keyInverse := new(big.Int).ModInverse(c.key, oprf.Order())
	if keyInverse == nil {
		return nil, psierr.New(psierr.CryptoFailure, "clientcore.Run", errNoInverse{})
	}
	fingerprinted, err := c.prf.ClientOnline(keyInverse, oprfResponse)
	if err != nil {
		return nil, psierr.New(psierr.CryptoFailure, "clientcore.Run", err)
	}

	ch, err := cuckoohash.New(c.params)
	if err != nil {
		return nil, psierr.New(psierr.CryptoFailure, "clientcore.Run", err)
	}
	for _, item := range fingerprinted {
		if err := ch.Insert(item); err != nil {
			return nil, err
		}
	}

	n := c.params.NumberOfBins()
	slots := make([]uint64, n)
	present := make([]bool, n)
	for i := 0; i < n; i++ {
		v, ok := ch.Slot(i)
		present[i] = ok
		if ok {
			slots[i] = uint64(v)
		}
	}
	windowedItems := windowing.ProcessClientSlots(c.params, slots, present)

	encQuery, err := c.encryptQuery(windowedItems)
	if err != nil {
		return nil, err
	}

	answerBytes, err := c.helper.Query(ctx, c.pubCtx, encQuery)
	if err != nil {
		return nil, psierr.New(psierr.TransportFailure, "clientcore.Run", err)
	}

	return c.recoverMatches(answerBytes, slots, present, fingerprinted)
}

// encryptQuery builds one ciphertext per (i,j) window position with
// exponent at most minibin_capacity, each batching every cuckoo slot's
// windowed value into its poly_modulus_degree plaintext slots
// (original_source's Client.run query-construction loop).
func (c *Client) encryptQuery(windowedItems []windowing.Matrix) ([][][]byte, error) {
	base := c.params.Base()
	rows := base - 1
	cols := c.params.LogBEll()
	minibin := c.params.MinibinCapacity()
	n := len(windowedItems)

	encoder := heenc.NewEncoder(c.heParams)
	encryptor := heenc.NewEncryptor(c.heParams, c.keyPair.Public)

	out := make([][][]byte, rows)
	baseToJ := 1
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			if out[i] == nil {
				out[i] = make([][]byte, cols)
			}
			exponent := (i + 1) * baseToJ
			if exponent-1 >= minibin {
				continue
			}
			values := make([]uint64, c.heParams.N())
			for k := 0; k < n; k++ {
				values[k] = windowedItems[k][i][j].Uint64()
			}
			ct, err := encoder.EncryptUint64(encryptor, values)
			if err != nil {
				return nil, psierr.New(psierr.CryptoFailure, "clientcore.encryptQuery", err)
			}
			b, err := heenc.SerializeCiphertext(ct)
			if err != nil {
				return nil, psierr.New(psierr.CryptoFailure, "clientcore.encryptQuery", err)
			}
			out[i][j] = b
		}
		baseToJ *= base
	}
	return out, nil
}

// recoverMatches decrypts the server's alpha answer ciphertexts and, for
// every zero slot, reconstructs the original client item that produced it
// (original_source's Client.run decode loop).
func (c *Client) recoverMatches(answerBytes [][]byte, slots []uint64, present []bool, fingerprinted []uint64) ([]int, error) {
	decryptor := heenc.NewDecryptor(c.heParams, c.keyPair.Secret)
	encoder := heenc.NewEncoder(c.heParams)

	fingerprintIndex := make(map[uint64]int, len(fingerprinted))
	for i, f := range fingerprinted {
		if _, ok := fingerprintIndex[f]; !ok {
			fingerprintIndex[f] = i
		}
	}

	logNoHashes := uint(c.params.LogNoHashes())
	hashSeedMask := (uint64(1) << logNoHashes) - 1

	var matches []int
	for _, raw := range answerBytes {
		ct, err := heenc.DeserializeCiphertext(c.heParams, raw)
		if err != nil {
			return nil, psierr.New(psierr.CryptoFailure, "clientcore.recoverMatches", err)
		}
		values, err := encoder.Decode(decryptor.Decrypt(ct))
		if err != nil {
			return nil, psierr.New(psierr.CryptoFailure, "clientcore.recoverMatches", err)
		}
		for i, v := range values {
			if v != 0 {
				continue
			}
			tagged := slots[i]
			if !present[i] {
				tagged = c.params.DummyClient()
			}
			seedIndex := tagged & hashSeedMask
			seed := c.params.HashSeeds[seedIndex]
			prfed := cuckoohash.ReconstructItem(c.params, int64(tagged), uint64(i), seed)
			if idx, ok := fingerprintIndex[prfed]; ok {
				matches = append(matches, idx)
			}
		}
	}
	return matches, nil
}

// GetIntersection returns the subset of clientSet also present in the
// server's set (original_source's Client.get_intersection).
func (c *Client) GetIntersection(ctx context.Context, clientSet []uint64) ([]uint64, error) {
	blinded := c.PreprocessOPRF(clientSet)
	matches, err := c.Run(ctx, blinded)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(matches))
	for i, idx := range matches {
		out[i] = clientSet[idx]
	}
	return out, nil
}

// GetIntersectionCount returns only the size of the intersection
// (original_source's Client.get_intersection_count).
func (c *Client) GetIntersectionCount(ctx context.Context, clientSet []uint64) (int, error) {
	blinded := c.PreprocessOPRF(clientSet)
	matches, err := c.Run(ctx, blinded)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

type errNoInverse struct{}

func (errNoInverse) Error() string { return "clientcore: OPRF key has no inverse mod curve order" }
