// Package servercore orchestrates the server side of the protocol:
// preprocessing a large static set once, then answering `oprf` and `query`
// RPCs against it (spec.md §4.6 ServerCore, §6 External Interfaces).
// Grounded on original_source/moya/overlap/server.py's Server class.
package servercore

import (
	"math/big"
	"sync/atomic"

	"github.com/moya-app/overlap-psi/internal/curve"
	"github.com/moya-app/overlap-psi/internal/heenc"
	"github.com/moya-app/overlap-psi/internal/oprf"
	"github.com/moya-app/overlap-psi/internal/polyeval"
	"github.com/moya-app/overlap-psi/internal/psierr"
	"github.com/moya-app/overlap-psi/internal/psiparams"
	"github.com/moya-app/overlap-psi/internal/simplehash"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Server holds the OPRF key and preprocessed polynomial table for one
// static server set. Safe for concurrent `OPRF`/`Query` calls, including
// while a concurrent Preprocess call swaps in a rebuilt table: transposed
// is held behind an atomic.Pointer so readers never observe a half-built
// table (spec.md §5 "single-writer/many-reader" concurrency model).
type Server struct {
	params      psiparams.Parameters
	oprfKey     *big.Int
	serverPoint curve.Point
	prf         *oprf.OPRF
	transposed  atomic.Pointer[[][]uint64] // polyeval.Preprocess output, transposed
}

// New builds a Server for the given shared Parameters and OPRF secret key.
// The key is reduced modulo the P192 generator order, matching
// original_source's `self.key % self._oprf.order_of_generator`.
func New(params psiparams.Parameters, oprfServerKey *big.Int) *Server {
	prf := oprf.New(params)
	keyMod := new(big.Int).Mod(oprfServerKey, oprf.Order())
	point := curve.ScalarMult(keyMod, curve.Generator())
	return &Server{
		params:      params,
		oprfKey:     oprfServerKey,
		serverPoint: point,
		prf:         prf,
	}
}

// Parameters returns the negotiated Parameters, served by `GET
// /parameters` (spec.md §6).
func (s *Server) Parameters() psiparams.Parameters {
	return s.params
}

// Preprocess fingerprints the server's raw set, simple-hashes it, and
// builds the transposed per-bucket polynomial coefficient table
// (original_source's Server.preprocess/preprocess_transposed). Run once
// before serving queries; may be called again to rebuild against a new
// set.
func (s *Server) Preprocess(serverSet []uint64) error {
	fingerprinted := s.prf.ServerOffline(serverSet, s.serverPoint)

	sh := simplehash.New(s.params)
	if err := sh.InsertAll(fingerprinted); err != nil {
		return err
	}

	coeffs, err := polyeval.Preprocess(s.params, sh.Padded())
	if err != nil {
		return err
	}
	table := polyeval.Transpose(coeffs)
	s.transposed.Store(&table)
	return nil
}

// Transposed exposes the preprocessing output for persistence
// (internal/store's SavePreprocessed); nil until Preprocess has run.
func (s *Server) Transposed() [][]uint64 {
	p := s.transposed.Load()
	if p == nil {
		return nil
	}
	return *p
}

// LoadTransposed restores a previously computed polynomial table without
// rerunning OPRF/SimpleHash/polyeval against the raw set (internal/store's
// LoadPreprocessed, used to skip reprocessing a large static set on every
// process restart). table must have been produced by a Server built from
// the same Parameters and OPRF key.
func (s *Server) LoadTransposed(table [][]uint64) {
	s.transposed.Store(&table)
}

// OPRF runs the oblivious evaluation step against blinded client points,
// the body of the `POST /oprf` RPC (spec.md §4.1 "Server online").
func (s *Server) OPRF(points []oprf.Point) ([]oprf.Point, error) {
	out, err := s.prf.ServerOnline(s.oprfKey, points)
	if err != nil {
		return nil, psierr.New(psierr.CryptoFailure, "servercore.OPRF", err)
	}
	return out, nil
}

// Query decodes a client's public context and windowed ciphertext query,
// evaluates the per-minibin dot product against every bucket, and returns
// the alpha serialized response ciphertexts — the body of the `POST
// /query` RPC (spec.md §4.5 "Query", §6 wire format).
//
// encQuery is shaped [base-1][logB_ell], matching windowing.Matrix; a nil
// cell means that window position was not sent because its exponent
// exceeds minibin_capacity.
func (s *Server) Query(publicContext []byte, encQuery [][][]byte) ([][]byte, error) {
	table := s.transposed.Load()
	if table == nil {
		return nil, psierr.New(psierr.ProtocolViolation, "servercore.Query", errNotPreprocessed{})
	}

	heParams, _, rlk, err := heenc.DeserializePublicContext(publicContext)
	if err != nil {
		return nil, psierr.New(psierr.CryptoFailure, "servercore.Query", err)
	}
	if heParams.PlaintextModulus() != s.params.PlainModulus || heParams.N() != s.params.PolyModulusDegree {
		return nil, psierr.New(psierr.ParameterMismatch, "servercore.Query", errParamMismatch{})
	}

	window, err := decodeWindow(heParams, encQuery)
	if err != nil {
		return nil, err
	}

	evaluator := heenc.NewEvaluator(heParams, rlk)
	answers, err := polyeval.RunQuery(evaluator, s.params, *table, window)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, len(answers))
	for i, ct := range answers {
		b, err := heenc.SerializeCiphertext(ct)
		if err != nil {
			return nil, psierr.New(psierr.CryptoFailure, "servercore.Query", err)
		}
		out[i] = b
	}
	return out, nil
}

// decodeWindow deserializes every non-nil wire ciphertext in encQuery into
// the EncryptedWindow shape polyeval operates on.
func decodeWindow(params heenc.Parameters, encQuery [][][]byte) (polyeval.EncryptedWindow, error) {
	window := make(polyeval.EncryptedWindow, len(encQuery))
	for i, row := range encQuery {
		window[i] = make([]*rlwe.Ciphertext, len(row))
		for j, cell := range row {
			if cell == nil {
				continue
			}
			ct, err := heenc.DeserializeCiphertext(params, cell)
			if err != nil {
				return nil, psierr.New(psierr.CryptoFailure, "servercore.Query", err)
			}
			window[i][j] = ct
		}
	}
	return window, nil
}

type errNotPreprocessed struct{}

func (errNotPreprocessed) Error() string { return "servercore: Preprocess has not been run" }

type errParamMismatch struct{}

func (errParamMismatch) Error() string {
	return "servercore: client BFV parameters disagree with server Parameters"
}
