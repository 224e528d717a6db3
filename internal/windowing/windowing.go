// Package windowing implements the encoding of a cuckoo slot value into a
// sparse matrix of powers (spec.md §4.4), letting the server reconstruct
// every power up to minibin_capacity via a low-depth multiplication tree
// instead of transmitting them all.
package windowing

import (
	"math/big"

	"github.com/moya-app/overlap-psi/internal/psiparams"
)

// Matrix is a (base-1) x logB_ell grid of plaintext powers; a nil cell
// means that exponent is not needed (exponent - 1 >= bound), matching
// spec.md §4.4's "absent" entries and the wire `null`s in §6's enc_query.
type Matrix [][]*big.Int

// Window computes W[i][j] = y^((i+1)*base^j) mod modulus whenever
// (i+1)*base^j - 1 < bound, else leaves that cell nil (spec.md §4.4).
func Window(params psiparams.Parameters, y uint64, bound int, modulus uint64) Matrix {
	base := params.Base()
	rows := base - 1
	cols := params.LogBEll()

	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]*big.Int, cols)
	}

	mod := new(big.Int).SetUint64(modulus)
	yBig := new(big.Int).SetUint64(y)

	boundBig := big.NewInt(int64(bound))
	baseToJ := big.NewInt(1)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			// (i+1)*base^j - 1 < bound  <=>  (i+1)*base^j <= bound
			exponent := new(big.Int).Mul(big.NewInt(int64(i+1)), baseToJ)
			if exponent.Cmp(boundBig) <= 0 {
				m[i][j] = new(big.Int).Exp(yBig, exponent, mod)
			}
		}
		baseToJ.Mul(baseToJ, big.NewInt(int64(base)))
	}
	return m
}

// ProcessClientSlots windows every cuckoo slot value, substituting
// dummyClient for empty slots (spec.md §4.3 "After all client fingerprints
// have been inserted, empty slots are implicitly filled with
// dummy_client").
func ProcessClientSlots(params psiparams.Parameters, slots []uint64, present []bool) []Matrix {
	dummy := params.DummyClient()
	out := make([]Matrix, len(slots))
	for i, v := range slots {
		y := v
		if !present[i] {
			y = dummy
		}
		out[i] = Window(params, y, params.MinibinCapacity(), params.PlainModulus)
	}
	return out
}
