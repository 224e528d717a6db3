// Package polyeval implements the server side of spec.md §4.5
// PolynomialEval: encoding a padded SimpleHash bucket as per-minibin
// vanishing-polynomial coefficients, and answering an encrypted windowed
// query by reconstructing every needed power via a balanced binary
// multiplication tree and taking the per-minibin dot product with those
// coefficients. Grounded on
// original_source/moya/overlap/server.py (int2base, low_depth_multiplication,
// coeffs_from_roots, Server.preprocess/power_reconstruct/run_overlap_query).
package polyeval

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/moya-app/overlap-psi/internal/heenc"
	"github.com/moya-app/overlap-psi/internal/psierr"
	"github.com/moya-app/overlap-psi/internal/psiparams"
)

// Int2Base returns the base-b digit expansion of n, least-significant
// digit first (original_source's int2base, spec.md §4.5 step 1).
func Int2Base(n, b int) []int {
	if n < b {
		return []int{n}
	}
	return append([]int{n % b}, Int2Base(n/b, b)...)
}

// CoeffsFromRoots expands prod_i (x - roots[i]) mod modulus into its
// coefficient vector in descending-degree order (coeffs[0] is the
// leading, degree-len(roots) coefficient, always 1 since the polynomial
// is monic), matching original_source's coeffs_from_roots/numpy.convolve
// output order.
func CoeffsFromRoots(roots []uint64, modulus uint64) []uint64 {
	mod := int64(modulus)
	// ascending[d] is the coefficient of x^d; built incrementally as each
	// root's linear factor is multiplied in.
	ascending := []int64{1 % mod}
	for _, r := range roots {
		root := int64(r % modulus)
		next := make([]int64, len(ascending)+1)
		for k := range next {
			var a, b int64
			if k-1 >= 0 && k-1 < len(ascending) {
				a = ascending[k-1]
			}
			if k < len(ascending) {
				b = ascending[k]
			}
			v := (a - root*b) % mod
			if v < 0 {
				v += mod
			}
			next[k] = v
		}
		ascending = next
	}
	descending := make([]uint64, len(ascending))
	for i, c := range ascending {
		descending[len(ascending)-1-i] = uint64(c)
	}
	return descending
}

// BucketPolynomials encodes one SimpleHash bucket's alpha minibins as the
// concatenation of their vanishing-polynomial coefficient vectors
// (original_source's Server.preprocess bin loop).
func BucketPolynomials(params psiparams.Parameters, bucket []uint64) ([]uint64, error) {
	minibin := params.MinibinCapacity()
	if len(bucket) != params.BinCapacity {
		return nil, psierr.New(psierr.ParameterMismatch, "polyeval.BucketPolynomials",
			fmt.Errorf("bucket has %d entries, want bin_capacity=%d", len(bucket), params.BinCapacity))
	}
	out := make([]uint64, 0, params.Alpha*(minibin+1))
	for j := 0; j < params.Alpha; j++ {
		roots := bucket[minibin*j : minibin*j+minibin]
		out = append(out, CoeffsFromRoots(roots, params.PlainModulus)...)
	}
	return out, nil
}

// Preprocess turns the server's padded SimpleHash table into the
// per-bucket polynomial-coefficient matrix (spec.md §4.5 "Preprocess"),
// one row per bucket with alpha*(minibin_capacity+1) columns.
func Preprocess(params psiparams.Parameters, padded [][]uint64) ([][]uint64, error) {
	out := make([][]uint64, len(padded))
	for i, bucket := range padded {
		coeffs, err := BucketPolynomials(params, bucket)
		if err != nil {
			return nil, err
		}
		out[i] = coeffs
	}
	return out, nil
}

// Transpose flips a bucket-major coefficient matrix into a
// coefficient-major one, one row per polynomial coefficient position,
// one column per bucket (original_source's Server.preprocess_transposed),
// needed because each BFV plaintext batches one coefficient position
// across every bucket (poly_modulus_degree == number_of_bins).
func Transpose(coeffs [][]uint64) [][]uint64 {
	if len(coeffs) == 0 {
		return nil
	}
	rows := len(coeffs)
	cols := len(coeffs[0])
	out := make([][]uint64, cols)
	for j := 0; j < cols; j++ {
		out[j] = make([]uint64, rows)
		for i := 0; i < rows; i++ {
			out[j][i] = coeffs[i][j]
		}
	}
	return out
}

// EncryptedWindow is the server's view of the client's query cells: each
// is either a ciphertext the client sent directly (exponent - 1 <
// minibin_capacity), or nil when the client left it out because its
// exponent exceeds minibin_capacity; powers missing from the window are
// rebuilt by PowerReconstruct (spec.md §4.5 "Query"). Indexed [i][j]
// exactly like windowing.Matrix.
type EncryptedWindow [][]*rlwe.Ciphertext

// PowerReconstruct rebuilds Enc(y^exponent) from the base-ell window
// ciphertexts via a balanced binary multiplication tree, following
// original_source's Server.power_reconstruct.
func PowerReconstruct(evaluator *heenc.Evaluator, params psiparams.Parameters, window EncryptedWindow, exponent int) (*rlwe.Ciphertext, error) {
	digits := Int2Base(exponent, params.Base())
	var necessary []*rlwe.Ciphertext
	for j, x := range digits {
		if x >= 1 {
			val := window[x-1][j]
			if val == nil {
				return nil, psierr.New(psierr.ProtocolViolation, "polyeval.PowerReconstruct",
					fmt.Errorf("window cell (%d,%d) required for exponent %d but absent", x-1, j, exponent))
			}
			necessary = append(necessary, val)
		}
	}
	return lowDepthMultiplication(evaluator, necessary)
}

// lowDepthMultiplication multiplies a list of ciphertexts using a
// balanced binary tree so the multiplicative depth stays
// ceil(log2(len(vector))) instead of len(vector)-1 (original_source's
// low_depth_multiplication, spec.md §4.5 "balanced binary multiplication
// tree").
func lowDepthMultiplication(evaluator *heenc.Evaluator, vector []*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	switch len(vector) {
	case 0:
		return nil, psierr.New(psierr.ProtocolViolation, "polyeval.lowDepthMultiplication", fmt.Errorf("empty power list"))
	case 1:
		return vector[0], nil
	case 2:
		return evaluator.MulRelin(vector[0], vector[1])
	}
	next := make([]*rlwe.Ciphertext, 0, (len(vector)+1)/2)
	pairs := len(vector) / 2
	for i := 0; i < pairs; i++ {
		prod, err := evaluator.MulRelin(vector[2*i], vector[2*i+1])
		if err != nil {
			return nil, err
		}
		next = append(next, prod)
	}
	if len(vector)%2 == 1 {
		next = append(next, vector[len(vector)-1])
	}
	return lowDepthMultiplication(evaluator, next)
}

// AllPowers reconstructs Enc(y^minibin_capacity), Enc(y^(minibin_capacity-1)),
// ..., Enc(y^1), in that descending order, directly reusing ciphertexts
// the client already sent for exponents that fit in the window
// (original_source's run_overlap_query "all_powers"/"all_powers_orig").
// powers[m] == Enc(y^(minibin_capacity - m)).
func AllPowers(evaluator *heenc.Evaluator, params psiparams.Parameters, window EncryptedWindow) ([]*rlwe.Ciphertext, error) {
	minibin := params.MinibinCapacity()
	orig := make([]*rlwe.Ciphertext, minibin) // orig[k] == Enc(y^(k+1)) if sent directly
	base := params.Base()
	for i := 0; i < base-1; i++ {
		power := 1
		for j := 0; j < params.LogBEll(); j++ {
			exponent := (i + 1) * power
			if exponent-1 < minibin {
				orig[exponent-1] = window[i][j]
			}
			power *= base
		}
	}

	powers := make([]*rlwe.Ciphertext, minibin)
	for m := 0; m < minibin; m++ {
		k := minibin - 1 - m // descending: m=0 -> k=minibin-1 -> exponent minibin
		if orig[k] != nil {
			powers[m] = orig[k]
			continue
		}
		p, err := PowerReconstruct(evaluator, params, window, k+1)
		if err != nil {
			return nil, err
		}
		powers[m] = p
	}
	return powers, nil
}

// RunQuery computes the alpha dot-product ciphertexts answering a query,
// one per minibin partition of every bucket, matching original_source's
// run_overlap_query. transposedCoeffs is Preprocess's output after
// Transpose; each row has poly_modulus_degree entries (one per bucket),
// and coefficients within a minibin's (minibin_capacity+1)-row block are
// in descending-degree order (leading coefficient, always 1, first).
func RunQuery(evaluator *heenc.Evaluator, params psiparams.Parameters, transposedCoeffs [][]uint64, window EncryptedWindow) ([]*rlwe.Ciphertext, error) {
	powers, err := AllPowers(evaluator, params, window)
	if err != nil {
		return nil, err
	}
	minibin := params.MinibinCapacity()

	answers := make([]*rlwe.Ciphertext, params.Alpha)
	for i := 0; i < params.Alpha; i++ {
		// Row (minibin+1)*i holds the leading coefficient, always 1, so
		// powers[0] (== Enc(y^minibin_capacity)) is used unscaled.
		dotProduct := powers[0]
		for j := 1; j < minibin; j++ {
			term, err := evaluator.MulPlainScalar(powers[j], transposedCoeffs[(minibin+1)*i+j])
			if err != nil {
				return nil, err
			}
			dotProduct, err = evaluator.Add(dotProduct, term)
			if err != nil {
				return nil, err
			}
		}
		dotProduct, err = evaluator.AddPlainScalar(dotProduct, transposedCoeffs[(minibin+1)*i+minibin])
		if err != nil {
			return nil, err
		}
		answers[i] = dotProduct
	}
	return answers, nil
}
