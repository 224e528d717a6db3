package polyeval

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/moya-app/overlap-psi/internal/heenc"
	"github.com/moya-app/overlap-psi/internal/psiparams"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

func TestInt2Base(t *testing.T) {
	cases := []struct {
		n, b int
		want []int
	}{
		{0, 2, []int{0}},
		{1, 2, []int{1}},
		{5, 2, []int{1, 0, 1}},
		{6, 4, []int{2, 1}},
	}
	for _, c := range cases {
		got := Int2Base(c.n, c.b)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("Int2Base(%d,%d) = %v, want %v", c.n, c.b, got, c.want)
		}
	}
}

func evalPoly(coeffsDesc []uint64, x, modulus uint64) uint64 {
	acc := new(big.Int)
	mod := new(big.Int).SetUint64(modulus)
	xBig := new(big.Int).SetUint64(x)
	for _, c := range coeffsDesc {
		acc.Mul(acc, xBig)
		acc.Add(acc, new(big.Int).SetUint64(c))
		acc.Mod(acc, mod)
	}
	return acc.Uint64()
}

func TestCoeffsFromRootsVanishAtRoots(t *testing.T) {
	modulus := uint64(536903681)
	roots := []uint64{487639465982 % modulus, 3259695623874827 % modulus, 123456789}
	coeffs := CoeffsFromRoots(roots, modulus)

	if len(coeffs) != len(roots)+1 {
		t.Fatalf("expected %d coefficients, got %d", len(roots)+1, len(coeffs))
	}
	if coeffs[0] != 1 {
		t.Fatalf("leading coefficient must be 1 (monic), got %d", coeffs[0])
	}
	for _, r := range roots {
		if got := evalPoly(coeffs, r, modulus); got != 0 {
			t.Fatalf("polynomial does not vanish at root %d: got %d", r, got)
		}
	}
	if got := evalPoly(coeffs, 999999, modulus); got == 0 {
		t.Fatalf("polynomial unexpectedly vanishes at a non-root")
	}
}

func TestBucketPolynomialsLength(t *testing.T) {
	params := psiparams.Default()
	bucket := make([]uint64, params.BinCapacity)
	for i := range bucket {
		bucket[i] = uint64(i + 1)
	}
	coeffs, err := BucketPolynomials(params, bucket)
	if err != nil {
		t.Fatalf("BucketPolynomials: %v", err)
	}
	want := params.Alpha * (params.MinibinCapacity() + 1)
	if len(coeffs) != want {
		t.Fatalf("got %d coefficients, want %d", len(coeffs), want)
	}
}

// smallParams builds a tiny parameter set so the encrypted power
// reconstruction/dot-product test runs with a manageable poly_modulus_degree.
func smallParams() psiparams.Parameters {
	return psiparams.Parameters{
		HashSeeds:         []uint32{3325110220, 2243899793, 1862406458},
		OutputBits:        4,
		PlainModulus:      65537,
		PolyModulusDegree: 1 << 4,
		BinCapacity:       8,
		Alpha:             2,
		Ell:               1,
	}
}

func TestRunQueryFindsRootAtZero(t *testing.T) {
	params := smallParams()
	minibin := params.MinibinCapacity()

	heParams, err := heenc.NewParameters(params.PolyModulusDegree, params.PlainModulus)
	if err != nil {
		t.Fatalf("heenc.NewParameters: %v", err)
	}
	kp := heenc.GenerateKeyPair(heParams)
	encoder := heenc.NewEncoder(heParams)
	encryptor := heenc.NewEncryptor(heParams, kp.Public)
	decryptor := heenc.NewDecryptor(heParams, kp.Secret)
	rlk := heenc.GenerateRelinKey(heParams, kp.Secret)
	evaluator := heenc.NewEvaluator(heParams, rlk)

	// One bucket (poly_modulus_degree == number_of_bins is not required for
	// this focused unit test; RunQuery only needs one column per
	// transposed-coefficient row), with alpha minibins of minibin_capacity
	// roots each. Slot 0 of minibin 0 is the value the client will query.
	root := uint64(7)
	bucket := make([]uint64, params.BinCapacity)
	bucket[0] = root
	for i := 1; i < params.BinCapacity; i++ {
		bucket[i] = uint64(100 + i)
	}
	coeffs, err := BucketPolynomials(params, bucket)
	if err != nil {
		t.Fatalf("BucketPolynomials: %v", err)
	}
	transposed := Transpose([][]uint64{coeffs})

	// Build the window ciphertexts for y=root directly (bypassing the
	// client's cuckoo/windowing pipeline, which is covered in its own
	// package's tests).
	base := params.Base()
	rows := base - 1
	cols := params.LogBEll()
	window := make(EncryptedWindow, rows)
	for i := 0; i < rows; i++ {
		window[i] = make([]*rlwe.Ciphertext, cols)
	}
	baseToJ := 1
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			exponent := (i + 1) * baseToJ
			if exponent-1 < minibin {
				y := new(big.Int).Exp(big.NewInt(int64(root)), big.NewInt(int64(exponent)), big.NewInt(int64(params.PlainModulus))).Uint64()
				values := make([]uint64, heParams.N())
				values[0] = y
				ct, err := encoder.EncryptUint64(encryptor, values)
				if err != nil {
					t.Fatalf("encrypt window cell (%d,%d): %v", i, j, err)
				}
				window[i][j] = ct
			}
		}
		baseToJ *= base
	}

	answers, err := RunQuery(evaluator, params, transposed, window)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if len(answers) != params.Alpha {
		t.Fatalf("got %d answers, want %d", len(answers), params.Alpha)
	}

	decoded, err := encoder.Decode(decryptor.Decrypt(answers[0]))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded[0] != 0 {
		t.Fatalf("expected zero at slot 0 (root present in minibin), got %d", decoded[0])
	}
}
