package heenc

import (
	"testing"

	"github.com/moya-app/overlap-psi/internal/psiparams"
)

func testParams(t *testing.T) Parameters {
	t.Helper()
	pp := psiparams.Default()
	params, err := NewParameters(pp.PolyModulusDegree, pp.PlainModulus)
	if err != nil {
		t.Fatalf("NewParameters: %v", err)
	}
	return params
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	params := testParams(t)
	kp := GenerateKeyPair(params)
	encoder := NewEncoder(params)
	encryptor := NewEncryptor(params, kp.Public)
	decryptor := NewDecryptor(params, kp.Secret)

	values := make([]uint64, params.N())
	for i := range values {
		values[i] = uint64(i % 7)
	}

	ct, err := encoder.EncryptUint64(encryptor, values)
	if err != nil {
		t.Fatalf("EncryptUint64: %v", err)
	}
	pt := decryptor.Decrypt(ct)
	got, err := encoder.Decode(pt)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Fatalf("slot %d: got %d want %d", i, got[i], v)
		}
	}
}

func TestMulRelinMatchesPlaintextProduct(t *testing.T) {
	params := testParams(t)
	kp := GenerateKeyPair(params)
	encoder := NewEncoder(params)
	encryptor := NewEncryptor(params, kp.Public)
	decryptor := NewDecryptor(params, kp.Secret)
	rlk := GenerateRelinKey(params, kp.Secret)
	evaluator := NewEvaluator(params, rlk)

	a := make([]uint64, params.N())
	b := make([]uint64, params.N())
	for i := range a {
		a[i] = uint64(i%5 + 1)
		b[i] = uint64(i%3 + 1)
	}

	ctA, err := encoder.EncryptUint64(encryptor, a)
	if err != nil {
		t.Fatalf("encrypt a: %v", err)
	}
	ctB, err := encoder.EncryptUint64(encryptor, b)
	if err != nil {
		t.Fatalf("encrypt b: %v", err)
	}

	ctProd, err := evaluator.MulRelin(ctA, ctB)
	if err != nil {
		t.Fatalf("MulRelin: %v", err)
	}
	got, err := encoder.Decode(decryptor.Decrypt(ctProd))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range a {
		want := (a[i] * b[i]) % params.PlaintextModulus()
		if got[i] != want {
			t.Fatalf("slot %d: got %d want %d", i, got[i], want)
		}
	}
}

func TestMulPlainScalarAndAddPlainScalar(t *testing.T) {
	params := testParams(t)
	kp := GenerateKeyPair(params)
	encoder := NewEncoder(params)
	encryptor := NewEncryptor(params, kp.Public)
	decryptor := NewDecryptor(params, kp.Secret)
	rlk := GenerateRelinKey(params, kp.Secret)
	evaluator := NewEvaluator(params, rlk)

	a := make([]uint64, params.N())
	coeffs := make([]uint64, params.N())
	bias := make([]uint64, params.N())
	for i := range a {
		a[i] = uint64(i%4 + 1)
		coeffs[i] = uint64(i%6 + 1)
		bias[i] = uint64(i % 2)
	}

	ctA, err := encoder.EncryptUint64(encryptor, a)
	if err != nil {
		t.Fatalf("encrypt a: %v", err)
	}
	ctMul, err := evaluator.MulPlainScalar(ctA, coeffs)
	if err != nil {
		t.Fatalf("MulPlainScalar: %v", err)
	}
	ctOut, err := evaluator.AddPlainScalar(ctMul, bias)
	if err != nil {
		t.Fatalf("AddPlainScalar: %v", err)
	}

	got, err := encoder.Decode(decryptor.Decrypt(ctOut))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range a {
		want := (a[i]*coeffs[i] + bias[i]) % params.PlaintextModulus()
		if got[i] != want {
			t.Fatalf("slot %d: got %d want %d", i, got[i], want)
		}
	}
}

func TestPublicContextRoundTrip(t *testing.T) {
	params := testParams(t)
	kp := GenerateKeyPair(params)

	rlk := GenerateRelinKey(params, kp.Secret)
	ctx, err := NewPublicContext(params, kp.Public, rlk)
	if err != nil {
		t.Fatalf("NewPublicContext: %v", err)
	}
	data, err := ctx.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	gotParams, gotPK, gotRlk, err := DeserializePublicContext(data)
	if err != nil {
		t.Fatalf("DeserializePublicContext: %v", err)
	}
	if gotParams.N() != params.N() {
		t.Fatalf("N mismatch: got %d want %d", gotParams.N(), params.N())
	}

	// The rebuilt public key must encrypt/decrypt consistently with the
	// original secret key, and the rebuilt relin key must still support
	// ciphertext x ciphertext multiplication (the server's only use of it).
	encoder := NewEncoder(gotParams)
	encryptor := NewEncryptor(gotParams, gotPK)
	decryptor := NewDecryptor(params, kp.Secret)
	evaluator := NewEvaluator(gotParams, gotRlk)

	values := make([]uint64, params.N())
	for i := range values {
		values[i] = uint64(i % 2)
	}
	ct, err := encoder.EncryptUint64(encryptor, values)
	if err != nil {
		t.Fatalf("EncryptUint64: %v", err)
	}
	ctSquared, err := evaluator.MulRelin(ct, ct)
	if err != nil {
		t.Fatalf("MulRelin: %v", err)
	}
	got, err := encoder.Decode(decryptor.Decrypt(ctSquared))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range values {
		want := (v * v) % gotParams.PlaintextModulus()
		if got[i] != want {
			t.Fatalf("slot %d: got %d want %d", i, got[i], want)
		}
	}
}

func TestCiphertextSerializationRoundTrip(t *testing.T) {
	params := testParams(t)
	kp := GenerateKeyPair(params)
	encoder := NewEncoder(params)
	encryptor := NewEncryptor(params, kp.Public)
	decryptor := NewDecryptor(params, kp.Secret)

	values := make([]uint64, params.N())
	for i := range values {
		values[i] = uint64(i % 11)
	}
	ct, err := encoder.EncryptUint64(encryptor, values)
	if err != nil {
		t.Fatalf("EncryptUint64: %v", err)
	}

	data, err := SerializeCiphertext(ct)
	if err != nil {
		t.Fatalf("SerializeCiphertext: %v", err)
	}
	restored, err := DeserializeCiphertext(params, data)
	if err != nil {
		t.Fatalf("DeserializeCiphertext: %v", err)
	}
	got, err := encoder.Decode(decryptor.Decrypt(restored))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Fatalf("slot %d: got %d want %d", i, got[i], v)
		}
	}
}
