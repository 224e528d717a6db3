// Package curve implements point arithmetic on NIST P-192, the elliptic
// curve the overlap OPRF is defined over (spec: §4.1 "Curve: NIST P-192").
//
// The protocol's fingerprint extraction needs the raw affine x-coordinate of
// a curve point as an integer so it can be shifted and masked; no
// prime-order-group abstraction (Ristretto, Edwards) exposes that, so this
// package re-derives short-Weierstrass point addition/doubling and a
// double-and-add scalar multiplication directly over math/big, in the same
// spirit as crypto/elliptic's generic CurveParams implementation.
package curve

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// p192Curve holds the NIST P-192 domain parameters: y^2 = x^3 - 3x + B (mod P),
// a generator G of prime order N.
type p192Curve struct {
	P *big.Int // field prime
	N *big.Int // order of G
	B *big.Int
	Gx, Gy *big.Int
}

// Curve is the NIST P-192 domain, matching fastecdsa.curve.P192 /
// original_source's use of it.
var Curve = newP192()

func newP192() *p192Curve {
	hex := func(s string) *big.Int {
		v, ok := new(big.Int).SetString(s, 16)
		if !ok {
			panic("curve: invalid constant")
		}
		return v
	}
	return &p192Curve{
		P:  hex("fffffffffffffffffffffffffffffffeffffffffffffffff"),
		N:  hex("ffffffffffffffffffffffff99def836146bc9b1b4d22831"),
		B:  hex("64210519e59c80e70fa7e9ab72243049feb8deecc146b9b1"),
		Gx: hex("188da80eb03090f67cbf20eb43a18800f4ff0afd82ff1012"),
		Gy: hex("07192b95ffc8da78631011ed6b24cdd573f977a11e794811"),
	}
}

// Point is an affine point on P192, or the point at infinity when Inf is
// true. X and Y are exposed directly because the protocol's fingerprint
// formula operates on the integer value of X.
type Point struct {
	X, Y *big.Int
	Inf  bool
}

// Generator returns P192's base point G.
func Generator() Point {
	return Point{X: new(big.Int).Set(Curve.Gx), Y: new(big.Int).Set(Curve.Gy)}
}

// Infinity returns the point at infinity (additive identity).
func Infinity() Point {
	return Point{Inf: true}
}

// Order returns the order q of the generator, i.e. the scalar field modulus.
func Order() *big.Int {
	return new(big.Int).Set(Curve.N)
}

// FieldBitLen returns log_p = floor(log2(p)) + 1, the bit length of the
// P192 field prime (spec.md §4.1's "log_p").
func FieldBitLen() int {
	return Curve.P.BitLen()
}

// RandomScalar returns a cryptographically random scalar in [1, q).
// spec.md §9 Open Questions upgrades the reference implementation's
// non-cryptographic RNG to a CSPRNG for the OPRF client key.
func RandomScalar() (*big.Int, error) {
	qMinus1 := new(big.Int).Sub(Curve.N, big.NewInt(1))
	k, err := rand.Int(rand.Reader, qMinus1)
	if err != nil {
		return nil, err
	}
	return k.Add(k, big.NewInt(1)), nil
}

// IsOnCurve reports whether P lies on the P192 curve; used to reject
// malformed wire points (spec.md §7 CryptoFailure).
func IsOnCurve(p Point) bool {
	if p.Inf {
		return true
	}
	y2 := new(big.Int).Mul(p.Y, p.Y)
	y2.Mod(y2, Curve.P)

	x3 := new(big.Int).Mul(p.X, p.X)
	x3.Mul(x3, p.X)

	threeX := new(big.Int).Mul(p.X, big.NewInt(3))
	rhs := new(big.Int).Sub(x3, threeX)
	rhs.Add(rhs, Curve.B)
	rhs.Mod(rhs, Curve.P)

	return y2.Cmp(rhs) == 0
}

// Add computes the short-Weierstrass sum p+q.
func Add(p, q Point) Point {
	if p.Inf {
		return q
	}
	if q.Inf {
		return p
	}
	P := Curve.P
	if p.X.Cmp(q.X) == 0 {
		// Either doubling, or p == -q (sum is the point at infinity).
		sum := new(big.Int).Add(p.Y, q.Y)
		sum.Mod(sum, P)
		if sum.Sign() == 0 {
			return Infinity()
		}
		return double(p)
	}

	// lambda = (qy - py) / (qx - px) mod P
	num := new(big.Int).Sub(q.Y, p.Y)
	den := new(big.Int).Sub(q.X, p.X)
	den.Mod(den, P)
	den.ModInverse(den, P)
	lambda := num.Mul(num, den)
	lambda.Mod(lambda, P)

	return finish(p, q.X, lambda)
}

func double(p Point) Point {
	if p.Inf || p.Y.Sign() == 0 {
		return Infinity()
	}
	P := Curve.P

	// lambda = (3*px^2 - 3) / (2*py) mod P
	num := new(big.Int).Mul(p.X, p.X)
	num.Mul(num, big.NewInt(3))
	num.Sub(num, big.NewInt(3))
	num.Mod(num, P)

	den := new(big.Int).Lsh(p.Y, 1)
	den.Mod(den, P)
	den.ModInverse(den, P)

	lambda := num.Mul(num, den)
	lambda.Mod(lambda, P)

	return finish(p, p.X, lambda)
}

// finish computes the resulting point given one input's X, the other
// point's X, and the already-computed slope lambda. Shared by Add/double.
func finish(p Point, qx, lambda *big.Int) Point {
	P := Curve.P

	rx := new(big.Int).Mul(lambda, lambda)
	rx.Sub(rx, p.X)
	rx.Sub(rx, qx)
	rx.Mod(rx, P)

	ry := new(big.Int).Sub(p.X, rx)
	ry.Mul(ry, lambda)
	ry.Sub(ry, p.Y)
	ry.Mod(ry, P)

	return Point{X: rx, Y: ry}
}

// ScalarMult computes k*P via a left-to-right double-and-add ladder.
// k is reduced modulo the group order first.
func ScalarMult(k *big.Int, p Point) Point {
	k = new(big.Int).Mod(k, Curve.N)
	result := Infinity()
	base := p
	for i := k.BitLen() - 1; i >= 0; i-- {
		result = double(result)
		if result.Inf {
			result = Infinity()
		}
		if k.Bit(i) == 1 {
			result = Add(result, base)
		}
	}
	return result
}

// ErrInvalidPoint is returned when a wire-supplied point fails the curve
// equation check (spec.md §7 CryptoFailure: "EC point off-curve").
var ErrInvalidPoint = errors.New("curve: point is not on P192")

// FromCoordinates validates and builds a Point from wire integers.
func FromCoordinates(x, y *big.Int) (Point, error) {
	p := Point{X: new(big.Int).Set(x), Y: new(big.Int).Set(y)}
	if !IsOnCurve(p) {
		return Point{}, ErrInvalidPoint
	}
	return p, nil
}
