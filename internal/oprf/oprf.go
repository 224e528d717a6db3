// Package oprf implements the two-party Oblivious Pseudorandom Function
// used to fingerprint items before they enter SimpleHash/CuckooHash
// (spec.md §4.1), over NIST P-192 (internal/curve).
//
// The protocol has four steps, split across client and server exactly as
// spec.md names them:
//
//  1. Client offline (blinding): ClientOffline computes item * (k_c * G).
//  2. Server online (oblivious evaluation): ServerOnline computes k_s * P.
//  3. Client online (unblinding): ClientOnline computes (k_c^-1) * P and
//     extracts the fingerprint.
//  4. Server offline: ServerOffline computes fp(item * k_s * G) directly,
//     used once when the server preprocesses its own set.
//
// All four steps parallelize their batch operations across a bounded
// worker pool (spec.md §5 "OPRF scalar-mult batches MUST be data-parallel
// across points; output order MUST preserve input order"), modeled on the
// tasks-channel worker pool in the lattigo dBFV PSI example.
package oprf

import (
	"math/big"
	"runtime"
	"sync"

	"github.com/moya-app/overlap-psi/internal/curve"
	"github.com/moya-app/overlap-psi/internal/psiparams"
)

// Point is an OPRF point (x, y) as carried by the `oprf` RPC; on the wire
// each point is a wire.OPRFPoint object with decimal-string coordinates.
type Point struct {
	X, Y *big.Int
}

// OPRF bundles the curve constants and the sigma_max-derived mask used by
// fingerprint extraction, parameterized per-session by Parameters.
type OPRF struct {
	params psiparams.Parameters
	mask   *big.Int
	// logP = floor(log2(p)) + 1, the bit length of the P192 field prime.
	logP int
}

// New builds an OPRF helper for the given shared Parameters.
func New(params psiparams.Parameters) *OPRF {
	mask := new(big.Int).Lsh(big.NewInt(1), uint(params.SigmaMax()))
	mask.Sub(mask, big.NewInt(1))
	return &OPRF{
		params: params,
		mask:   mask,
		logP:   curve.FieldBitLen(),
	}
}

// Generator returns P192's base point G, as an OPRF Point.
func Generator() Point {
	g := curve.Generator()
	return Point{X: g.X, Y: g.Y}
}

// Order is P192's generator order q; OPRF keys live in [1, q).
func Order() *big.Int {
	return curve.Order()
}

// fingerprint extracts the sigma_max-bit fingerprint from a curve point's
// x-coordinate: (P.x >> (log_p - sigma_max - 10)) & (2^sigma_max - 1),
// exactly as spec.md §4.1 defines it. The shift amount discards the ten
// most-variable top bits of P.x (spec.md §9, reproduced bit-exact without
// further rationale).
func (o *OPRF) fingerprint(p curve.Point) uint64 {
	shift := uint(o.logP - o.params.SigmaMax() - 10)
	v := new(big.Int).Rsh(p.X, shift)
	v.And(v, o.mask)
	return v.Uint64()
}

const defaultWorkers = 4 // matches original_source's number_of_processes

func workerCount(n int) int {
	w := defaultWorkers
	if cpu := runtime.GOMAXPROCS(0); cpu < w {
		w = cpu
	}
	if w < 1 {
		w = 1
	}
	if n < w {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// parallelIndexed runs fn(i) for each i in [0, n) across a bounded worker
// pool and returns once every call has completed. Results must be written
// by fn directly into index-addressed storage so that output order always
// matches input order, independent of scheduling order.
func parallelIndexed(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	workers := workerCount(n)
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	indices := make(chan int, n)
	for i := 0; i < n; i++ {
		indices <- i
	}
	close(indices)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				fn(i)
			}
		}()
	}
	wg.Wait()
}

// ServerOffline fingerprints the server's own raw item set directly against
// serverPoint = k_s * G (spec.md §4.1 "Server offline"). Used once during
// ServerCore preprocessing.
func (o *OPRF) ServerOffline(items []uint64, serverPoint curve.Point) []uint64 {
	out := make([]uint64, len(items))
	parallelIndexed(len(items), func(i int) {
		item := new(big.Int).SetUint64(items[i])
		p := curve.ScalarMult(item, serverPoint)
		out[i] = o.fingerprint(p)
	})
	return out
}

// ClientOffline blinds each raw item against clientPoint = k_c * G
// (spec.md §4.1 "Client offline (blinding)"). Output order matches input
// order, ready to be sent to the server's `oprf` RPC.
func (o *OPRF) ClientOffline(items []uint64, clientPoint curve.Point) []Point {
	out := make([]Point, len(items))
	parallelIndexed(len(items), func(i int) {
		item := new(big.Int).SetUint64(items[i])
		p := curve.ScalarMult(item, clientPoint)
		out[i] = Point{X: p.X, Y: p.Y}
	})
	return out
}

// ServerOnline multiplies every blinded point by the server's key k_s
// (spec.md §4.1 "Server online (oblivious evaluation)"). This is the body
// of the `POST /oprf` RPC handler.
func (o *OPRF) ServerOnline(key *big.Int, points []Point) ([]Point, error) {
	out := make([]Point, len(points))
	var firstErr error
	var mu sync.Mutex
	parallelIndexed(len(points), func(i int) {
		p, err := curve.FromCoordinates(points[i].X, points[i].Y)
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			return
		}
		r := curve.ScalarMult(key, p)
		out[i] = Point{X: r.X, Y: r.Y}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// ClientOnline unblinds the server's response with k_c^-1 and extracts the
// fingerprint of each point (spec.md §4.1 "Client online (unblinding)").
func (o *OPRF) ClientOnline(keyInverse *big.Int, points []Point) ([]uint64, error) {
	out := make([]uint64, len(points))
	var firstErr error
	var mu sync.Mutex
	parallelIndexed(len(points), func(i int) {
		p, err := curve.FromCoordinates(points[i].X, points[i].Y)
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			return
		}
		r := curve.ScalarMult(keyInverse, p)
		out[i] = o.fingerprint(r)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
