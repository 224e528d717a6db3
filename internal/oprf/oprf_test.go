package oprf

import (
	"math/big"
	"testing"

	"github.com/moya-app/overlap-psi/internal/curve"
	"github.com/moya-app/overlap-psi/internal/psiparams"
)

func TestFingerprintDeterminism(t *testing.T) {
	params := psiparams.Default()
	o := New(params)

	serverKey := big.NewInt(1234567891011121314)
	clientKey := big.NewInt(987654321987654321)

	serverPoint := curve.ScalarMult(serverKey, curve.Generator())
	clientPoint := curve.ScalarMult(clientKey, curve.Generator())

	items := []uint64{487639465982, 542438948507207, 3259695623874827}

	serverFp := o.ServerOffline(items, serverPoint)

	blinded := o.ClientOffline(items, clientPoint)
	oprfPoints := make([]Point, len(blinded))
	for i, p := range blinded {
		oprfPoints[i] = Point{X: p.X, Y: p.Y}
	}

	evaluated, err := o.ServerOnline(serverKey, oprfPoints)
	if err != nil {
		t.Fatalf("ServerOnline: %v", err)
	}

	clientKeyInv := new(big.Int).ModInverse(clientKey, Order())
	if clientKeyInv == nil {
		t.Fatal("client key has no inverse mod q")
	}
	clientFp, err := o.ClientOnline(clientKeyInv, evaluated)
	if err != nil {
		t.Fatalf("ClientOnline: %v", err)
	}

	for i := range items {
		if serverFp[i] != clientFp[i] {
			t.Fatalf("item %d: fp_server=%d != fp_client=%d", i, serverFp[i], clientFp[i])
		}
	}
}

func TestBlindingInvarianceAcrossKeys(t *testing.T) {
	params := psiparams.Default()
	o := New(params)

	serverKey := big.NewInt(42424242424242)
	items := []uint64{1, 2, 3, 1000000000}

	run := func(clientKey *big.Int) []uint64 {
		clientPoint := curve.ScalarMult(clientKey, curve.Generator())
		blinded := o.ClientOffline(items, clientPoint)
		pts := make([]Point, len(blinded))
		copy(pts, blinded)
		evaluated, err := o.ServerOnline(serverKey, pts)
		if err != nil {
			t.Fatalf("ServerOnline: %v", err)
		}
		inv := new(big.Int).ModInverse(clientKey, Order())
		fps, err := o.ClientOnline(inv, evaluated)
		if err != nil {
			t.Fatalf("ClientOnline: %v", err)
		}
		return fps
	}

	a := run(big.NewInt(111))
	b := run(big.NewInt(222222))

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fingerprint set differs across client keys at %d: %d != %d", i, a[i], b[i])
		}
	}
}

func TestServerOnlineRejectsOffCurvePoint(t *testing.T) {
	params := psiparams.Default()
	o := New(params)

	bad := Point{X: big.NewInt(1), Y: big.NewInt(1)}
	if _, err := o.ServerOnline(big.NewInt(5), []Point{bad}); err == nil {
		t.Fatal("expected an error for an off-curve point")
	}
}

func TestOutputOrderMatchesInputOrder(t *testing.T) {
	params := psiparams.Default()
	o := New(params)
	key := big.NewInt(9999)
	point := curve.ScalarMult(key, curve.Generator())

	items := make([]uint64, 200)
	for i := range items {
		items[i] = uint64(i) * 7919
	}

	blinded := o.ClientOffline(items, point)
	for i, item := range items {
		want := curve.ScalarMult(new(big.Int).SetUint64(item), point)
		if blinded[i].X.Cmp(want.X) != 0 {
			t.Fatalf("index %d out of order", i)
		}
	}
}
