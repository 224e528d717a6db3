package clientcore

import (
	"context"
	"math/big"
	"sort"
	"testing"

	"github.com/moya-app/overlap-psi/internal/psiparams"
	"github.com/moya-app/overlap-psi/internal/servercore"
	"github.com/moya-app/overlap-psi/internal/transport/inprocess"
)

// These fixtures are original_source/tests/overlap/test_server.py's
// test_client_server scenario: a fixed server key/set and client
// key/set with a known two-element intersection at indices {1, 3}.
var (
	fixtureServerSet = []uint64{
		487639465982,
		542438948507207,
		3259695623874827,
	}
	fixtureServerKey, _ = new(big.Int).SetString("1234567891011121314151617181920", 10)

	fixtureClientSet = []uint64{
		450258435097,
		487639465982,
		436874875093495,
		542438948507207,
		2345934957037,
	}
	fixtureClientKey, _ = new(big.Int).SetString("12345678910111213141516171819222222222222", 10)
)

func TestGetIntersectionMatchesFixture(t *testing.T) {
	params := psiparams.Default()

	server := servercore.New(params, fixtureServerKey)
	if err := server.Preprocess(fixtureServerSet); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	helper := inprocess.New(server)

	client, err := New(params, helper, fixtureClientKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blinded := client.PreprocessOPRF(fixtureClientSet)
	matches, err := client.Run(context.Background(), blinded)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sort.Ints(matches)
	if len(matches) != 2 || matches[0] != 1 || matches[1] != 3 {
		t.Fatalf("matches = %v, want [1 3]", matches)
	}
}

func TestGetIntersectionWithRandomKey(t *testing.T) {
	params := psiparams.Default()

	server := servercore.New(params, fixtureServerKey)
	if err := server.Preprocess(fixtureServerSet); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	helper := inprocess.New(server)

	client, err := New(params, helper, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := client.GetIntersection(context.Background(), fixtureClientSet)
	if err != nil {
		t.Fatalf("GetIntersection: %v", err)
	}
	want := map[uint64]bool{487639465982: true, 542438948507207: true}
	if len(got) != len(want) {
		t.Fatalf("GetIntersection = %v, want 2 matching elements", got)
	}
	for _, v := range got {
		if !want[v] {
			t.Fatalf("unexpected intersection element %d", v)
		}
	}
}

func TestGetIntersectionCountMatchesFixture(t *testing.T) {
	params := psiparams.Default()

	server := servercore.New(params, fixtureServerKey)
	if err := server.Preprocess(fixtureServerSet); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	helper := inprocess.New(server)

	client, err := New(params, helper, fixtureClientKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	count, err := client.GetIntersectionCount(context.Background(), fixtureClientSet)
	if err != nil {
		t.Fatalf("GetIntersectionCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestRunBeforePreprocessFails(t *testing.T) {
	params := psiparams.Default()
	server := servercore.New(params, fixtureServerKey)
	helper := inprocess.New(server)

	client, err := New(params, helper, fixtureClientKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blinded := client.PreprocessOPRF(fixtureClientSet)
	if _, err := client.Run(context.Background(), blinded); err == nil {
		t.Fatal("expected an error when querying before Preprocess")
	}
}
