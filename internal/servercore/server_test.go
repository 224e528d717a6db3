package servercore

import (
	"math/big"
	"testing"

	"github.com/moya-app/overlap-psi/internal/psierr"
	"github.com/moya-app/overlap-psi/internal/psiparams"
)

func TestQueryBeforePreprocessIsProtocolViolation(t *testing.T) {
	params := psiparams.Default()
	key, _ := new(big.Int).SetString("42", 10)
	s := New(params, key)

	_, err := s.Query(nil, nil)
	if kind, ok := psierr.KindOf(err); !ok || kind != psierr.ProtocolViolation {
		t.Fatalf("Query before Preprocess: err = %v, want a ProtocolViolation psierr.Error", err)
	}
}

func TestTransposedRoundTripsThroughLoadTransposed(t *testing.T) {
	params := psiparams.Default()
	key, _ := new(big.Int).SetString("1234567891011121314151617181920", 10)

	s1 := New(params, key)
	if err := s1.Preprocess([]uint64{487639465982, 542438948507207}); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	table := s1.Transposed()
	if table == nil {
		t.Fatal("Transposed() returned nil after Preprocess")
	}

	s2 := New(params, key)
	s2.LoadTransposed(table)
	if s2.Transposed() == nil {
		t.Fatal("Transposed() returned nil after LoadTransposed")
	}
	if len(s2.Transposed()) != len(table) {
		t.Fatalf("loaded table length = %d, want %d", len(s2.Transposed()), len(table))
	}
}
