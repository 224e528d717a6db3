// Package simplehash implements the server-side multi-occupancy bucket
// hashing step (spec.md §4.2): each OPRF-fingerprinted server item is
// placed into bin_capacity-wide buckets under every hash seed, then the
// bucket contents become the roots of per-minibin vanishing polynomials.
package simplehash

import (
	"strconv"

	"github.com/spaolacci/murmur3"

	"github.com/moya-app/overlap-psi/internal/psierr"
	"github.com/moya-app/overlap-psi/internal/psiparams"
)

// SimpleHash is the server's 2^output_bits x bin_capacity bucket table.
type SimpleHash struct {
	params     psiparams.Parameters
	data       [][]uint64
	occupancy  []int
	maskOutput uint64
}

// New allocates an empty table sized per the given Parameters.
func New(params psiparams.Parameters) *SimpleHash {
	n := params.NumberOfBins()
	data := make([][]uint64, n)
	for i := range data {
		data[i] = make([]uint64, 0, params.BinCapacity)
	}
	return &SimpleHash{
		params:     params,
		data:       data,
		occupancy:  make([]int, n),
		maskOutput: (uint64(1) << uint(params.OutputBits)) - 1,
	}
}

// leftAndIndex packs (item_left << log_no_hashes) | index, tagging a
// fingerprint's high bits with which hash function placed it (spec.md §3
// "Left/index encoding").
func leftAndIndex(params psiparams.Parameters, item uint64, index int) uint64 {
	left := item >> uint(params.OutputBits)
	return (left << uint(params.LogNoHashes())) | uint64(index)
}

// location computes mmh3_trunc(item_left, seed) XOR item_right, the bucket
// an item lands in under hash seed (spec.md §4.2). The MurmurHash input is
// the ASCII-decimal string of item_left — normative, matching
// original_source's mmh3.hash(str(item_left), seed, signed=False).
func location(params psiparams.Parameters, seed uint32, item uint64) uint64 {
	left := item >> uint(params.OutputBits)
	right := item & ((uint64(1) << uint(params.OutputBits)) - 1)
	hashed := murmur3.Sum32WithSeed([]byte(strconv.FormatUint(left, 10)), seed)
	truncated := uint64(hashed) >> uint(32-params.OutputBits)
	return truncated ^ right
}

// Insert places item into the bucket selected by hash function i
// (spec.md §4.2). Returns CapacityExceeded if that bucket is already full.
func (s *SimpleHash) Insert(item uint64, i int) error {
	loc := location(s.params, s.params.HashSeeds[i], item)
	if s.occupancy[loc] >= s.params.BinCapacity {
		return psierr.New(psierr.CapacityExceeded, "simplehash.Insert", errCapacity{bucket: loc})
	}
	s.data[loc] = append(s.data[loc], leftAndIndex(s.params, item, i))
	s.occupancy[loc]++
	return nil
}

// InsertAll inserts every fingerprint under every hash function, as
// ServerCore.preprocess does (spec.md §4.2: "for each input fingerprint f
// and each hash index i").
func (s *SimpleHash) InsertAll(items []uint64) error {
	for _, item := range items {
		for i := 0; i < s.params.NumberOfHashes(); i++ {
			if err := s.Insert(item, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// Padded returns the table with every unfilled slot set to the
// dummy_server sentinel, so every bucket has exactly bin_capacity entries
// (spec.md §4.2).
func (s *SimpleHash) Padded() [][]uint64 {
	dummy := s.params.DummyServer()
	out := make([][]uint64, len(s.data))
	for i, row := range s.data {
		padded := make([]uint64, s.params.BinCapacity)
		copy(padded, row)
		for j := len(row); j < s.params.BinCapacity; j++ {
			padded[j] = dummy
		}
		out[i] = padded
	}
	return out
}

// Occupancy returns the current fill count of every bucket, used by tests
// verifying the "SimpleHash totality" invariant (spec.md §8 property 5).
func (s *SimpleHash) Occupancy() []int {
	out := make([]int, len(s.occupancy))
	copy(out, s.occupancy)
	return out
}

type errCapacity struct{ bucket uint64 }

func (e errCapacity) Error() string {
	return "simplehash: bucket exceeds bin_capacity"
}
