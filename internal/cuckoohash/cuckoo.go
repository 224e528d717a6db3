// Package cuckoohash implements the client-side single-slot hashing with
// eviction step (spec.md §4.3). Each client fingerprint lands in exactly
// one of 2^output_bits slots; placing it may evict a previous occupant,
// which is then reinserted under a different hash function, bounded by a
// recursion-depth cap.
package cuckoohash

import (
	"crypto/rand"
	"math/big"
	"math/bits"
	"strconv"

	"github.com/spaolacci/murmur3"

	"github.com/moya-app/overlap-psi/internal/psierr"
	"github.com/moya-app/overlap-psi/internal/psiparams"
)

// emptySlot is the zero value's sentinel meaning "no tagged fingerprint
// placed here yet". Tagged fingerprints are always >= 0, so -1 is safe.
const emptySlot = -1

// Cuckoo is the client's one-slot-per-bucket table.
type Cuckoo struct {
	params       psiparams.Parameters
	slots        []int64 // tagged fingerprint, or emptySlot
	insertIndex  int
	depth        int
	recursionCap int
}

// New allocates an empty table and picks an initial random insert index,
// per spec.md §4.3 ("Maintains a rotating insert_index chosen uniformly at
// random"). Randomness uses crypto/rand rather than the reference
// implementation's math-random, per spec.md §9 Open Questions.
func New(params psiparams.Parameters) (*Cuckoo, error) {
	idx, err := randIndex(params.NumberOfHashes())
	if err != nil {
		return nil, err
	}
	n := params.NumberOfBins()
	slots := make([]int64, n)
	for i := range slots {
		slots[i] = emptySlot
	}
	// recursion_depth = 8 * log2(number_of_bins)
	recursionCap := 8 * (bits.Len(uint(n)) - 1)
	return &Cuckoo{
		params:       params,
		slots:        slots,
		insertIndex:  idx,
		recursionCap: recursionCap,
	}, nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// randPoint picks a uniform value in [0, bound), distinct from exclude
// (spec.md §4.3 step 4: "Choose a new insert_index uniformly from
// [0, number_of_hashes) \ {prev_index}").
func randPoint(bound, exclude int) (int, error) {
	if bound <= 1 {
		return 0, nil
	}
	for {
		v, err := randIndex(bound)
		if err != nil {
			return 0, err
		}
		if v != exclude {
			return v, nil
		}
	}
}

func leftAndIndex(params psiparams.Parameters, item uint64, index int) int64 {
	left := item >> uint(params.OutputBits)
	return int64((left << uint(params.LogNoHashes())) | uint64(index))
}

func extractIndex(params psiparams.Parameters, taggedItem int64) int {
	mask := (int64(1) << uint(params.LogNoHashes())) - 1
	return int(taggedItem & mask)
}

func location(params psiparams.Parameters, seed uint32, item uint64) uint64 {
	left := item >> uint(params.OutputBits)
	right := item & ((uint64(1) << uint(params.OutputBits)) - 1)
	hashed := murmur3.Sum32WithSeed([]byte(strconv.FormatUint(left, 10)), seed)
	truncated := uint64(hashed) >> uint(32-params.OutputBits)
	return truncated ^ right
}

// reconstruct rebuilds the fingerprint that was tagged as taggedItem and
// placed at currentLocation under seed (spec.md §4.3 "Reconstruction").
func reconstruct(params psiparams.Parameters, taggedItem int64, currentLocation uint64, seed uint32) uint64 {
	left := uint64(taggedItem) >> uint(params.LogNoHashes())
	hashed := murmur3.Sum32WithSeed([]byte(strconv.FormatUint(left, 10)), seed)
	truncated := uint64(hashed) >> uint(32-params.OutputBits)
	right := truncated ^ currentLocation
	return (left << uint(params.OutputBits)) | right
}

// ErrCuckooAborted is returned when the eviction chain exceeds the
// recursion-depth cap (spec.md §4.3 step 4, §7 CapacityExceeded).
var ErrCuckooAborted = psierr.New(psierr.CapacityExceeded, "cuckoohash.Insert", errAborted{})

type errAborted struct{}

func (errAborted) Error() string { return "cuckoo hashing aborted" }

// Insert places fingerprint f into the table, evicting and reinserting as
// needed (spec.md §4.3 "Insertion of fingerprint f").
func (c *Cuckoo) Insert(f uint64) error {
	return c.insert(f)
}

func (c *Cuckoo) insert(f uint64) error {
	loc := location(c.params, c.params.HashSeeds[c.insertIndex], f)
	current := c.slots[loc]
	c.slots[loc] = leftAndIndex(c.params, f, c.insertIndex)

	if current == emptySlot {
		idx, err := randIndex(c.params.NumberOfHashes())
		if err != nil {
			return err
		}
		c.insertIndex = idx
		c.depth = 0
		return nil
	}

	unwantedIndex := extractIndex(c.params, current)
	idx, err := randPoint(c.params.NumberOfHashes(), unwantedIndex)
	if err != nil {
		return err
	}
	c.insertIndex = idx

	if c.depth >= c.recursionCap {
		return ErrCuckooAborted
	}
	c.depth++
	jumping := reconstruct(c.params, current, loc, c.params.HashSeeds[unwantedIndex])
	return c.insert(jumping)
}

// ReconstructItem rebuilds an evicted/placed fingerprint from its tagged
// slot value, current location, and the seed it was placed under.
// ClientCore's decode step uses the package-level ReconstructItem below.
func (c *Cuckoo) ReconstructItem(taggedItem int64, currentLocation uint64, seed uint32) uint64 {
	return reconstruct(c.params, taggedItem, currentLocation, seed)
}

// ReconstructItem is the stateless counterpart of (*Cuckoo).ReconstructItem,
// for callers (ClientCore's match recovery) that only need the
// params-dependent formula and don't otherwise hold a live table.
func ReconstructItem(params psiparams.Parameters, taggedItem int64, currentLocation uint64, seed uint32) uint64 {
	return reconstruct(params, taggedItem, currentLocation, seed)
}

// Slot returns the table's raw tagged value at position i, or emptySlot.
func (c *Cuckoo) Slot(i int) (int64, bool) {
	v := c.slots[i]
	return v, v != emptySlot
}

// Slots returns the full underlying table.
func (c *Cuckoo) Slots() []int64 {
	out := make([]int64, len(c.slots))
	copy(out, c.slots)
	return out
}
