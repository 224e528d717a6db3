// Package psiparams holds the shared protocol configuration both parties
// must agree on (spec.md §3 "Parameters") and derives the quantities that
// follow from it. Unlike the teacher's process-wide curve constants,
// Parameters is a plain value type constructed explicitly by callers — no
// package-level mutable default, per spec.md §9 "Design notes".
package psiparams

import (
	"math/bits"

	"github.com/moya-app/overlap-psi/internal/psierr"
)

// Parameters mirrors original_source/moya/overlap/parameters.py's
// Parameters model field-for-field; JSON tags match the wire shape the
// `GET parameters` RPC serves (spec.md §6).
type Parameters struct {
	HashSeeds        []uint32 `json:"hash_seeds"`
	OutputBits       int      `json:"output_bits"`
	PlainModulus     uint64   `json:"plain_modulus"`
	PolyModulusDegree int     `json:"poly_modulus_degree"`
	BinCapacity      int      `json:"bin_capacity"`
	Alpha            int      `json:"alpha"`
	Ell              int      `json:"ell"`
}

// Default reproduces the reference implementation's default Parameters
// (original_source/moya/overlap/parameters.py).
func Default() Parameters {
	return Parameters{
		HashSeeds:         []uint32{3325110220, 2243899793, 1862406458},
		OutputBits:        13,
		PlainModulus:      536903681,
		PolyModulusDegree: 1 << 13,
		BinCapacity:       536,
		Alpha:             16,
		Ell:               2,
	}
}

// NumberOfHashes is |hash_seeds|.
func (p Parameters) NumberOfHashes() int {
	return len(p.HashSeeds)
}

// LogNoHashes is floor(log2(number_of_hashes)) + 1.
func (p Parameters) LogNoHashes() int {
	return bits.Len(uint(p.NumberOfHashes()))
}

// SigmaMax is floor(log2(plain_modulus)) + output_bits - log_no_hashes.
func (p Parameters) SigmaMax() int {
	return bits.Len64(p.PlainModulus) - 1 + p.OutputBits - p.LogNoHashes()
}

// Base is 2^ell.
func (p Parameters) Base() int {
	return 1 << p.Ell
}

// MinibinCapacity is bin_capacity/alpha.
func (p Parameters) MinibinCapacity() int {
	return p.BinCapacity / p.Alpha
}

// LogBEll is floor(log2(minibin_capacity)/ell) + 1.
func (p Parameters) LogBEll() int {
	logMinibin := bits.Len(uint(p.MinibinCapacity())) - 1
	return logMinibin/p.Ell + 1
}

// NumberOfBins is 2^output_bits.
func (p Parameters) NumberOfBins() int {
	return 1 << p.OutputBits
}

// DummyServer is the SimpleHash padding sentinel (spec.md §3).
func (p Parameters) DummyServer() uint64 {
	shift := uint(p.SigmaMax() - p.OutputBits + p.LogNoHashes())
	return (uint64(1) << shift) + 1
}

// DummyClient is the CuckooHash empty-slot sentinel (spec.md §3), distinct
// from DummyServer by construction so the two never collide.
func (p Parameters) DummyClient() uint64 {
	shift := uint(p.SigmaMax() - p.OutputBits + p.LogNoHashes())
	return uint64(1) << shift
}

// Validate checks the invariants listed in spec.md §3.
func (p Parameters) Validate() error {
	if p.NumberOfHashes() < 2 {
		return psierr.New(psierr.ParameterMismatch, "psiparams.Validate", errValue("number_of_hashes must be >= 2"))
	}
	if p.Alpha <= 0 || p.BinCapacity%p.Alpha != 0 {
		return psierr.New(psierr.ParameterMismatch, "psiparams.Validate", errValue("bin_capacity must be divisible by alpha"))
	}
	if p.PolyModulusDegree != p.NumberOfBins() {
		return psierr.New(psierr.ParameterMismatch, "psiparams.Validate", errValue("poly_modulus_degree must equal 2^output_bits"))
	}
	if p.MinibinCapacity() > 1<<(uint(p.Ell)*uint(p.LogBEll())) {
		return psierr.New(psierr.ParameterMismatch, "psiparams.Validate", errValue("minibin_capacity exceeds base^logB_ell"))
	}
	return nil
}

// Equal reports whether two Parameters agree on every field both sides
// must negotiate (spec.md §7 ParameterMismatch).
func (p Parameters) Equal(other Parameters) bool {
	if p.OutputBits != other.OutputBits ||
		p.PlainModulus != other.PlainModulus ||
		p.PolyModulusDegree != other.PolyModulusDegree ||
		p.BinCapacity != other.BinCapacity ||
		p.Alpha != other.Alpha ||
		p.Ell != other.Ell ||
		len(p.HashSeeds) != len(other.HashSeeds) {
		return false
	}
	for i, s := range p.HashSeeds {
		if other.HashSeeds[i] != s {
			return false
		}
	}
	return true
}

type errValue string

func (e errValue) Error() string { return string(e) }
