// Package simhash builds 64-bit simhash fingerprints from token hashes and
// finds near-duplicate fingerprints by Hamming distance.
//
// Fingerprint and WeightedFingerprint share one bit order: bit k of the result
// is the vote of tally k. The historical layout, where the unweighted tallies
// were emitted in reverse and shifted one position, is kept in
// LegacyFingerprint for databases built with it.
package simhash

import (
	"math"
	"math/bits"
	"strconv"
)

// Bits is the fingerprint width.
const Bits = 64

// almostZero is the weighted-path threshold. Float tallies that are
// mathematically zero can land slightly below it after rounding.
const almostZero = -1.0e-7

// WeightedToken is a token hash with its weight. Zero weights are legal and
// contribute nothing.
type WeightedToken struct {
	Hash   uint64
	Weight float64
}

// Fingerprint computes the simhash of unweighted token hashes.
// An empty input yields all ones.
func Fingerprint(hashes []uint64) uint64 {
	var tally [Bits]int
	for _, h := range hashes {
		for k := 0; k < Bits; k++ {
			if h&(1<<uint(k)) != 0 {
				tally[k]++
			} else {
				tally[k]--
			}
		}
	}

	var fp uint64
	for k := 0; k < Bits; k++ {
		if tally[k] >= 0 {
			fp |= 1 << uint(k)
		}
	}
	return fp
}

// LegacyFingerprint reproduces the historical unweighted layout: tally i is
// written to bit 64-i, tally 0 falls off the top and bit 0 is always clear.
// Use it only to compare against fingerprints stored by older systems.
func LegacyFingerprint(hashes []uint64) uint64 {
	var tally [Bits]int
	for _, h := range hashes {
		for k := 0; k < Bits; k++ {
			if h&1 != 0 {
				tally[k]++
			} else {
				tally[k]--
			}
			h >>= 1
		}
	}

	var fp uint64
	for i := 0; i < Bits; i++ {
		if tally[i] >= 0 {
			fp |= 1
		}
		fp <<= 1
	}
	return fp
}

// WeightedFingerprint computes the simhash of weighted token hashes. It fails
// with ErrInvalidInput when a weight is NaN or infinite.
func WeightedFingerprint(tokens []WeightedToken) (uint64, error) {
	var tally [Bits]float64
	for i, t := range tokens {
		if math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) {
			return 0, invalid("weighted_fingerprint", "weight", t.Weight,
				"token "+strconv.Itoa(i)+" weight must be finite")
		}
		for k := 0; k < Bits; k++ {
			if t.Hash&(1<<uint(k)) != 0 {
				tally[k] += t.Weight
			} else {
				tally[k] -= t.Weight
			}
		}
	}

	var fp uint64
	for k := 0; k < Bits; k++ {
		if tally[k] > almostZero {
			fp |= 1 << uint(k)
		}
	}
	return fp, nil
}

// HammingDistance returns the number of differing bits between a and b.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b are within threshold bits of each other.
func Similar(a, b uint64, threshold int) bool {
	return HammingDistance(a, b) <= threshold
}
