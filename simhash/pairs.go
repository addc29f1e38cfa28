package simhash

import (
	"cmp"
	"math/bits"
	"slices"
)

// DefaultRotations is the pass set used when a caller asks for a multi-pass
// search without naming rotations. Together the four key windows cover bits
// 0 through 55 of the original fingerprints.
var DefaultRotations = []int{8, 16, 24, 32}

// Pair is a near-duplicate pair of input positions, always with I < J.
type Pair struct {
	I int `json:"i"`
	J int `json:"j"`
}

func newPair(a, b int) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{I: a, J: b}
}

// hashRecord is a rotated fingerprint tagged with its input position.
type hashRecord struct {
	rotated uint64
	index   int
}

func compareRecords(a, b hashRecord) int {
	if c := cmp.Compare(a.rotated, b.rotated); c != 0 {
		return c
	}
	return cmp.Compare(a.index, b.index)
}

// keyMask returns the top rotateBits bits of a 64-bit word.
func keyMask(rotateBits int) uint64 {
	return ^uint64(0) << uint(Bits-rotateBits)
}

// SimilarPairs returns every pair of fingerprints within maxDistance bits that
// shares a banding key after rotating left by rotateBits. The key is the top
// rotateBits bits of the rotated value, so pairs that differ inside that
// window are not found by this pass; combine passes with SimilarPairsMulti.
//
// rotateBits must be within [1,63] and maxDistance within [0,64].
func SimilarPairs(fingerprints []uint64, maxDistance, rotateBits int) ([]Pair, error) {
	const op = "similar_pairs"
	if err := checkRotateBits(op, rotateBits); err != nil {
		return nil, err
	}
	if err := checkMaxDistance(op, maxDistance); err != nil {
		return nil, err
	}
	if len(fingerprints) < 2 {
		return nil, nil
	}

	records := make([]hashRecord, len(fingerprints))
	for i, fp := range fingerprints {
		records[i] = hashRecord{rotated: bits.RotateLeft64(fp, rotateBits), index: i}
	}
	slices.SortFunc(records, compareRecords)

	mask := keyMask(rotateBits)
	var pairs []Pair
	for i := 0; i < len(records)-1; i++ {
		key := records[i].rotated & mask
		for j := i + 1; j < len(records); j++ {
			if records[j].rotated&mask != key {
				break
			}
			if HammingDistance(records[i].rotated, records[j].rotated) <= maxDistance {
				pairs = append(pairs, newPair(records[i].index, records[j].index))
			}
		}
	}
	return pairs, nil
}

// SimilarPairsMulti runs one SimilarPairs pass per rotation and returns the
// union, sorted by (I, J). All rotations are validated before any pass runs.
func SimilarPairsMulti(fingerprints []uint64, maxDistance int, rotations []int) ([]Pair, error) {
	if err := validateSearch("similar_pairs_multi", maxDistance, rotations); err != nil {
		return nil, err
	}

	var all []Pair
	for _, r := range rotations {
		pairs, err := SimilarPairs(fingerprints, maxDistance, r)
		if err != nil {
			return nil, err
		}
		all = append(all, pairs...)
	}
	return Merge(all), nil
}

// ValidateSearch checks a multi-pass search's parameters without running it.
func ValidateSearch(maxDistance int, rotations []int) error {
	return validateSearch("validate_search", maxDistance, rotations)
}

func validateSearch(op string, maxDistance int, rotations []int) error {
	if len(rotations) == 0 {
		return invalid(op, "rotations", rotations, "at least one rotation is required")
	}
	for _, r := range rotations {
		if err := checkRotateBits(op, r); err != nil {
			return err
		}
	}
	return checkMaxDistance(op, maxDistance)
}

// ValidateDistance checks a Hamming distance threshold.
func ValidateDistance(maxDistance int) error {
	return checkMaxDistance("validate_distance", maxDistance)
}

// BruteForcePairs compares every pair of fingerprints. It is the ground truth
// the banded search approximates and is only practical for small inputs.
func BruteForcePairs(fingerprints []uint64, maxDistance int) ([]Pair, error) {
	if err := checkMaxDistance("brute_force_pairs", maxDistance); err != nil {
		return nil, err
	}
	var pairs []Pair
	for i := 0; i < len(fingerprints); i++ {
		for j := i + 1; j < len(fingerprints); j++ {
			if HammingDistance(fingerprints[i], fingerprints[j]) <= maxDistance {
				pairs = append(pairs, Pair{I: i, J: j})
			}
		}
	}
	return pairs, nil
}

// Merge sorts pairs by (I, J) and drops duplicates. The input slice is reused.
func Merge(pairs []Pair) []Pair {
	slices.SortFunc(pairs, func(a, b Pair) int {
		if c := cmp.Compare(a.I, b.I); c != 0 {
			return c
		}
		return cmp.Compare(a.J, b.J)
	})
	return slices.Compact(pairs)
}
