package simhash

import (
	"cmp"
	"math/bits"
	"slices"
	"sort"
)

type indexEntry struct {
	rotated uint64
	id      uint64
}

// table holds every fingerprint rotated by the same amount, sorted once
// Finish is called.
type table struct {
	rotateBits int
	mask       uint64
	entries    []indexEntry
}

// Index answers "which stored fingerprints are near this one" with one sorted
// table per rotation, following the permuted-table layout of Manku, Jain and
// Das Sarma. Add all fingerprints, call Finish, then Query.
//
// An Index is not safe for concurrent mutation; concurrent Query calls after
// Finish are fine.
type Index struct {
	tables   []table
	size     int
	finished bool
}

// NewIndex creates an Index with one table per rotation. Each rotation must be
// within [1,63].
func NewIndex(rotations ...int) (*Index, error) {
	if len(rotations) == 0 {
		return nil, invalid("new_index", "rotations", rotations, "at least one rotation is required")
	}
	ix := &Index{tables: make([]table, len(rotations))}
	for i, r := range rotations {
		if err := checkRotateBits("new_index", r); err != nil {
			return nil, err
		}
		ix.tables[i] = table{rotateBits: r, mask: keyMask(r)}
	}
	return ix, nil
}

// Add inserts a fingerprint under id. Adding after Finish un-finishes the
// index; the next Query sorts again.
func (ix *Index) Add(fp, id uint64) {
	for i := range ix.tables {
		t := &ix.tables[i]
		t.entries = append(t.entries, indexEntry{rotated: bits.RotateLeft64(fp, t.rotateBits), id: id})
	}
	ix.size++
	ix.finished = false
}

// Finish sorts every table. It must run before Query.
func (ix *Index) Finish() {
	for i := range ix.tables {
		slices.SortFunc(ix.tables[i].entries, func(a, b indexEntry) int {
			if c := cmp.Compare(a.rotated, b.rotated); c != 0 {
				return c
			}
			return cmp.Compare(a.id, b.id)
		})
	}
	ix.finished = true
}

// Len returns the number of fingerprints added.
func (ix *Index) Len() int { return ix.size }

// Query returns the ids of stored fingerprints within maxDistance bits of fp
// that share a banding key with it in at least one table, sorted ascending.
func (ix *Index) Query(fp uint64, maxDistance int) ([]uint64, error) {
	if err := checkMaxDistance("index_query", maxDistance); err != nil {
		return nil, err
	}
	if !ix.finished {
		ix.Finish()
	}

	var ids []uint64
	for _, t := range ix.tables {
		rotated := bits.RotateLeft64(fp, t.rotateBits)
		prefix := rotated & t.mask
		i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].rotated >= prefix })
		for ; i < len(t.entries) && t.entries[i].rotated&t.mask == prefix; i++ {
			if HammingDistance(t.entries[i].rotated, rotated) <= maxDistance {
				ids = append(ids, t.entries[i].id)
			}
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
