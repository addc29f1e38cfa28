package engine

import (
	"context"
	"strconv"

	"github.com/use-agent/neardup/simhash"
)

// exactCheckEvery is how many rows ExactPass compares between context checks.
const exactCheckEvery = 256

// RotationPass is one banded simhash.SimilarPairs pass.
type RotationPass struct {
	RotateBits int
}

func (p RotationPass) Name() string { return "rotate-" + strconv.Itoa(p.RotateBits) }

func (p RotationPass) Run(ctx context.Context, req *Request) ([]simhash.Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return simhash.SimilarPairs(req.Fingerprints, req.MaxDistance, p.RotateBits)
}

// ExactPass compares every pair. It finds everything the banded passes can
// miss and costs O(n²), so callers bound its input size.
type ExactPass struct{}

func (ExactPass) Name() string { return "exact" }

func (ExactPass) Run(ctx context.Context, req *Request) ([]simhash.Pair, error) {
	if err := simhash.ValidateDistance(req.MaxDistance); err != nil {
		return nil, err
	}
	fps := req.Fingerprints
	var pairs []simhash.Pair
	for i := 0; i < len(fps); i++ {
		if i%exactCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j := i + 1; j < len(fps); j++ {
			if simhash.HammingDistance(fps[i], fps[j]) <= req.MaxDistance {
				pairs = append(pairs, simhash.Pair{I: i, J: j})
			}
		}
	}
	return pairs, nil
}

// Plan builds the passes for a search: one RotationPass per rotation, plus
// an ExactPass when exact is set.
func Plan(rotations []int, exact bool) []Pass {
	passes := make([]Pass, 0, len(rotations)+1)
	for _, r := range rotations {
		passes = append(passes, RotationPass{RotateBits: r})
	}
	if exact {
		passes = append(passes, ExactPass{})
	}
	return passes
}
