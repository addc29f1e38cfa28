package engine

import (
	"context"
	"time"

	"github.com/use-agent/neardup/simhash"
)

// Pass is the interface that all pair search strategies must implement.
type Pass interface {
	// Name returns the pass identifier (e.g. "rotate-8", "exact").
	Name() string

	// Run returns the pairs this pass finds. Pairs must have I < J.
	Run(ctx context.Context, req *Request) ([]simhash.Pair, error)
}

// Request contains everything a pass needs.
type Request struct {
	Fingerprints []uint64
	MaxDistance  int
}

// PassStat describes one finished pass.
type PassStat struct {
	Name     string
	Pairs    int
	Duration time.Duration
}

// Result is the merged output of a dispatch.
type Result struct {
	// Pairs is the deduplicated union of every pass, sorted by (I, J).
	Pairs []simhash.Pair

	// Passes lists the passes in the order they were given.
	Passes []PassStat
}
