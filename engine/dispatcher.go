package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/neardup/metrics"
	"github.com/use-agent/neardup/simhash"
)

// Dispatcher runs search passes concurrently and merges their pairs.
type Dispatcher struct {
	concurrency int
}

// NewDispatcher creates a Dispatcher that runs at most concurrency passes at
// once. Values below 1 are treated as 1.
func NewDispatcher(concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{concurrency: concurrency}
}

// Dispatch runs every pass against req and returns the merged result. The
// first failing pass cancels the rest and its error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, passes []Pass) (*Result, error) {
	if len(passes) == 0 {
		return nil, errors.New("dispatcher: no passes")
	}

	found := make([][]simhash.Pair, len(passes))
	stats := make([]PassStat, len(passes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, p := range passes {
		g.Go(func() error {
			start := time.Now()
			pairs, err := p.Run(gctx, req)
			if err != nil {
				slog.Debug("pass failed", "pass", p.Name(), "error", err)
				return err
			}
			elapsed := time.Since(start)
			found[i] = pairs
			stats[i] = PassStat{Name: p.Name(), Pairs: len(pairs), Duration: elapsed}
			metrics.ObservePass(p.Name(), len(pairs), elapsed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, pairs := range found {
		total += len(pairs)
	}
	all := make([]simhash.Pair, 0, total)
	for _, pairs := range found {
		all = append(all, pairs...)
	}
	merged := simhash.Merge(all)

	slog.Debug("dispatch finished",
		"fingerprints", len(req.Fingerprints),
		"passes", len(passes),
		"pairs", len(merged),
	)
	return &Result{Pairs: merged, Passes: stats}, nil
}
