package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/neardup/cache"
	"github.com/use-agent/neardup/config"
	"github.com/use-agent/neardup/engine"
	"github.com/use-agent/neardup/metrics"
	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/simhash"
)

// searchPlan is a validated search request.
type searchPlan struct {
	maxDistance int
	rotations   []int
	exact       bool
}

// key is the canonical description of the plan used in cache keys.
func (p searchPlan) key() string {
	return fmt.Sprintf("d=%d;r=%v;exact=%t", p.maxDistance, p.rotations, p.exact)
}

func (p searchPlan) passes() []engine.Pass {
	if p.exact {
		return engine.Plan(nil, true)
	}
	return engine.Plan(p.rotations, false)
}

// planSearch validates a search over n fingerprints against the finder limits.
func planSearch(cfg config.FinderConfig, n, maxDistance int, rotateBits *int, rotations []int, exact bool) (searchPlan, error) {
	p := searchPlan{maxDistance: maxDistance, exact: exact}
	switch {
	case rotateBits != nil:
		p.rotations = []int{*rotateBits}
	case len(rotations) > 0:
		p.rotations = rotations
	default:
		p.rotations = cfg.Rotations
	}

	if n > cfg.MaxFingerprints {
		return p, invalidInput(fmt.Sprintf("at most %d fingerprints per search, got %d", cfg.MaxFingerprints, n))
	}
	if exact && n > cfg.ExactLimit {
		return p, invalidInput(fmt.Sprintf("exact search is limited to %d fingerprints, got %d", cfg.ExactLimit, n))
	}
	if err := simhash.ValidateSearch(maxDistance, p.rotations); err != nil {
		return p, err
	}
	return p, nil
}

func passInfos(stats []engine.PassStat) []models.PassInfo {
	out := make([]models.PassInfo, len(stats))
	for i, s := range stats {
		out[i] = models.PassInfo{Name: s.Name, Pairs: s.Pairs, DurationMs: s.Duration.Milliseconds()}
	}
	return out
}

// Similar returns a handler for POST /api/v1/similar.
//
// Orchestration flow:
//  1. Parse & validate request, resolve the passes.
//  2. Cache lookup when max_age is set.
//  3. Dispatcher.Dispatch runs the passes concurrently (records search_ms).
//  4. Fill Timing, cache store, return 200.
func Similar(cfg config.FinderConfig, disp *engine.Dispatcher, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.SimilarRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		plan, err := planSearch(cfg, len(req.Fingerprints), *req.MaxDistance, req.RotateBits, req.Rotations, req.Exact)
		if err != nil {
			respondError(c, err)
			return
		}
		fps := models.Uint64s(req.Fingerprints)

		// ── 2. Cache lookup ─────────────────────────────────────────
		var cacheKey string
		if cc != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(fps, plan.key())
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				metrics.CacheLookup("hit")
				resp := *cached
				resp.CacheStatus = "hit"
				resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, resp)
				return
			}
			metrics.CacheLookup("miss")
		}

		// ── 3. Search ───────────────────────────────────────────────
		searchStart := time.Now()
		result, err := disp.Dispatch(c.Request.Context(), &engine.Request{
			Fingerprints: fps,
			MaxDistance:  plan.maxDistance,
		}, plan.passes())
		searchMs := time.Since(searchStart).Milliseconds()
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 4. Respond ──────────────────────────────────────────────
		resp := &models.SimilarResponse{
			Success: true,
			Pairs:   result.Pairs,
			Count:   len(result.Pairs),
			Passes:  passInfos(result.Passes),
			Timing: models.TimingInfo{
				TotalMs:  time.Since(totalStart).Milliseconds(),
				SearchMs: searchMs,
			},
		}
		if cacheKey != "" {
			cc.Set(cacheKey, resp)
			miss := *resp
			miss.CacheStatus = "miss"
			c.JSON(http.StatusOK, miss)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
