package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/neardup/api/handler"
	"github.com/use-agent/neardup/api/middleware"
	"github.com/use-agent/neardup/cache"
	"github.com/use-agent/neardup/config"
	"github.com/use-agent/neardup/engine"
	"github.com/use-agent/neardup/metrics"
	"github.com/use-agent/neardup/store"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// st and jobs may be nil when the store is disabled; the collection routes
// then answer STORE_DISABLED.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics (if enabled)
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics endpoints sit outside auth.
func NewRouter(cfg *config.Config, st *store.Store, disp *engine.Dispatcher, cc *cache.Cache, jobs *handler.Jobs, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics())
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(st, jobs, startTime))

	// Protected group: auth, then rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Fingerprints
	protected.POST("/fingerprint", handler.Fingerprint(cfg.Finder.Hasher))
	protected.POST("/fingerprint/weighted", handler.WeightedFingerprint())
	protected.POST("/hamming", handler.Hamming())
	protected.POST("/hash", handler.Hash(cfg.Finder.Hasher))

	// Near-duplicate search
	protected.POST("/similar", handler.Similar(cfg.Finder, disp, cc))

	// Collections
	protected.PUT("/collections/:name", handler.PutCollection(st))
	protected.DELETE("/collections/:name", handler.DropCollection(st))
	protected.GET("/collections/:name/fingerprints/:id", handler.GetRecord(st))
	protected.DELETE("/collections/:name/fingerprints/:id", handler.DeleteRecord(st))
	protected.POST("/collections/:name/query", handler.QueryCollection(st))
	protected.POST("/collections/:name/dedupe", handler.PostDedupe(jobs))

	// Jobs
	protected.GET("/jobs/:id", handler.GetJob(jobs))

	return r
}
