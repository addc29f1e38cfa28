package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports job utilisation and degrades status when every job slot is busy
// or the store cannot be read.
func Health(st *store.Store, jobs *Jobs, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		resp := models.HealthResponse{
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: Version,
		}

		if jobs != nil {
			resp.Jobs = jobs.Stats()
			if resp.Jobs.Capacity > 0 && resp.Jobs.Processing >= resp.Jobs.Capacity {
				status = "degraded"
			}
		}
		if st != nil {
			stats, err := st.Stats()
			if err != nil {
				slog.Warn("store stats failed", "error", err)
				status = "degraded"
			} else {
				resp.Store = &models.StoreStats{
					Collections: stats.Collections,
					Records:     stats.Records,
					LSMBytes:    stats.LSMBytes,
					VLogBytes:   stats.VLogBytes,
				}
			}
		}

		resp.Status = status
		c.JSON(http.StatusOK, resp)
	}
}
