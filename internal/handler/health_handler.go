package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bakate/avionics/internal/outbox"
	"github.com/bakate/avionics/internal/reaper"
	"github.com/bakate/avionics/pkg/database"
	"github.com/bakate/avionics/pkg/redis"
	"github.com/bakate/avionics/pkg/response"
)

// HealthHandler implements GET /health and GET /ready, grounded on the
// teacher's health_handler.go (liveness always 200, readiness checks
// components and degrades to 503).
type HealthHandler struct {
	db        *database.DB
	redis     *redis.Client
	reaper    *reaper.Reaper
	publisher *outbox.Publisher
	timeout   time.Duration
}

func NewHealthHandler(db *database.DB, rdb *redis.Client, rp *reaper.Reaper, pub *outbox.Publisher, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{db: db, redis: rdb, reaper: rp, publisher: pub, timeout: timeout}
}

// Health is the liveness probe: the process is up, period. Per spec §6
// it never fails.
func (h *HealthHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"components": gin.H{},
	})
}

// Ready is the readiness probe: checks Postgres and Redis, and reports
// the reaper's and outbox publisher's operational counters (spec §9
// supplemented features: readiness endpoint, dead-letter visibility).
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	components := gin.H{}
	allHealthy := true

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			components["database"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			components["database"] = "healthy"
		}
	} else {
		components["database"] = "not configured"
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			components["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			components["redis"] = "healthy"
		}
	} else {
		components["redis"] = "not configured"
	}

	if h.reaper != nil {
		components["reaper"] = h.reaper.Stats()
	}
	if h.publisher != nil {
		components["outbox"] = h.publisher.Stats()
	}

	status := http.StatusOK
	statusLabel := "ready"
	if !allHealthy {
		status = http.StatusServiceUnavailable
		statusLabel = "not ready"
	}

	c.JSON(status, gin.H{
		"status":     statusLabel,
		"timestamp":  time.Now().UTC(),
		"components": components,
	})
}
