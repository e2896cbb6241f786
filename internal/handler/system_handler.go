package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// SystemHandler serves liveness and health endpoints.
type SystemHandler struct {
	checks    map[string]HealthCheck
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a SystemHandler running the named checks on /health.
func NewSystemHandler(checks map[string]HealthCheck, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// WakingUp godoc
// GET /api/wakingup
// Lets a client start a cold instance before it needs it.
func (h *SystemHandler) WakingUp(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"message": "Server has woke up."})
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	response.Success(c, status, gin.H{
		"status":       overall,
		"dependencies": deps,
		"uptime":       time.Since(h.startTime).Round(time.Second).String(),
	})
}
