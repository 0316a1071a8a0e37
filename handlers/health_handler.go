package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chatdesk/agent-core/pkg/cache"
	"github.com/chatdesk/agent-core/pkg/push"
)

// HealthHandler handles health checks.
type HealthHandler struct {
	push         *push.Conn
	cache        *cache.Client
	checkTimeout time.Duration
}

func NewHealthHandler(pushConn *push.Conn, cacheClient *cache.Client) *HealthHandler {
	return &HealthHandler{
		push:         pushConn,
		cache:        cacheClient,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and component statuses (push channel and
// summary cache). The push channel is lazily connected, so "idle" before
// the first conversation is opened is healthy.
// @Summary Health check
// @Description Returns overall status with push channel and cache connectivity results
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	pushStatus := "idle"
	if h.push != nil && h.push.IsConnected() {
		pushStatus = "up"
	}

	cacheStatus := "disabled"
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "down"
			overallStatus = "degraded"
		} else {
			cacheStatus = "up"
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"push": map[string]any{
				"status": pushStatus,
			},
			"cache": map[string]any{
				"status": cacheStatus,
			},
		},
	})
}
