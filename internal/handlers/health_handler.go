package handlers

import (
	"net/http"

	"donation-agent/utils"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
)

// Breaker is a circuit breaker whose state is reported by /health.
type Breaker interface {
	Name() string
	State() utils.State
}

type HealthHandler struct {
	redis    *redis.Client
	breakers []Breaker
}

func NewHealthHandler(redisClient *redis.Client, breakers ...Breaker) *HealthHandler {
	return &HealthHandler{redis: redisClient, breakers: breakers}
}

// Health reports ok when the agent and its redis (if configured) are usable.
// An open breaker degrades the report without failing it.
func (h *HealthHandler) Health(c echo.Context) error {
	deps := map[string]string{"redis": "disabled"}
	result := "ok"

	for _, b := range h.breakers {
		state := b.State()
		deps[b.Name()] = state.String()
		if state == utils.StateOpen {
			result = "degraded"
		}
	}

	if h.redis != nil {
		if err := utils.RedisHealthCheck(c.Request().Context(), h.redis); err != nil {
			deps["redis"] = "down"
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "degraded", "dependencies": deps})
		}
		deps["redis"] = "up"
	}

	return c.JSON(http.StatusOK, map[string]any{"status": result, "dependencies": deps})
}
