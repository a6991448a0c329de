package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db       Pinger
	provider string
	storage  string
}

func NewHealthHandler(db Pinger, provider, storage string) *HealthHandler {
	return &HealthHandler{db: db, provider: provider, storage: storage}
}

// GetHealth godoc
// @Summary Service health check
// @Description Check if API and database are alive
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":   "ok",
		"service":  "imaginario-api",
		"provider": h.provider,
		"storage":  h.storage,
	}

	if err := h.db.Ping(c.UserContext()); err != nil {
		body["status"] = "degraded"
		body["database"] = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	return c.JSON(body)
}
