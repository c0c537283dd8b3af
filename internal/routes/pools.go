package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/reward-rail/reward_rail/internal/pool"
)

// RegisterPoolRoutes wires reward pool endpoints.
func RegisterPoolRoutes(r fiber.Router, h *pool.Handler) {
	r.Post("/pools", h.Create)
	r.Get("/pools", h.List)
	r.Get("/pools/:poolId", h.Get)
	r.Post("/pools/:poolId/distribute", h.Distribute)
	r.Post("/pools/:poolId/cancel", h.Cancel)
	r.Get("/pools/:poolId/distributions", h.ListDistributions)
}
