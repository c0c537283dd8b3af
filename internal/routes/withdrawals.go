package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/reward-rail/reward_rail/internal/withdrawal"
)

// RegisterWithdrawalRoutes wires the earner-facing withdrawal endpoints.
func RegisterWithdrawalRoutes(r fiber.Router, h *withdrawal.Handler) {
	r.Post("/withdrawals", h.Request)
	r.Get("/withdrawals", h.List)
	r.Get("/withdrawals/:requestId", h.Get)
}

// RegisterAdminRoutes wires the key-guarded admin surface.
func RegisterAdminRoutes(r fiber.Router, h *withdrawal.Handler) {
	r.Get("/withdrawals", h.ListPending)
	r.Post("/withdrawals/:requestId/decide", h.Decide)
	r.Post("/withdrawals/:requestId/complete", h.Complete)
}
