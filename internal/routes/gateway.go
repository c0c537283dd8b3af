package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/reward-rail/reward_rail/internal/gateway"
)

// RegisterGatewayRoutes wires the payment-gateway webhook endpoint.
func RegisterGatewayRoutes(r fiber.Router, h *gateway.Handler, rateLimiter fiber.Handler) {
	if rateLimiter != nil {
		r.Post("/gateway/events", rateLimiter, h.Webhook)
		return
	}
	r.Post("/gateway/events", h.Webhook)
}
