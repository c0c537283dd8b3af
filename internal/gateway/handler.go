package gateway

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler receives payment-gateway webhook deliveries.
type Handler struct {
	service *Service
}

// NewHandler builds a gateway webhook handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Webhook consumes one event. Replays acknowledge with 200 so the gateway
// stops retrying; unknown event types are acknowledged and skipped for the
// same reason.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	var event Event
	if err := c.BodyParser(&event); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Consume(c.UserContext(), event)
	if errors.Is(err, ErrUnknownEvent) {
		return c.Status(http.StatusOK).JSON(fiber.Map{"skipped": true})
	}
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transaction_id": result.Transaction.ID,
		"replayed":       result.Replayed,
	})
}
