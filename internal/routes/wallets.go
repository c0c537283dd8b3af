package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/reward-rail/reward_rail/internal/wallet"
)

// RegisterWalletRoutes wires wallet provisioning and statement endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets", h.Find)
	r.Get("/wallets/:walletId", h.Get)
	r.Get("/wallets/:walletId/transactions", h.Transactions)
}
