package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

// Handler exposes wallet lookup and statement endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createBody struct {
	OwnerID   string `json:"owner_id"`
	OwnerKind string `json:"owner_kind"`
}

type walletResponse struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	OwnerKind      string    `json:"owner_kind"`
	Balance        string    `json:"balance"`
	TotalDeposited string    `json:"total_deposited"`
	TotalEarned    string    `json:"total_earned"`
	TotalSpent     string    `json:"total_spent"`
	TotalWithdrawn string    `json:"total_withdrawn"`
	CreatedAt      time.Time `json:"created_at"`
}

func toResponse(w ledger.Wallet) walletResponse {
	return walletResponse{
		ID:             w.ID,
		OwnerID:        w.OwnerID,
		OwnerKind:      string(w.OwnerKind),
		Balance:        w.Balance.StringFixed(2),
		TotalDeposited: w.TotalDeposited.StringFixed(2),
		TotalEarned:    w.TotalEarned.StringFixed(2),
		TotalSpent:     w.TotalSpent.StringFixed(2),
		TotalWithdrawn: w.TotalWithdrawn.StringFixed(2),
		CreatedAt:      w.CreatedAt,
	}
}

type transactionResponse struct {
	ID            string            `json:"id"`
	WalletID      string            `json:"wallet_id"`
	Type          string            `json:"type"`
	Amount        string            `json:"amount"`
	BalanceBefore string            `json:"balance_before"`
	BalanceAfter  string            `json:"balance_after"`
	ReferenceID   string            `json:"reference_id"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Create provisions (or returns) the wallet for an owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	var body createBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.GetOrCreate(c.UserContext(), body.OwnerID, ledger.OwnerKind(body.OwnerKind))
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(w))
}

// Get returns a wallet by identifier.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(w))
}

// Find returns a wallet by owner id and kind.
func (h *Handler) Find(c *fiber.Ctx) error {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		return fiber.NewError(http.StatusBadRequest, "owner_id is required")
	}
	w, err := h.service.Find(c.UserContext(), ownerID, ledger.OwnerKind(c.Query("owner_kind")))
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(w))
}

// Transactions returns the wallet's statement, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	txs, total, err := h.service.Transactions(c.UserContext(), c.Params("walletId"),
		c.QueryInt("page", 1), c.QueryInt("per_page", 50))
	if err != nil {
		return statusError(err)
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			ID:            tx.ID,
			WalletID:      tx.WalletID,
			Type:          string(tx.Type),
			Amount:        tx.Amount.StringFixed(2),
			BalanceBefore: tx.BalanceBefore.StringFixed(2),
			BalanceAfter:  tx.BalanceAfter.StringFixed(2),
			ReferenceID:   tx.ReferenceID,
			Status:        tx.Status,
			Metadata:      tx.Metadata,
			CreatedAt:     tx.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out, "total": total})
}

func statusError(err error) error {
	if errors.Is(err, ledger.ErrWalletNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return fiber.NewError(http.StatusBadRequest, err.Error())
}
