package pool

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

// Handler exposes reward pool HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a pool HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	FunderWalletID string          `json:"funder_wallet_id"`
	BriefID        string          `json:"brief_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	RequestID      string          `json:"request_id"`
}

type poolResponse struct {
	ID              string    `json:"id"`
	FunderWalletID  string    `json:"funder_wallet_id"`
	BriefID         string    `json:"brief_id"`
	TotalAmount     string    `json:"total_amount"`
	RemainingAmount string    `json:"remaining_amount"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func toPoolResponse(p RewardPool) poolResponse {
	return poolResponse{
		ID:              p.ID,
		FunderWalletID:  p.FunderWalletID,
		BriefID:         p.BriefID,
		TotalAmount:     p.TotalAmount.StringFixed(2),
		RemainingAmount: p.RemainingAmount.StringFixed(2),
		Status:          p.Status,
		CreatedAt:       p.CreatedAt,
	}
}

// Create escrows a new reward pool from the funder wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	created, err := h.service.Create(c.UserContext(), CreateInput{
		FunderWalletID: req.FunderWalletID,
		BriefID:        req.BriefID,
		TotalAmount:    req.TotalAmount,
		RequestID:      req.RequestID,
	})
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusCreated).JSON(toPoolResponse(created))
}

type distributeRequest struct {
	Recipients []struct {
		WalletID string          `json:"wallet_id"`
		Amount   decimal.Decimal `json:"amount"`
	} `json:"recipients"`
}

// Distribute pays a recipient list out of the pool escrow.
func (h *Handler) Distribute(c *fiber.Ctx) error {
	var req distributeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	recipients := make([]Recipient, 0, len(req.Recipients))
	for _, rec := range req.Recipients {
		recipients = append(recipients, Recipient{WalletID: rec.WalletID, Amount: rec.Amount})
	}

	result, err := h.service.Distribute(c.UserContext(), c.Params("poolId"), recipients)
	if err != nil {
		return statusError(err)
	}

	credits := make([]fiber.Map, 0, len(result.Credits))
	for _, credit := range result.Credits {
		credits = append(credits, fiber.Map{
			"wallet_id":     credit.WalletID,
			"amount":        credit.Amount.StringFixed(2),
			"balance_after": credit.BalanceAfter.StringFixed(2),
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"pool":            toPoolResponse(result.Pool),
		"credits":         credits,
		"already_applied": result.AlreadyApplied,
	})
}

// Cancel closes an active pool and refunds the remaining escrow.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	cancelled, err := h.service.Cancel(c.UserContext(), c.Params("poolId"))
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(toPoolResponse(cancelled))
}

// Get returns one pool.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), c.Params("poolId"))
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(toPoolResponse(p))
}

// List returns the funder's pools, paginated.
func (h *Handler) List(c *fiber.Ctx) error {
	funderWalletID := c.Query("funder_wallet_id")
	if funderWalletID == "" {
		return fiber.NewError(http.StatusBadRequest, "funder_wallet_id is required")
	}
	pools, total, err := h.service.ListByFunder(c.UserContext(), funderWalletID,
		c.QueryInt("page", 1), c.QueryInt("per_page", 50))
	if err != nil {
		return statusError(err)
	}

	out := make([]poolResponse, 0, len(pools))
	for _, p := range pools {
		out = append(out, toPoolResponse(p))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"pools": out, "total": total})
}

// ListDistributions returns the pool's committed payout line items.
func (h *Handler) ListDistributions(c *fiber.Ctx) error {
	distributions, err := h.service.ListDistributions(c.UserContext(), c.Params("poolId"))
	if err != nil {
		return statusError(err)
	}

	out := make([]fiber.Map, 0, len(distributions))
	for _, d := range distributions {
		out = append(out, fiber.Map{
			"id":         d.ID,
			"wallet_id":  d.WalletID,
			"amount":     d.Amount.StringFixed(2),
			"created_at": d.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"distributions": out})
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrPoolNotFound), errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPoolNotActive), errors.Is(err, ErrDistributionConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ErrPoolOverdrawn):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}
