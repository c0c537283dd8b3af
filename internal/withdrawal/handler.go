package withdrawal

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

// Handler exposes withdrawal HTTP endpoints. Decide and Complete are wired
// behind the admin middleware.
type Handler struct {
	service *Service
}

// NewHandler builds a withdrawal HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestBody struct {
	WalletID string          `json:"wallet_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type requestResponse struct {
	ID            string     `json:"id"`
	WalletID      string     `json:"wallet_id"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	AdminNote     string     `json:"admin_note,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

func toResponse(req Request) requestResponse {
	return requestResponse{
		ID:            req.ID,
		WalletID:      req.WalletID,
		Amount:        req.Amount.StringFixed(2),
		Status:        req.Status,
		AdminNote:     req.AdminNote,
		FailureReason: req.FailureReason,
		RequestedAt:   req.RequestedAt,
		ProcessedAt:   req.ProcessedAt,
	}
}

// Request files a pending withdrawal for an earner wallet.
func (h *Handler) Request(c *fiber.Ctx) error {
	var body requestBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	req, err := h.service.Request(c.UserContext(), body.WalletID, body.Amount)
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(req))
}

type decideBody struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

// Decide applies the admin disposition.
func (h *Handler) Decide(c *fiber.Ctx) error {
	var body decideBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	req, err := h.service.Decide(c.UserContext(), c.Params("requestId"), Decision(body.Decision), body.Note)
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(req))
}

// Complete finalizes an approved request.
func (h *Handler) Complete(c *fiber.Ctx) error {
	req, err := h.service.Complete(c.UserContext(), c.Params("requestId"))
	if err != nil && !errors.Is(err, ledger.ErrInsufficientFunds) {
		return statusError(err)
	}
	// A completion-time shortfall is reported as the failed request, not as
	// an HTTP error: the state machine advanced to a terminal state.
	return c.Status(http.StatusOK).JSON(toResponse(req))
}

// Get returns one request.
func (h *Handler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("requestId"))
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(req))
}

// List returns a wallet's requests, paginated.
func (h *Handler) List(c *fiber.Ctx) error {
	walletID := c.Query("wallet_id")
	if walletID == "" {
		return fiber.NewError(http.StatusBadRequest, "wallet_id is required")
	}
	requests, total, err := h.service.ListByWallet(c.UserContext(), walletID,
		c.QueryInt("page", 1), c.QueryInt("per_page", 50))
	if err != nil {
		return statusError(err)
	}
	out := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toResponse(req))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"withdrawals": out, "total": total})
}

// ListPending returns the admin work queue.
func (h *Handler) ListPending(c *fiber.Ctx) error {
	requests, total, err := h.service.ListPending(c.UserContext(),
		c.QueryInt("page", 1), c.QueryInt("per_page", 50))
	if err != nil {
		return statusError(err)
	}
	out := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toResponse(req))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"withdrawals": out, "total": total})
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrStateConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}
