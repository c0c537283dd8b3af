package gateway

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Event types delivered by the payment gateway webhook.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPayoutConfirmed   = "payout.confirmed"
)

// Event is one gateway notification. The gateway retries deliveries, so
// events arrive at least once; ID is the dedupe key.
type Event struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	OwnerID  string            `json:"owner_id"`
	Amount   decimal.Decimal   `json:"amount"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ErrUnknownEvent flags an event type this consumer does not handle.
var ErrUnknownEvent = errors.New("unknown gateway event type")

// Validate rejects malformed events before any ledger access.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.New("event id is required")
	}
	if e.OwnerID == "" {
		return errors.New("event owner id is required")
	}
	if !e.Amount.IsPositive() {
		return errors.New("event amount must be positive")
	}
	if e.Type != EventCheckoutCompleted && e.Type != EventPayoutConfirmed {
		return ErrUnknownEvent
	}
	return nil
}
