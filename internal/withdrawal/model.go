package withdrawal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the referenced request does not exist.
	ErrNotFound = errors.New("withdrawal request not found")

	// ErrStateConflict rejects a transition from an unexpected state, e.g.
	// deciding an already-decided request or completing one never approved.
	ErrStateConflict = errors.New("withdrawal state conflict")

	// ErrBelowMinimum rejects requests under the configured minimum.
	ErrBelowMinimum = errors.New("amount below minimum withdrawal")

	// ErrNotEarnerWallet rejects withdrawals from non-earner wallets.
	ErrNotEarnerWallet = errors.New("withdrawals are limited to earner wallets")
)

// Request statuses. pending -> approved|rejected; approved -> completed|failed.
// rejected, completed and failed are terminal. Funds move only on completion.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Request is one earner withdrawal moving through the admin workflow. The
// wallet is not debited at request time; several pending requests may
// together exceed the balance, and each is re-validated at completion.
type Request struct {
	ID            string
	WalletID      string
	Amount        decimal.Decimal
	Status        string
	AdminNote     string
	FailureReason string
	RequestedAt   time.Time
	ProcessedAt   *time.Time
}
