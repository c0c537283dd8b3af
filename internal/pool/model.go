package pool

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

var (
	// ErrPoolOverdrawn occurs when a distribution asks for more than the
	// pool's remaining escrow.
	ErrPoolOverdrawn = errors.New("pool overdrawn")

	// ErrPoolNotActive rejects operations against exhausted or cancelled pools.
	ErrPoolNotActive = errors.New("pool not active")

	// ErrPoolNotFound indicates the referenced pool does not exist.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrDuplicateRecipient rejects a distribution naming a wallet twice.
	ErrDuplicateRecipient = errors.New("duplicate recipient wallet")

	// ErrNoRecipients rejects an empty distribution.
	ErrNoRecipients = errors.New("no recipients")

	// ErrDistributionConflict rejects a distribution that collides with an
	// earlier payout from the pool without repeating it exactly.
	ErrDistributionConflict = errors.New("distribution conflicts with an earlier payout")

	// ErrNotFunderWallet rejects funding a pool from a non-funder wallet.
	ErrNotFunderWallet = errors.New("pools must be funded from a funder wallet")
)

// Pool statuses.
const (
	StatusActive    = "active"
	StatusExhausted = "exhausted"
	StatusCancelled = "cancelled"
)

// RewardPool escrows part of a funder wallet's balance against one campaign
// brief. TotalAmount is fixed at creation; RemainingAmount only decreases as
// distributions commit. 0 <= RemainingAmount <= TotalAmount always holds.
type RewardPool struct {
	ID              string
	FunderWalletID  string
	BriefID         string
	TotalAmount     decimal.Decimal
	RemainingAmount decimal.Decimal
	Status          string
	FundingRef      string
	CreatedAt       time.Time
}

// Distribution is one committed payout line item.
type Distribution struct {
	ID        string
	PoolID    string
	WalletID  string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Recipient names one wallet and the amount it receives in a distribution.
type Recipient struct {
	WalletID string
	Amount   decimal.Decimal
}

// DistributionResult captures the outcome of one distribute call.
type DistributionResult struct {
	Pool    RewardPool
	Credits []ledger.Transaction

	// AlreadyApplied is set when the same distribution was committed by an
	// earlier call; the ledger is unchanged by this one.
	AlreadyApplied bool
}
