package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when a debit would drive the wallet balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates a transaction with the same reference id
	// and type has already been recorded. The prior transaction is returned
	// alongside this sentinel so callers can treat the operation as an
	// idempotent no-op.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrInvalidAmount rejects non-positive amounts before any store access.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrWalletNotFound indicates the referenced wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")
)

// OwnerKind partitions wallets between the two actor types.
type OwnerKind string

const (
	OwnerFunder OwnerKind = "funder"
	OwnerEarner OwnerKind = "earner"
)

// Valid reports whether the kind is one of the known actor types.
func (k OwnerKind) Valid() bool {
	return k == OwnerFunder || k == OwnerEarner
}

// TxType classifies a ledger transaction. The sign of the balance movement is
// carried separately by Effect.
type TxType string

const (
	TxDeposit     TxType = "deposit"
	TxCredit      TxType = "credit"
	TxDebit       TxType = "debit"
	TxWithdrawal  TxType = "withdrawal"
	TxReward      TxType = "reward"
	TxPlatformFee TxType = "platform_fee"
)

// Valid reports whether the transaction type is known.
func (t TxType) Valid() bool {
	switch t {
	case TxDeposit, TxCredit, TxDebit, TxWithdrawal, TxReward, TxPlatformFee:
		return true
	}
	return false
}

// Effect determines whether a transaction credits or debits the wallet.
type Effect string

const (
	EffectCredit Effect = "credit"
	EffectDebit  Effect = "debit"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Wallet tracks the spendable balance and reporting aggregates for one owner.
// The invariant balance == totalDeposited + totalEarned - totalSpent -
// totalWithdrawn holds across every committed transaction.
type Wallet struct {
	ID             string
	OwnerID        string
	OwnerKind      OwnerKind
	Balance        decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalEarned    decimal.Decimal
	TotalSpent     decimal.Decimal
	TotalWithdrawn decimal.Decimal
	CreatedAt      time.Time
}

// Transaction is an immutable, append-only ledger record. BalanceBefore and
// BalanceAfter are snapshots captured at write time and never recomputed.
type Transaction struct {
	ID            string
	WalletID      string
	Type          TxType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceID   string
	Status        string
	Metadata      map[string]string
	CreatedAt     time.Time
}

// RecordInput carries everything needed to append one transaction.
type RecordInput struct {
	WalletID    string
	Type        TxType
	Amount      decimal.Decimal
	ReferenceID string
	Effect      Effect
	Metadata    map[string]string
}

// Validate rejects malformed input before any store access.
func (in RecordInput) Validate() error {
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !in.Type.Valid() {
		return errors.New("unknown transaction type")
	}
	if in.Effect != EffectCredit && in.Effect != EffectDebit {
		return errors.New("unknown transaction effect")
	}
	if in.ReferenceID == "" {
		return errors.New("reference id is required")
	}
	return nil
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
// Every state-changing call executes atomically with row locking on the
// wallet it touches.
type Store interface {
	// GetOrCreateWallet returns the wallet for (ownerID, kind), creating it
	// with zero balances on first access. Safe under concurrent first access.
	GetOrCreateWallet(ctx context.Context, ownerID string, kind OwnerKind) (Wallet, error)

	// GetWallet fetches a wallet by its identifier.
	GetWallet(ctx context.Context, walletID string) (Wallet, error)

	// FindWallet fetches a wallet by owner without creating it.
	FindWallet(ctx context.Context, ownerID string, kind OwnerKind) (Wallet, error)

	// Record appends a transaction and updates the owning wallet's balance and
	// matching aggregate in the same unit of work. A call whose reference id
	// and type match a prior transaction returns that transaction together
	// with ErrDuplicateReference and changes nothing.
	Record(ctx context.Context, input RecordInput) (Transaction, error)

	// ListTransactions returns the wallet's transactions, newest first.
	ListTransactions(ctx context.Context, walletID string, page, perPage int) ([]Transaction, int64, error)
}

// aggregateFor maps a transaction type to the wallet reporting aggregate it
// increments.
func aggregateFor(t TxType) string {
	switch t {
	case TxDeposit:
		return "total_deposited"
	case TxCredit, TxReward:
		return "total_earned"
	case TxWithdrawal:
		return "total_withdrawn"
	default: // debit, platform_fee
		return "total_spent"
	}
}
