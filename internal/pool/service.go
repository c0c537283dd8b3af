package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reward-rail/reward_rail/internal/ledger"
	"github.com/reward-rail/reward_rail/internal/notification"
)

// Service coordinates pool escrow and distribution on top of the repository
// and ledger store.
type Service struct {
	repo     Repository
	store    ledger.Store
	notifier notification.Notifier
}

// NewService builds a pool service instance.
func NewService(repo Repository, store ledger.Store, notifier notification.Notifier) *Service {
	return &Service{repo: repo, store: store, notifier: notifier}
}

// CreateInput captures data required to escrow a new pool.
type CreateInput struct {
	FunderWalletID string
	BriefID        string
	TotalAmount    decimal.Decimal

	// RequestID is the caller's creation request id, used as the debit
	// reference so a retried request cannot escrow twice.
	RequestID string
}

// Create escrows TotalAmount from the funder wallet into a new pool. The
// debit and the pool row commit together or not at all.
func (s *Service) Create(ctx context.Context, input CreateInput) (RewardPool, error) {
	if !input.TotalAmount.IsPositive() {
		return RewardPool{}, ledger.ErrInvalidAmount
	}
	if input.BriefID == "" {
		return RewardPool{}, fmt.Errorf("brief id is required")
	}
	w, err := s.store.GetWallet(ctx, input.FunderWalletID)
	if err != nil {
		return RewardPool{}, err
	}
	if w.OwnerKind != ledger.OwnerFunder {
		return RewardPool{}, ErrNotFunderWallet
	}
	if input.RequestID == "" {
		input.RequestID = uuid.NewString()
	}

	p := RewardPool{
		ID:              uuid.NewString(),
		FunderWalletID:  input.FunderWalletID,
		BriefID:         input.BriefID,
		TotalAmount:     input.TotalAmount,
		RemainingAmount: input.TotalAmount,
		Status:          StatusActive,
		FundingRef:      input.RequestID,
		CreatedAt:       time.Now().UTC(),
	}

	created, _, err := s.repo.Create(ctx, p)
	if errors.Is(err, ledger.ErrDuplicateReference) {
		return created, nil
	}
	if err != nil {
		return RewardPool{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPoolCreated,
			Destination: created.FunderWalletID,
			Body:        fmt.Sprintf("Reward pool of %s escrowed for brief %s", created.TotalAmount.StringFixed(2), created.BriefID),
		})
	}
	return created, nil
}

// Distribute pays the recipients out of the pool, all or nothing.
func (s *Service) Distribute(ctx context.Context, poolID string, recipients []Recipient) (DistributionResult, error) {
	if len(recipients) == 0 {
		return DistributionResult{}, ErrNoRecipients
	}
	seen := make(map[string]bool, len(recipients))
	for _, rec := range recipients {
		if !rec.Amount.IsPositive() {
			return DistributionResult{}, ledger.ErrInvalidAmount
		}
		if seen[rec.WalletID] {
			return DistributionResult{}, ErrDuplicateRecipient
		}
		seen[rec.WalletID] = true
	}

	result, err := s.repo.Distribute(ctx, poolID, recipients)
	if errors.Is(err, ErrPoolOverdrawn) {
		sum := decimal.Zero
		for _, rec := range recipients {
			sum = sum.Add(rec.Amount)
		}
		shortfall := sum.Sub(result.Pool.RemainingAmount)
		return result, fmt.Errorf("%w: short by %s", ErrPoolOverdrawn, shortfall.StringFixed(2))
	}
	if err != nil {
		return result, err
	}

	if s.notifier != nil && !result.AlreadyApplied {
		for _, credit := range result.Credits {
			_ = s.notifier.Send(ctx, notification.Message{
				Kind:        notification.KindRewardDistributed,
				Destination: credit.WalletID,
				Body:        fmt.Sprintf("You received a reward of %s", credit.Amount.StringFixed(2)),
			})
		}
	}
	return result, nil
}

// Cancel closes an active pool and refunds its remaining escrow.
func (s *Service) Cancel(ctx context.Context, poolID string) (RewardPool, error) {
	refundRef := "cancel:" + poolID
	cancelled, _, err := s.repo.Cancel(ctx, poolID, refundRef)
	if err != nil {
		return cancelled, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPoolCancelled,
			Destination: cancelled.FunderWalletID,
			Body:        fmt.Sprintf("Pool for brief %s cancelled, %s returned", cancelled.BriefID, cancelled.RemainingAmount.StringFixed(2)),
		})
	}
	return cancelled, nil
}

// Get fetches a pool by identifier.
func (s *Service) Get(ctx context.Context, poolID string) (RewardPool, error) {
	return s.repo.Get(ctx, poolID)
}

// ListByFunder returns the funder's pools, newest first.
func (s *Service) ListByFunder(ctx context.Context, funderWalletID string, page, perPage int) ([]RewardPool, int64, error) {
	return s.repo.ListByFunder(ctx, funderWalletID, page, perPage)
}

// ListDistributions returns the pool's committed payout line items.
func (s *Service) ListDistributions(ctx context.Context, poolID string) ([]Distribution, error) {
	return s.repo.ListDistributions(ctx, poolID)
}
