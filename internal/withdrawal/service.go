package withdrawal

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

// Decision is the admin disposition of a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Service drives the withdrawal state machine.
type Service struct {
	repo          Repository
	store         ledger.Store
	notifier      notification.Notifier
	minWithdrawal decimal.Decimal
}

// NewService builds a withdrawal service instance.
func NewService(repo Repository, store ledger.Store, notifier notification.Notifier, minWithdrawal decimal.Decimal) *Service {
	return &Service{repo: repo, store: store, notifier: notifier, minWithdrawal: minWithdrawal}
}

// Request validates and files a pending withdrawal. No funds move here; the
// balance check is advisory and repeated at completion time.
func (s *Service) Request(ctx context.Context, walletID string, amount decimal.Decimal) (Request, error) {
	if !amount.IsPositive() {
		return Request{}, ledger.ErrInvalidAmount
	}
	if amount.LessThan(s.minWithdrawal) {
		return Request{}, fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, s.minWithdrawal.StringFixed(2))
	}

	w, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return Request{}, err
	}
	if w.OwnerKind != ledger.OwnerEarner {
		return Request{}, ErrNotEarnerWallet
	}
	if w.Balance.LessThan(amount) {
		return Request{}, fmt.Errorf("%w: balance is %s", ledger.ErrInsufficientFunds, w.Balance.StringFixed(2))
	}

	req := Request{
		ID:          uuid.NewString(),
		WalletID:    walletID,
		Amount:      amount,
		Status:      StatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return Request{}, err
	}

	s.notify(ctx, notification.KindWithdrawalRequested, req,
		fmt.Sprintf("Withdrawal of %s requested", req.Amount.StringFixed(2)))
	return req, nil
}

// Decide applies an admin approval or rejection to a pending request.
// Rejection has no ledger effect beyond recording the note.
func (s *Service) Decide(ctx context.Context, requestID string, decision Decision, note string) (Request, error) {
	var status string
	switch decision {
	case DecisionApprove:
		status = StatusApproved
	case DecisionReject:
		status = StatusRejected
	default:
		return Request{}, fmt.Errorf("unknown decision %q", decision)
	}

	req, err := s.repo.Decide(ctx, requestID, status, note)
	if err != nil {
		return Request{}, err
	}

	kind := notification.KindWithdrawalApproved
	if decision == DecisionReject {
		kind = notification.KindWithdrawalRejected
	}
	s.notify(ctx, kind, req, fmt.Sprintf("Withdrawal of %s %s", req.Amount.StringFixed(2), req.Status))
	return req, nil
}

// Complete finalizes an approved request. The amount is re-validated against
// the live balance inside the same unit of work as the debit; an insufficient
// balance moves the request to failed instead, debiting nothing.
func (s *Service) Complete(ctx context.Context, requestID string) (Request, error) {
	req, debit, err := s.repo.Complete(ctx, requestID)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		s.notify(ctx, notification.KindWithdrawalFailed, req, req.FailureReason)
		return req, err
	}
	if err != nil {
		return req, err
	}

	s.notify(ctx, notification.KindWithdrawalCompleted, req,
		fmt.Sprintf("Withdrawal of %s paid out, balance %s", debit.Amount.StringFixed(2), debit.BalanceAfter.StringFixed(2)))
	return req, nil
}

// Get fetches a request by identifier.
func (s *Service) Get(ctx context.Context, requestID string) (Request, error) {
	return s.repo.Get(ctx, requestID)
}

// ListByWallet returns the wallet's requests, newest first.
func (s *Service) ListByWallet(ctx context.Context, walletID string, page, perPage int) ([]Request, int64, error) {
	return s.repo.ListByWallet(ctx, walletID, page, perPage)
}

// ListPending returns the admin work queue in arrival order.
func (s *Service) ListPending(ctx context.Context, page, perPage int) ([]Request, int64, error) {
	return s.repo.ListByStatus(ctx, StatusPending, page, perPage)
}

func (s *Service) notify(ctx context.Context, kind string, req Request, body string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: req.WalletID, Body: body})
}
