package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/reward-rail/reward_rail/internal/ledger"
	"github.com/reward-rail/reward_rail/internal/notification"
)

// Result is the outcome of consuming one event.
type Result struct {
	Transaction ledger.Transaction
	Replayed    bool
}

// Service consumes gateway events, crediting wallets exactly once per event.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
}

// NewService builds a gateway event consumer.
func NewService(store ledger.Store, notifier notification.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Consume applies one event to the ledger. The event id is the transaction
// reference, so a redelivered event returns the original transaction with
// Replayed set and changes nothing.
func (s *Service) Consume(ctx context.Context, event Event) (Result, error) {
	if err := event.Validate(); err != nil {
		return Result{}, err
	}

	kind := ledger.OwnerFunder
	txType := ledger.TxDeposit
	if event.Type == EventPayoutConfirmed {
		kind = ledger.OwnerEarner
		txType = ledger.TxCredit
	}

	w, err := s.store.GetOrCreateWallet(ctx, event.OwnerID, kind)
	if err != nil {
		return Result{}, err
	}

	metadata := map[string]string{"gateway_event": event.Type}
	for k, v := range event.Metadata {
		metadata[k] = v
	}

	tx, err := s.store.Record(ctx, ledger.RecordInput{
		WalletID:    w.ID,
		Type:        txType,
		Amount:      event.Amount,
		ReferenceID: event.ID,
		Effect:      ledger.EffectCredit,
		Metadata:    metadata,
	})
	if errors.Is(err, ledger.ErrDuplicateReference) {
		return Result{Transaction: tx, Replayed: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	s.notify(ctx, event, tx)
	return Result{Transaction: tx}, nil
}

func (s *Service) notify(ctx context.Context, event Event, tx ledger.Transaction) {
	if s.notifier == nil {
		return
	}
	kind := notification.KindDepositConfirmed
	if event.Type == EventPayoutConfirmed {
		kind = notification.KindRewardDistributed
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: tx.WalletID,
		Body:        fmt.Sprintf("%s of %s confirmed", tx.Type, tx.Amount.StringFixed(2)),
	})
}
