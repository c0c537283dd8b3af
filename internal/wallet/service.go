package wallet

import (
	"context"
	"errors"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

// Service is a thin application layer over the ledger store for wallet
// lookup and statement queries.
type Service struct {
	store ledger.Store
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// GetOrCreate provisions the wallet for an owner on first access.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string, kind ledger.OwnerKind) (ledger.Wallet, error) {
	if ownerID == "" {
		return ledger.Wallet{}, errors.New("owner id is required")
	}
	if !kind.Valid() {
		return ledger.Wallet{}, errors.New("owner kind must be funder or earner")
	}
	return s.store.GetOrCreateWallet(ctx, ownerID, kind)
}

// Get fetches a wallet by identifier.
func (s *Service) Get(ctx context.Context, walletID string) (ledger.Wallet, error) {
	return s.store.GetWallet(ctx, walletID)
}

// Find fetches a wallet by owner without creating it.
func (s *Service) Find(ctx context.Context, ownerID string, kind ledger.OwnerKind) (ledger.Wallet, error) {
	if !kind.Valid() {
		return ledger.Wallet{}, errors.New("owner kind must be funder or earner")
	}
	return s.store.FindWallet(ctx, ownerID, kind)
}

// Transactions returns the wallet's statement, newest first.
func (s *Service) Transactions(ctx context.Context, walletID string, page, perPage int) ([]ledger.Transaction, int64, error) {
	if _, err := s.store.GetWallet(ctx, walletID); err != nil {
		return nil, 0, err
	}
	return s.store.ListTransactions(ctx, walletID, page, perPage)
}
