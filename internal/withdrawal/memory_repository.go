package withdrawal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

type memoryRepository struct {
	mu       sync.RWMutex
	store    *ledger.InMemoryStore
	requests map[string]*Request
}

// NewMemoryRepository constructs an in-memory repository over the in-memory
// ledger store, for tests and dev mode.
func NewMemoryRepository(store *ledger.InMemoryStore) Repository {
	return &memoryRepository{store: store, requests: make(map[string]*Request)}
}

func (r *memoryRepository) Create(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := req
	r.requests[req.ID] = &stored
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return *req, nil
}

func (r *memoryRepository) Decide(_ context.Context, id, status, note string) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if req.Status != StatusPending {
		return Request{}, ErrStateConflict
	}

	req.Status = status
	req.AdminNote = note
	if status == StatusRejected {
		now := time.Now().UTC()
		req.ProcessedAt = &now
	}
	return *req, nil
}

func (r *memoryRepository) Complete(_ context.Context, id string) (Request, ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return Request{}, ledger.Transaction{}, ErrNotFound
	}
	if req.Status != StatusApproved {
		return *req, ledger.Transaction{}, ErrStateConflict
	}

	var debit ledger.Transaction
	err := r.store.RecordFunc(func(record func(ledger.RecordInput) (ledger.Transaction, error)) error {
		var err error
		debit, err = record(ledger.RecordInput{
			WalletID:    req.WalletID,
			Type:        ledger.TxWithdrawal,
			Amount:      req.Amount,
			ReferenceID: req.ID,
			Effect:      ledger.EffectDebit,
		})
		return err
	})

	now := time.Now().UTC()
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		req.Status = StatusFailed
		req.FailureReason = "insufficient balance at completion time"
		req.ProcessedAt = &now
		return *req, ledger.Transaction{}, ledger.ErrInsufficientFunds
	}
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		return Request{}, ledger.Transaction{}, err
	}

	req.Status = StatusCompleted
	req.ProcessedAt = &now
	return *req, debit, nil
}

func (r *memoryRepository) ListByWallet(_ context.Context, walletID string, page, perPage int) ([]Request, int64, error) {
	return r.filter(func(req Request) bool { return req.WalletID == walletID }, true, page, perPage)
}

func (r *memoryRepository) ListByStatus(_ context.Context, status string, page, perPage int) ([]Request, int64, error) {
	return r.filter(func(req Request) bool { return req.Status == status }, false, page, perPage)
}

func (r *memoryRepository) filter(keep func(Request) bool, newestFirst bool, page, perPage int) ([]Request, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Request
	for _, req := range r.requests {
		if keep(*req) {
			all = append(all, *req)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if newestFirst {
			return all[i].RequestedAt.After(all[j].RequestedAt)
		}
		return all[i].RequestedAt.Before(all[j].RequestedAt)
	})

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, int64(len(all)), nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}
