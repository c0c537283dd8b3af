package pool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

type memoryRepository struct {
	mu            sync.RWMutex
	store         *ledger.InMemoryStore
	pools         map[string]*RewardPool
	byFundingRef  map[string]string
	distributions map[string][]Distribution
}

// NewMemoryRepository constructs an in-memory repository over the in-memory
// ledger store, for tests and dev mode.
func NewMemoryRepository(store *ledger.InMemoryStore) Repository {
	return &memoryRepository{
		store:         store,
		pools:         make(map[string]*RewardPool),
		byFundingRef:  make(map[string]string),
		distributions: make(map[string][]Distribution),
	}
}

func (r *memoryRepository) Create(_ context.Context, p RewardPool) (RewardPool, ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if priorID, ok := r.byFundingRef[p.FundingRef]; ok {
		return *r.pools[priorID], ledger.Transaction{}, ledger.ErrDuplicateReference
	}

	var debit ledger.Transaction
	err := r.store.RecordFunc(func(record func(ledger.RecordInput) (ledger.Transaction, error)) error {
		var err error
		debit, err = record(ledger.RecordInput{
			WalletID:    p.FunderWalletID,
			Type:        ledger.TxDebit,
			Amount:      p.TotalAmount,
			ReferenceID: p.FundingRef,
			Effect:      ledger.EffectDebit,
			Metadata:    map[string]string{"brief_id": p.BriefID, "pool_id": p.ID},
		})
		return err
	})
	if err != nil {
		return RewardPool{}, ledger.Transaction{}, err
	}

	stored := p
	r.pools[p.ID] = &stored
	r.byFundingRef[p.FundingRef] = p.ID
	return p, debit, nil
}

func (r *memoryRepository) Distribute(_ context.Context, poolID string, recipients []Recipient) (DistributionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[poolID]
	if !ok {
		return DistributionResult{}, ErrPoolNotFound
	}
	if p.Status != StatusActive {
		return DistributionResult{Pool: *p}, ErrPoolNotActive
	}

	sum := decimal.Zero
	for _, rec := range recipients {
		sum = sum.Add(rec.Amount)
	}
	if sum.GreaterThan(p.RemainingAmount) {
		return DistributionResult{Pool: *p}, ErrPoolOverdrawn
	}

	ordered := make([]Recipient, len(recipients))
	copy(ordered, recipients)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].WalletID < ordered[j].WalletID })

	var (
		credits      []ledger.Transaction
		duplicateHit bool
	)
	err := r.store.RecordFunc(func(record func(ledger.RecordInput) (ledger.Transaction, error)) error {
		for _, rec := range ordered {
			credit, err := record(ledger.RecordInput{
				WalletID:    rec.WalletID,
				Type:        ledger.TxReward,
				Amount:      rec.Amount,
				ReferenceID: RewardReference(poolID, rec.WalletID),
				Effect:      ledger.EffectCredit,
				Metadata:    map[string]string{"pool_id": poolID, "brief_id": p.BriefID},
			})
			if errors.Is(err, ledger.ErrDuplicateReference) {
				duplicateHit = true
				return err
			}
			if err != nil {
				return err
			}
			credits = append(credits, credit)
		}
		return nil
	})
	if duplicateHit {
		// Only an exact replay of the committed line items is a no-op;
		// a different recipient set colliding with old refs is an error.
		if !r.replayMatchesLocked(poolID, recipients) {
			return DistributionResult{Pool: *p}, ErrDistributionConflict
		}
		return DistributionResult{Pool: *p, AlreadyApplied: true}, nil
	}
	if err != nil {
		return DistributionResult{}, err
	}

	now := time.Now().UTC()
	for _, rec := range ordered {
		r.distributions[poolID] = append(r.distributions[poolID], Distribution{
			ID:        uuid.NewString(),
			PoolID:    poolID,
			WalletID:  rec.WalletID,
			Amount:    rec.Amount,
			CreatedAt: now,
		})
	}

	p.RemainingAmount = p.RemainingAmount.Sub(sum)
	if p.RemainingAmount.IsZero() {
		p.Status = StatusExhausted
	}
	return DistributionResult{Pool: *p, Credits: credits}, nil
}

func (r *memoryRepository) replayMatchesLocked(poolID string, recipients []Recipient) bool {
	committed := make(map[string]decimal.Decimal, len(r.distributions[poolID]))
	for _, line := range r.distributions[poolID] {
		committed[line.WalletID] = line.Amount
	}
	for _, rec := range recipients {
		amount, ok := committed[rec.WalletID]
		if !ok || !amount.Equal(rec.Amount) {
			return false
		}
	}
	return true
}

func (r *memoryRepository) Cancel(_ context.Context, poolID, refundRef string) (RewardPool, ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[poolID]
	if !ok {
		return RewardPool{}, ledger.Transaction{}, ErrPoolNotFound
	}
	if p.Status != StatusActive {
		return *p, ledger.Transaction{}, ErrPoolNotActive
	}

	var refund ledger.Transaction
	if p.RemainingAmount.IsPositive() {
		err := r.store.RecordFunc(func(record func(ledger.RecordInput) (ledger.Transaction, error)) error {
			var err error
			refund, err = record(ledger.RecordInput{
				WalletID:    p.FunderWalletID,
				Type:        ledger.TxCredit,
				Amount:      p.RemainingAmount,
				ReferenceID: refundRef,
				Effect:      ledger.EffectCredit,
				Metadata:    map[string]string{"pool_id": poolID, "reason": "pool_cancelled"},
			})
			return err
		})
		if err != nil {
			return RewardPool{}, ledger.Transaction{}, err
		}
	}

	p.Status = StatusCancelled
	return *p, refund, nil
}

func (r *memoryRepository) Get(_ context.Context, poolID string) (RewardPool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[poolID]
	if !ok {
		return RewardPool{}, ErrPoolNotFound
	}
	return *p, nil
}

func (r *memoryRepository) ListByFunder(_ context.Context, funderWalletID string, page, perPage int) ([]RewardPool, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []RewardPool
	for _, p := range r.pools {
		if p.FunderWalletID == funderWalletID {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

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

func (r *memoryRepository) ListDistributions(_ context.Context, poolID string) ([]Distribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.pools[poolID]; !ok {
		return nil, ErrPoolNotFound
	}
	out := make([]Distribution, len(r.distributions[poolID]))
	copy(out, r.distributions[poolID])
	return out, nil
}
