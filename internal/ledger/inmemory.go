package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a concurrency-safe ledger kept in process memory. It backs
// unit tests and dev mode; semantics mirror the Postgres store.
type InMemoryStore struct {
	mu        sync.RWMutex
	wallets   map[string]*Wallet // keyed by wallet id
	byOwner   map[string]string  // owner_kind:owner_id -> wallet id
	records   []Transaction
	byRef     map[string]int // type:reference_id -> index into records
	byWallet  map[string][]int
	createdAt func() time.Time
}

// NewInMemory creates an empty in-memory ledger store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		wallets:   make(map[string]*Wallet),
		byOwner:   make(map[string]string),
		byRef:     make(map[string]int),
		byWallet:  make(map[string][]int),
		createdAt: func() time.Time { return time.Now().UTC() },
	}
}

func ownerKey(ownerID string, kind OwnerKind) string {
	return string(kind) + ":" + ownerID
}

func refKey(t TxType, referenceID string) string {
	return string(t) + ":" + referenceID
}

func (s *InMemoryStore) GetOrCreateWallet(_ context.Context, ownerID string, kind OwnerKind) (Wallet, error) {
	if ownerID == "" {
		return Wallet{}, fmt.Errorf("owner id is required")
	}
	if !kind.Valid() {
		return Wallet{}, fmt.Errorf("unknown owner kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byOwner[ownerKey(ownerID, kind)]; ok {
		return *s.wallets[id], nil
	}

	w := &Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		OwnerKind: kind,
		CreatedAt: s.createdAt(),
	}
	s.wallets[w.ID] = w
	s.byOwner[ownerKey(ownerID, kind)] = w.ID
	return *w, nil
}

func (s *InMemoryStore) GetWallet(_ context.Context, walletID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return *w, nil
}

func (s *InMemoryStore) FindWallet(_ context.Context, ownerID string, kind OwnerKind) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[ownerKey(ownerID, kind)]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return *s.wallets[id], nil
}

func (s *InMemoryStore) Record(_ context.Context, input RecordInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(input)
}

// recordLocked applies a transaction with the store mutex already held. The
// pool and withdrawal memory repositories use it through RecordFunc to mimic
// the composite commits of the Postgres backend.
func (s *InMemoryStore) recordLocked(input RecordInput) (Transaction, error) {
	w, ok := s.wallets[input.WalletID]
	if !ok {
		return Transaction{}, ErrWalletNotFound
	}

	if idx, ok := s.byRef[refKey(input.Type, input.ReferenceID)]; ok {
		return s.records[idx], ErrDuplicateReference
	}

	before := w.Balance
	after := before.Add(input.Amount)
	if input.Effect == EffectDebit {
		if before.LessThan(input.Amount) {
			return Transaction{}, ErrInsufficientFunds
		}
		after = before.Sub(input.Amount)
	}

	rec := Transaction{
		ID:            uuid.NewString(),
		WalletID:      input.WalletID,
		Type:          input.Type,
		Amount:        input.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceID:   input.ReferenceID,
		Status:        StatusCompleted,
		Metadata:      input.Metadata,
		CreatedAt:     s.createdAt(),
	}

	w.Balance = after
	switch aggregateFor(input.Type) {
	case "total_deposited":
		w.TotalDeposited = w.TotalDeposited.Add(input.Amount)
	case "total_earned":
		w.TotalEarned = w.TotalEarned.Add(input.Amount)
	case "total_withdrawn":
		w.TotalWithdrawn = w.TotalWithdrawn.Add(input.Amount)
	default:
		w.TotalSpent = w.TotalSpent.Add(input.Amount)
	}

	s.records = append(s.records, rec)
	s.byRef[refKey(input.Type, input.ReferenceID)] = len(s.records) - 1
	s.byWallet[input.WalletID] = append(s.byWallet[input.WalletID], len(s.records)-1)
	return rec, nil
}

// RecordFunc runs fn under the store lock with a recorder that shares the
// lock. All movements applied through the recorder become visible together,
// mirroring the single-transaction commits of the Postgres store. A non-nil
// error from fn discards every movement fn applied.
func (s *InMemoryStore) RecordFunc(fn func(record func(RecordInput) (Transaction, error)) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	if err := fn(s.recordLocked); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	wallets  map[string]Wallet
	nRecords int
}

func (s *InMemoryStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{wallets: make(map[string]Wallet, len(s.wallets)), nRecords: len(s.records)}
	for id, w := range s.wallets {
		snap.wallets[id] = *w
	}
	return snap
}

func (s *InMemoryStore) restoreLocked(snap memSnapshot) {
	for id, w := range snap.wallets {
		copied := w
		s.wallets[id] = &copied
	}
	for _, rec := range s.records[snap.nRecords:] {
		delete(s.byRef, refKey(rec.Type, rec.ReferenceID))
		idxs := s.byWallet[rec.WalletID]
		s.byWallet[rec.WalletID] = idxs[:len(idxs)-1]
	}
	s.records = s.records[:snap.nRecords]
}

func (s *InMemoryStore) ListTransactions(_ context.Context, walletID string, page, perPage int) ([]Transaction, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.wallets[walletID]; !ok {
		return nil, 0, ErrWalletNotFound
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	idxs := s.byWallet[walletID]
	total := int64(len(idxs))

	// Newest first.
	var out []Transaction
	start := (page - 1) * perPage
	for i := 0; i < perPage; i++ {
		pos := len(idxs) - 1 - start - i
		if pos < 0 {
			break
		}
		out = append(out, s.records[idxs[pos]])
	}
	return out, total, nil
}
