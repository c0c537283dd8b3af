package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setup(t *testing.T) (*Service, *ledger.InMemoryStore) {
	t.Helper()
	store := ledger.NewInMemory()
	repo := NewMemoryRepository(store)
	return NewService(repo, store, nil), store
}

func fundedWallet(t *testing.T, store *ledger.InMemoryStore, ownerID, amount string) ledger.Wallet {
	t.Helper()
	w, err := store.GetOrCreateWallet(context.Background(), ownerID, ledger.OwnerFunder)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	ledger.SeedBalance(store, w.ID, dec(amount))
	return w
}

func earnerWallet(t *testing.T, store *ledger.InMemoryStore, ownerID string) ledger.Wallet {
	t.Helper()
	w, err := store.GetOrCreateWallet(context.Background(), ownerID, ledger.OwnerEarner)
	if err != nil {
		t.Fatalf("create earner wallet: %v", err)
	}
	return w
}

func TestCreateEscrowsFunderBalance(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "500.00")

	p, err := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if p.Status != StatusActive || !p.RemainingAmount.Equal(dec("300.00")) {
		t.Fatalf("unexpected pool state: %s remaining %s", p.Status, p.RemainingAmount)
	}

	w, _ := store.GetWallet(ctx, funder.ID)
	if !w.Balance.Equal(dec("200.00")) {
		t.Fatalf("expected funder balance 200.00, got %s", w.Balance)
	}
	if !w.TotalSpent.Equal(dec("300.00")) {
		t.Fatalf("expected total spent 300.00, got %s", w.TotalSpent)
	}
}

func TestCreateInsufficientFundsLeavesNoPool(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "100.00")

	_, err := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	w, _ := store.GetWallet(ctx, funder.ID)
	if !w.Balance.Equal(dec("100.00")) {
		t.Fatalf("failed escrow must not move balance, got %s", w.Balance)
	}
	if _, total, _ := svc.ListByFunder(ctx, funder.ID, 1, 10); total != 0 {
		t.Fatalf("expected no pools, got %d", total)
	}
}

func TestCreateRetrySameRequestIDEscrowsOnce(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "500.00")

	input := CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	}
	first, err := svc.Create(ctx, input)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.Create(ctx, input)
	if err != nil {
		t.Fatalf("retried create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("retry must return the prior pool, got %s vs %s", second.ID, first.ID)
	}

	w, _ := store.GetWallet(ctx, funder.ID)
	if !w.Balance.Equal(dec("200.00")) {
		t.Fatalf("retry must not debit again, balance %s", w.Balance)
	}
}

// Mirrors the end-to-end escrow scenario: deposit 500, escrow 300, pay out
// 250 across two earners, then a 60.00 ask against the 50.00 remainder is
// rejected without any state change.
func TestDistributeScenario(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	funder := fundedWallet(t, store, "brand-1", "500.00")
	earnerA := earnerWallet(t, store, "creator-a")
	earnerB := earnerWallet(t, store, "creator-b")
	earnerC := earnerWallet(t, store, "creator-c")

	p, err := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}

	result, err := svc.Distribute(ctx, p.ID, []Recipient{
		{WalletID: earnerA.ID, Amount: dec("100.00")},
		{WalletID: earnerB.ID, Amount: dec("150.00")},
	})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if !result.Pool.RemainingAmount.Equal(dec("50.00")) {
		t.Fatalf("expected remaining 50.00, got %s", result.Pool.RemainingAmount)
	}
	if len(result.Credits) != 2 {
		t.Fatalf("expected 2 credits, got %d", len(result.Credits))
	}

	a, _ := store.GetWallet(ctx, earnerA.ID)
	b, _ := store.GetWallet(ctx, earnerB.ID)
	if !a.Balance.Equal(dec("100.00")) || !b.Balance.Equal(dec("150.00")) {
		t.Fatalf("unexpected earner balances: %s / %s", a.Balance, b.Balance)
	}
	if !a.TotalEarned.Equal(dec("100.00")) {
		t.Fatalf("expected earned aggregate 100.00, got %s", a.TotalEarned)
	}

	// Overdraw attempt leaves everything untouched.
	_, err = svc.Distribute(ctx, p.ID, []Recipient{{WalletID: earnerC.ID, Amount: dec("60.00")}})
	if !errors.Is(err, ErrPoolOverdrawn) {
		t.Fatalf("expected ErrPoolOverdrawn, got %v", err)
	}
	after, _ := svc.Get(ctx, p.ID)
	if !after.RemainingAmount.Equal(dec("50.00")) {
		t.Fatalf("overdraw must not change remaining, got %s", after.RemainingAmount)
	}
	c, _ := store.GetWallet(ctx, earnerC.ID)
	if !c.Balance.IsZero() {
		t.Fatalf("overdraw must not credit recipients, got %s", c.Balance)
	}

	// Pool invariant: total - remaining == sum of committed line items.
	distributions, err := svc.ListDistributions(ctx, p.ID)
	if err != nil {
		t.Fatalf("list distributions: %v", err)
	}
	sum := dec("0")
	for _, d := range distributions {
		sum = sum.Add(d.Amount)
	}
	if !after.TotalAmount.Sub(after.RemainingAmount).Equal(sum) {
		t.Fatalf("pool invariant broken: total=%s remaining=%s distributed=%s",
			after.TotalAmount, after.RemainingAmount, sum)
	}
}

func TestDistributeExhaustsPool(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "300.00")
	earner := earnerWallet(t, store, "creator-a")

	p, _ := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})

	result, err := svc.Distribute(ctx, p.ID, []Recipient{{WalletID: earner.ID, Amount: dec("300.00")}})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if result.Pool.Status != StatusExhausted {
		t.Fatalf("expected exhausted pool, got %s", result.Pool.Status)
	}

	_, err = svc.Distribute(ctx, p.ID, []Recipient{{WalletID: earner.ID, Amount: dec("1.00")}})
	if !errors.Is(err, ErrPoolNotActive) {
		t.Fatalf("expected ErrPoolNotActive, got %v", err)
	}
}

func TestDistributeRetryIsIdempotent(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "300.00")
	earner := earnerWallet(t, store, "creator-a")

	p, _ := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})

	recipients := []Recipient{{WalletID: earner.ID, Amount: dec("100.00")}}
	if _, err := svc.Distribute(ctx, p.ID, recipients); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	retry, err := svc.Distribute(ctx, p.ID, recipients)
	if err != nil {
		t.Fatalf("retried distribute: %v", err)
	}
	if !retry.AlreadyApplied {
		t.Fatalf("expected retry to report already applied")
	}

	w, _ := store.GetWallet(ctx, earner.ID)
	if !w.Balance.Equal(dec("100.00")) {
		t.Fatalf("retry must not credit twice, got %s", w.Balance)
	}
}

func TestDistributeRejectsDuplicateRecipients(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "300.00")
	earner := earnerWallet(t, store, "creator-a")

	p, _ := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})

	_, err := svc.Distribute(ctx, p.ID, []Recipient{
		{WalletID: earner.ID, Amount: dec("50.00")},
		{WalletID: earner.ID, Amount: dec("60.00")},
	})
	if !errors.Is(err, ErrDuplicateRecipient) {
		t.Fatalf("expected ErrDuplicateRecipient, got %v", err)
	}
}

func TestCancelRefundsRemaining(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "500.00")
	earner := earnerWallet(t, store, "creator-a")

	p, _ := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})
	if _, err := svc.Distribute(ctx, p.ID, []Recipient{{WalletID: earner.ID, Amount: dec("100.00")}}); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, p.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	w, _ := store.GetWallet(ctx, funder.ID)
	// 500 - 300 escrow + 200 refund.
	if !w.Balance.Equal(dec("400.00")) {
		t.Fatalf("expected refunded balance 400.00, got %s", w.Balance)
	}

	if _, err := svc.Cancel(ctx, p.ID); !errors.Is(err, ErrPoolNotActive) {
		t.Fatalf("expected ErrPoolNotActive on second cancel, got %v", err)
	}
}

func TestDistributeMixedSetConflicts(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "300.00")
	earnerA := earnerWallet(t, store, "creator-a")
	earnerB := earnerWallet(t, store, "creator-b")

	p, _ := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})

	if _, err := svc.Distribute(ctx, p.ID, []Recipient{{WalletID: earnerA.ID, Amount: dec("50.00")}}); err != nil {
		t.Fatalf("first distribute: %v", err)
	}

	res, err := svc.Distribute(ctx, p.ID, []Recipient{
		{WalletID: earnerA.ID, Amount: dec("40.00")},
		{WalletID: earnerB.ID, Amount: dec("60.00")},
	})
	if !errors.Is(err, ErrDistributionConflict) {
		t.Fatalf("expected distribution conflict, got res=%+v err=%v", res, err)
	}
	if res.AlreadyApplied {
		t.Fatalf("a conflicting call must not report already applied")
	}

	b, _ := store.GetWallet(ctx, earnerB.ID)
	if !b.Balance.IsZero() {
		t.Fatalf("conflicting call must not credit anyone, got %s", b.Balance)
	}
	got, _ := svc.Get(ctx, p.ID)
	if !got.RemainingAmount.Equal(dec("250.00")) {
		t.Fatalf("conflicting call must not touch the pool, remaining %s", got.RemainingAmount)
	}
}

func TestDistributeChangedAmountConflicts(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "300.00")
	earner := earnerWallet(t, store, "creator-a")

	p, _ := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})

	if _, err := svc.Distribute(ctx, p.ID, []Recipient{{WalletID: earner.ID, Amount: dec("50.00")}}); err != nil {
		t.Fatalf("first distribute: %v", err)
	}

	_, err := svc.Distribute(ctx, p.ID, []Recipient{{WalletID: earner.ID, Amount: dec("70.00")}})
	if !errors.Is(err, ErrDistributionConflict) {
		t.Fatalf("expected distribution conflict, got %v", err)
	}

	w, _ := store.GetWallet(ctx, earner.ID)
	if !w.Balance.Equal(dec("50.00")) {
		t.Fatalf("balance must stay at the committed payout, got %s", w.Balance)
	}
}

func TestCreateRejectsEarnerWallet(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	earner := earnerWallet(t, store, "creator-a")
	ledger.SeedBalance(store, earner.ID, dec("500.00"))

	_, err := svc.Create(ctx, CreateInput{
		FunderWalletID: earner.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("100.00"),
	})
	if !errors.Is(err, ErrNotFunderWallet) {
		t.Fatalf("expected funder wallet requirement, got %v", err)
	}
}

func TestDistributeSupersetConflicts(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	funder := fundedWallet(t, store, "brand-1", "300.00")
	earnerA := earnerWallet(t, store, "creator-a")
	earnerB := earnerWallet(t, store, "creator-b")

	p, _ := svc.Create(ctx, CreateInput{
		FunderWalletID: funder.ID,
		BriefID:        "brief-1",
		TotalAmount:    dec("300.00"),
		RequestID:      "pool_req_1",
	})

	if _, err := svc.Distribute(ctx, p.ID, []Recipient{{WalletID: earnerA.ID, Amount: dec("50.00")}}); err != nil {
		t.Fatalf("first distribute: %v", err)
	}

	// A's line item repeats exactly, but B was never part of it.
	_, err := svc.Distribute(ctx, p.ID, []Recipient{
		{WalletID: earnerA.ID, Amount: dec("50.00")},
		{WalletID: earnerB.ID, Amount: dec("60.00")},
	})
	if !errors.Is(err, ErrDistributionConflict) {
		t.Fatalf("expected distribution conflict, got %v", err)
	}

	b, _ := store.GetWallet(ctx, earnerB.ID)
	if !b.Balance.IsZero() {
		t.Fatalf("conflicting call must not credit anyone, got %s", b.Balance)
	}
}
