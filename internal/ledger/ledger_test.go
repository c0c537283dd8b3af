package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestGetOrCreateWalletIsIdempotent(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	first, err := store.GetOrCreateWallet(ctx, "brand-1", OwnerFunder)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	second, err := store.GetOrCreateWallet(ctx, "brand-1", OwnerFunder)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one wallet, got %s and %s", first.ID, second.ID)
	}
	if !second.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", second.Balance)
	}

	// Same owner id under the other kind is a distinct wallet.
	other, err := store.GetOrCreateWallet(ctx, "brand-1", OwnerEarner)
	if err != nil {
		t.Fatalf("create earner wallet: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("expected distinct wallets per owner kind")
	}
}

func TestRecordCreditAndDebit(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	w, err := store.GetOrCreateWallet(ctx, "brand-1", OwnerFunder)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	dep, err := store.Record(ctx, RecordInput{
		WalletID:    w.ID,
		Type:        TxDeposit,
		Amount:      dec("500.00"),
		ReferenceID: "sess_1",
		Effect:      EffectCredit,
	})
	if err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	if !dep.BalanceBefore.IsZero() || !dep.BalanceAfter.Equal(dec("500.00")) {
		t.Fatalf("unexpected snapshots: before=%s after=%s", dep.BalanceBefore, dep.BalanceAfter)
	}

	deb, err := store.Record(ctx, RecordInput{
		WalletID:    w.ID,
		Type:        TxDebit,
		Amount:      dec("300.00"),
		ReferenceID: "pool_req_1",
		Effect:      EffectDebit,
	})
	if err != nil {
		t.Fatalf("record debit: %v", err)
	}
	if !deb.BalanceAfter.Equal(dec("200.00")) {
		t.Fatalf("expected 200.00 after debit, got %s", deb.BalanceAfter)
	}

	got, err := store.GetWallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !got.Balance.Equal(dec("200.00")) {
		t.Fatalf("expected balance 200.00, got %s", got.Balance)
	}
	if !got.TotalDeposited.Equal(dec("500.00")) || !got.TotalSpent.Equal(dec("300.00")) {
		t.Fatalf("aggregates off: deposited=%s spent=%s", got.TotalDeposited, got.TotalSpent)
	}

	// balance == deposited + earned - spent - withdrawn
	want := got.TotalDeposited.Add(got.TotalEarned).Sub(got.TotalSpent).Sub(got.TotalWithdrawn)
	if !got.Balance.Equal(want) {
		t.Fatalf("wallet invariant broken: balance=%s computed=%s", got.Balance, want)
	}
}

func TestRecordRejectsInvalidAmount(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	w, _ := store.GetOrCreateWallet(ctx, "brand-1", OwnerFunder)

	_, err := store.Record(ctx, RecordInput{
		WalletID:    w.ID,
		Type:        TxDeposit,
		Amount:      dec("0"),
		ReferenceID: "sess_0",
		Effect:      EffectCredit,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = store.Record(ctx, RecordInput{
		WalletID:    w.ID,
		Type:        TxDeposit,
		Amount:      dec("-5.00"),
		ReferenceID: "sess_neg",
		Effect:      EffectCredit,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative amount, got %v", err)
	}
}

func TestRecordInsufficientFunds(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	w, _ := store.GetOrCreateWallet(ctx, "creator-1", OwnerEarner)
	SeedBalance(store, w.ID, dec("20.00"))

	_, err := store.Record(ctx, RecordInput{
		WalletID:    w.ID,
		Type:        TxWithdrawal,
		Amount:      dec("20.01"),
		ReferenceID: "wd_1",
		Effect:      EffectDebit,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if !got.Balance.Equal(dec("20.00")) {
		t.Fatalf("failed debit must not move balance, got %s", got.Balance)
	}
	if _, total, _ := store.ListTransactions(ctx, w.ID, 1, 10); total != 0 {
		t.Fatalf("failed debit must not append a transaction, got %d", total)
	}
}

func TestRecordDuplicateReferenceIsNoOp(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	w, _ := store.GetOrCreateWallet(ctx, "brand-1", OwnerFunder)

	input := RecordInput{
		WalletID:    w.ID,
		Type:        TxDeposit,
		Amount:      dec("500.00"),
		ReferenceID: "sess_1",
		Effect:      EffectCredit,
	}
	first, err := store.Record(ctx, input)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}

	second, err := store.Record(ctx, input)
	if !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the prior transaction back, got %s vs %s", second.ID, first.ID)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if !got.Balance.Equal(dec("500.00")) {
		t.Fatalf("duplicate must not move balance again, got %s", got.Balance)
	}
	if _, total, _ := store.ListTransactions(ctx, w.ID, 1, 10); total != 1 {
		t.Fatalf("expected exactly one transaction, got %d", total)
	}

	// Same reference under a different type is a distinct transaction.
	input.Type = TxCredit
	input.Effect = EffectCredit
	if _, err := store.Record(ctx, input); err != nil {
		t.Fatalf("same reference, different type: %v", err)
	}
}

func TestConcurrentDebitsOnlyOneSucceeds(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	w, _ := store.GetOrCreateWallet(ctx, "creator-1", OwnerEarner)
	SeedBalance(store, w.ID, dec("100.00"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Record(ctx, RecordInput{
				WalletID:    w.ID,
				Type:        TxWithdrawal,
				Amount:      dec("100.00"),
				ReferenceID: "wd_" + string(rune('a'+i)),
				Effect:      EffectDebit,
			})
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one success and one rejection, got %d/%d", ok, insufficient)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if !got.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", got.Balance)
	}
}

func TestListTransactionsPagination(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	w, _ := store.GetOrCreateWallet(ctx, "brand-1", OwnerFunder)

	for i := 0; i < 5; i++ {
		_, err := store.Record(ctx, RecordInput{
			WalletID:    w.ID,
			Type:        TxDeposit,
			Amount:      dec("10.00"),
			ReferenceID: "sess_" + string(rune('a'+i)),
			Effect:      EffectCredit,
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	page1, total, err := store.ListTransactions(ctx, w.ID, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page1) != 2 {
		t.Fatalf("expected total 5 page of 2, got %d/%d", total, len(page1))
	}
	if page1[0].ReferenceID != "sess_e" {
		t.Fatalf("expected newest first, got %s", page1[0].ReferenceID)
	}

	page3, _, err := store.ListTransactions(ctx, w.ID, 3, 2)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(page3) != 1 || page3[0].ReferenceID != "sess_a" {
		t.Fatalf("unexpected last page: %+v", page3)
	}
}

func TestRecordFuncRollsBackOnError(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	a, _ := store.GetOrCreateWallet(ctx, "creator-a", OwnerEarner)
	b, _ := store.GetOrCreateWallet(ctx, "creator-b", OwnerEarner)

	err := store.RecordFunc(func(record func(RecordInput) (Transaction, error)) error {
		if _, err := record(RecordInput{
			WalletID: a.ID, Type: TxReward, Amount: dec("40.00"),
			ReferenceID: "pool1:" + a.ID, Effect: EffectCredit,
		}); err != nil {
			return err
		}
		if _, err := record(RecordInput{
			WalletID: b.ID, Type: TxReward, Amount: dec("60.00"),
			ReferenceID: "pool1:" + b.ID, Effect: EffectCredit,
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}

	for _, w := range []Wallet{a, b} {
		got, _ := store.GetWallet(ctx, w.ID)
		if !got.Balance.IsZero() || !got.TotalEarned.IsZero() {
			t.Fatalf("expected rollback for %s, balance=%s earned=%s", w.OwnerID, got.Balance, got.TotalEarned)
		}
		if _, total, _ := store.ListTransactions(ctx, w.ID, 1, 10); total != 0 {
			t.Fatalf("expected no transactions after rollback, got %d", total)
		}
	}
}

func TestUniqueViolationMapsToDuplicateReference(t *testing.T) {
	raced := fmt.Errorf("insert transaction: %w", &pgconn.PgError{Code: "23505", ConstraintName: "transactions_reference_id_type_key"})
	if !isUniqueViolation(raced) {
		t.Fatalf("expected duplicate key error to be recognised")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation must not read as a duplicate")
	}
	if isUniqueViolation(errors.New("connection reset")) {
		t.Fatalf("plain error must not read as a duplicate")
	}
}
