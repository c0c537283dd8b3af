package wallet

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

func TestGetOrCreateValidation(t *testing.T) {
	svc := NewService(ledger.NewInMemory())
	ctx := context.Background()

	if _, err := svc.GetOrCreate(ctx, "", ledger.OwnerFunder); err == nil {
		t.Fatal("expected error for empty owner id")
	}
	if _, err := svc.GetOrCreate(ctx, "acct-1", ledger.OwnerKind("vendor")); err == nil {
		t.Fatal("expected error for unknown owner kind")
	}
}

func TestSameOwnerDistinctKindsGetDistinctWallets(t *testing.T) {
	svc := NewService(ledger.NewInMemory())
	ctx := context.Background()

	funder, err := svc.GetOrCreate(ctx, "acct-1", ledger.OwnerFunder)
	if err != nil {
		t.Fatalf("create funder wallet: %v", err)
	}
	earner, err := svc.GetOrCreate(ctx, "acct-1", ledger.OwnerEarner)
	if err != nil {
		t.Fatalf("create earner wallet: %v", err)
	}
	if funder.ID == earner.ID {
		t.Fatal("funder and earner wallets share an id")
	}

	found, err := svc.Find(ctx, "acct-1", ledger.OwnerEarner)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != earner.ID {
		t.Fatalf("find returned %s, want %s", found.ID, earner.ID)
	}
}

func TestFindMissingWallet(t *testing.T) {
	svc := NewService(ledger.NewInMemory())

	_, err := svc.Find(context.Background(), "ghost", ledger.OwnerFunder)
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("err = %v, want ErrWalletNotFound", err)
	}
}

func TestTransactionsRejectUnknownWallet(t *testing.T) {
	svc := NewService(ledger.NewInMemory())

	_, _, err := svc.Transactions(context.Background(), "missing", 1, 10)
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("err = %v, want ErrWalletNotFound", err)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store)
	ctx := context.Background()

	w, err := svc.GetOrCreate(ctx, "acct-1", ledger.OwnerFunder)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	for _, ref := range []string{"dep-1", "dep-2", "dep-3"} {
		if _, err := store.Record(ctx, ledger.RecordInput{
			WalletID:    w.ID,
			Type:        ledger.TxDeposit,
			Amount:      dec("10.00"),
			ReferenceID: ref,
			Effect:      ledger.EffectCredit,
		}); err != nil {
			t.Fatalf("record %s: %v", ref, err)
		}
	}

	txs, total, err := svc.Transactions(ctx, w.ID, 1, 2)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if total != 3 || len(txs) != 2 {
		t.Fatalf("page = %d of %d, want 2 of 3", len(txs), total)
	}
	if txs[0].ReferenceID != "dep-3" || txs[1].ReferenceID != "dep-2" {
		t.Fatalf("order = [%s %s], want newest first", txs[0].ReferenceID, txs[1].ReferenceID)
	}
}
