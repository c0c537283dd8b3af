package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that sets the balance (and deposited
// aggregate, keeping the wallet invariant intact) on an in-memory wallet.
func SeedBalance(s Store, walletID string, amount decimal.Decimal) {
	if mem, ok := s.(*InMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if w, ok := mem.wallets[walletID]; ok {
			w.Balance = amount
			w.TotalDeposited = amount
		}
	}
}
