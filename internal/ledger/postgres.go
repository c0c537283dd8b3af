package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallets and transactions in PostgreSQL. Balance
// checks and updates happen under a row lock so two concurrent debits can
// never both observe a stale balance.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, owner_id, owner_kind, balance, total_deposited, total_earned, total_spent, total_withdrawn, created_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w  Wallet
		id uuid.UUID
	)
	err := row.Scan(&id, &w.OwnerID, &w.OwnerKind, &w.Balance, &w.TotalDeposited,
		&w.TotalEarned, &w.TotalSpent, &w.TotalWithdrawn, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.CreatedAt = w.CreatedAt.UTC()
	return w, nil
}

// GetOrCreateWallet upserts the wallet row guarded by the unique
// (owner_id, owner_kind) constraint, then reads it back.
func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, ownerID string, kind OwnerKind) (Wallet, error) {
	if ownerID == "" {
		return Wallet{}, fmt.Errorf("owner id is required")
	}
	if !kind.Valid() {
		return Wallet{}, fmt.Errorf("unknown owner kind %q", kind)
	}
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, owner_kind, created_at)
        VALUES ($1, $2, $3, $4) ON CONFLICT (owner_id, owner_kind) DO NOTHING`,
		uuid.New(), ownerID, kind, time.Now().UTC())
	if err != nil {
		return Wallet{}, err
	}
	return s.FindWallet(ctx, ownerID, kind)
}

// GetWallet fetches a wallet by identifier.
func (s *PostgresStore) GetWallet(ctx context.Context, walletID string) (Wallet, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

// FindWallet fetches a wallet by owner without creating it.
func (s *PostgresStore) FindWallet(ctx context.Context, ownerID string, kind OwnerKind) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE owner_id = $1 AND owner_kind = $2`, ownerID, kind)
	return scanWallet(row)
}

// Record appends a transaction inside its own database transaction.
func (s *PostgresStore) Record(ctx context.Context, input RecordInput) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rec, err := RecordTx(ctx, tx, input)
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) && rec.ID == "" {
			// A concurrent writer won the unique index race. The
			// transaction is aborted, so read the winner's row outside it.
			_ = tx.Rollback(ctx)
			row := s.db.QueryRow(ctx, `SELECT id, wallet_id, type, amount, balance_before, balance_after,
                reference_id, status, created_at
                FROM transactions WHERE reference_id = $1 AND type = $2`, input.ReferenceID, input.Type)
			if existing, scanErr := scanTransaction(row); scanErr == nil {
				return existing, ErrDuplicateReference
			}
		}
		return rec, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return rec, nil
}

// RecordTx appends a transaction within a caller-owned database transaction,
// locking the wallet row for the duration. Composite operations (pool
// creation, distribution, withdrawal completion) use this to commit their own
// rows together with the ledger movement.
func RecordTx(ctx context.Context, tx pgx.Tx, input RecordInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}
	walletID, err := uuid.Parse(input.WalletID)
	if err != nil {
		return Transaction{}, ErrWalletNotFound
	}

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, walletID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrWalletNotFound
		}
		return Transaction{}, err
	}

	if existing, err := findByReference(ctx, tx, input.ReferenceID, input.Type); err == nil {
		return existing, ErrDuplicateReference
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, err
	}

	after := balance.Add(input.Amount)
	if input.Effect == EffectDebit {
		if balance.LessThan(input.Amount) {
			return Transaction{}, ErrInsufficientFunds
		}
		after = balance.Sub(input.Amount)
	}

	rec := Transaction{
		ID:            uuid.NewString(),
		WalletID:      input.WalletID,
		Type:          input.Type,
		Amount:        input.Amount,
		BalanceBefore: balance,
		BalanceAfter:  after,
		ReferenceID:   input.ReferenceID,
		Status:        StatusCompleted,
		Metadata:      input.Metadata,
		CreatedAt:     time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `INSERT INTO transactions
        (id, wallet_id, type, amount, balance_before, balance_after, reference_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.MustParse(rec.ID), walletID, rec.Type, rec.Amount, rec.BalanceBefore,
		rec.BalanceAfter, rec.ReferenceID, rec.Status, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Two writers raced past findByReference on different wallet
			// rows; the unique (reference_id, type) index caught the loser.
			return Transaction{}, ErrDuplicateReference
		}
		return Transaction{}, err
	}

	// The aggregate column is selected from a fixed map, never caller input.
	query := fmt.Sprintf(`UPDATE wallets SET balance = $1, %s = %s + $2 WHERE id = $3`,
		aggregateFor(input.Type), aggregateFor(input.Type))
	if _, err := tx.Exec(ctx, query, after, input.Amount, walletID); err != nil {
		return Transaction{}, err
	}

	for key, value := range input.Metadata {
		_, err := tx.Exec(ctx, `INSERT INTO transaction_metadata (transaction_id, key, value)
            VALUES ($1, $2, $3)`, uuid.MustParse(rec.ID), key, value)
		if err != nil {
			return Transaction{}, err
		}
	}

	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func findByReference(ctx context.Context, tx pgx.Tx, referenceID string, txType TxType) (Transaction, error) {
	row := tx.QueryRow(ctx, `SELECT id, wallet_id, type, amount, balance_before, balance_after,
        reference_id, status, created_at
        FROM transactions WHERE reference_id = $1 AND type = $2`, referenceID, txType)
	return scanTransaction(row)
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		rec      Transaction
		id       uuid.UUID
		walletID uuid.UUID
	)
	err := row.Scan(&id, &walletID, &rec.Type, &rec.Amount, &rec.BalanceBefore,
		&rec.BalanceAfter, &rec.ReferenceID, &rec.Status, &rec.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	rec.ID = id.String()
	rec.WalletID = walletID.String()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// ListTransactions returns the wallet's transactions, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, walletID string, page, perPage int) ([]Transaction, int64, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, 0, ErrWalletNotFound
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE wallet_id = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx, `SELECT id, wallet_id, type, amount, balance_before, balance_after,
        reference_id, status, created_at
        FROM transactions WHERE wallet_id = $1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`, id, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
