package pool

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

// Repository persists reward pools and performs the composite atomic
// operations that pair pool rows with ledger movements.
type Repository interface {
	// Create debits the funder wallet and inserts the pool in one unit of
	// work. A retried creation request (same fundingRef) returns the prior
	// pool with ledger.ErrDuplicateReference.
	Create(ctx context.Context, p RewardPool) (RewardPool, ledger.Transaction, error)

	// Distribute debits the pool and credits every recipient wallet, all or
	// nothing. Reward references are derived from pool and wallet ids so a
	// retried call reports AlreadyApplied instead of paying twice.
	Distribute(ctx context.Context, poolID string, recipients []Recipient) (DistributionResult, error)

	// Cancel marks an active pool cancelled and refunds its remaining escrow
	// to the funder wallet in the same unit of work.
	Cancel(ctx context.Context, poolID, refundRef string) (RewardPool, ledger.Transaction, error)

	Get(ctx context.Context, poolID string) (RewardPool, error)
	ListByFunder(ctx context.Context, funderWalletID string, page, perPage int) ([]RewardPool, int64, error)
	ListDistributions(ctx context.Context, poolID string) ([]Distribution, error)
}

// PostgresRepository stores pools in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const poolColumns = `id, funder_wallet_id, brief_id, total_amount, remaining_amount, status, funding_ref, created_at`

func scanPool(row pgx.Row) (RewardPool, error) {
	var (
		p        RewardPool
		id       uuid.UUID
		walletID uuid.UUID
	)
	err := row.Scan(&id, &walletID, &p.BriefID, &p.TotalAmount, &p.RemainingAmount,
		&p.Status, &p.FundingRef, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RewardPool{}, ErrPoolNotFound
		}
		return RewardPool{}, err
	}
	p.ID = id.String()
	p.FunderWalletID = walletID.String()
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// Create escrows the pool amount out of the funder wallet.
func (r *PostgresRepository) Create(ctx context.Context, p RewardPool) (RewardPool, ledger.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return RewardPool{}, ledger.Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	debit, err := ledger.RecordTx(ctx, tx, ledger.RecordInput{
		WalletID:    p.FunderWalletID,
		Type:        ledger.TxDebit,
		Amount:      p.TotalAmount,
		ReferenceID: p.FundingRef,
		Effect:      ledger.EffectDebit,
		Metadata:    map[string]string{"brief_id": p.BriefID, "pool_id": p.ID},
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			prior, lookupErr := scanPool(tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM reward_pools
                WHERE funding_ref = $1`, p.FundingRef))
			if lookupErr != nil {
				return RewardPool{}, ledger.Transaction{}, lookupErr
			}
			return prior, debit, ledger.ErrDuplicateReference
		}
		return RewardPool{}, ledger.Transaction{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO reward_pools
        (id, funder_wallet_id, brief_id, total_amount, remaining_amount, status, funding_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.MustParse(p.ID), uuid.MustParse(p.FunderWalletID), p.BriefID,
		p.TotalAmount, p.RemainingAmount, p.Status, p.FundingRef, p.CreatedAt)
	if err != nil {
		return RewardPool{}, ledger.Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RewardPool{}, ledger.Transaction{}, err
	}
	return p, debit, nil
}

// Distribute pays the recipient list out of the pool escrow.
func (r *PostgresRepository) Distribute(ctx context.Context, poolID string, recipients []Recipient) (DistributionResult, error) {
	id, err := uuid.Parse(poolID)
	if err != nil {
		return DistributionResult{}, ErrPoolNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DistributionResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	p, err := scanPool(tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM reward_pools
        WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return DistributionResult{}, err
	}
	if p.Status != StatusActive {
		return DistributionResult{Pool: p}, ErrPoolNotActive
	}

	sum := decimal.Zero
	for _, rec := range recipients {
		sum = sum.Add(rec.Amount)
	}
	if sum.GreaterThan(p.RemainingAmount) {
		return DistributionResult{Pool: p}, ErrPoolOverdrawn
	}

	// Committed line items are read before any credits so in-flight inserts
	// from this call cannot masquerade as prior payouts.
	committed, err := committedDistributions(ctx, tx, id)
	if err != nil {
		return DistributionResult{}, err
	}

	// Wallet rows are locked in id order to keep concurrent distributions
	// deadlock-free.
	ordered := make([]Recipient, len(recipients))
	copy(ordered, recipients)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].WalletID < ordered[j].WalletID })

	now := time.Now().UTC()
	credits := make([]ledger.Transaction, 0, len(ordered))
	for _, rec := range ordered {
		credit, err := ledger.RecordTx(ctx, tx, ledger.RecordInput{
			WalletID:    rec.WalletID,
			Type:        ledger.TxReward,
			Amount:      rec.Amount,
			ReferenceID: RewardReference(poolID, rec.WalletID),
			Effect:      ledger.EffectCredit,
			Metadata:    map[string]string{"pool_id": poolID, "brief_id": p.BriefID},
		})
		if errors.Is(err, ledger.ErrDuplicateReference) {
			// A prior distribution already paid this wallet. The call is a
			// safe replay only if every recipient matches a committed line
			// item; anything else is a new payout colliding with old refs.
			if !replayMatches(committed, recipients) {
				return DistributionResult{Pool: p}, ErrDistributionConflict
			}
			return DistributionResult{Pool: p, AlreadyApplied: true}, nil
		}
		if err != nil {
			return DistributionResult{}, err
		}
		credits = append(credits, credit)

		_, err = tx.Exec(ctx, `INSERT INTO distributions (id, pool_id, wallet_id, amount, created_at)
            VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), id, uuid.MustParse(rec.WalletID), rec.Amount, now)
		if err != nil {
			return DistributionResult{}, err
		}
	}

	p.RemainingAmount = p.RemainingAmount.Sub(sum)
	if p.RemainingAmount.IsZero() {
		p.Status = StatusExhausted
	}
	_, err = tx.Exec(ctx, `UPDATE reward_pools SET remaining_amount = $1, status = $2 WHERE id = $3`,
		p.RemainingAmount, p.Status, id)
	if err != nil {
		return DistributionResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DistributionResult{}, err
	}
	return DistributionResult{Pool: p, Credits: credits}, nil
}

func committedDistributions(ctx context.Context, tx pgx.Tx, poolID uuid.UUID) (map[string]decimal.Decimal, error) {
	rows, err := tx.Query(ctx, `SELECT wallet_id, amount FROM distributions WHERE pool_id = $1`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	committed := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			walletID uuid.UUID
			amount   decimal.Decimal
		)
		if err := rows.Scan(&walletID, &amount); err != nil {
			return nil, err
		}
		committed[walletID.String()] = amount
	}
	return committed, rows.Err()
}

// replayMatches reports whether every requested recipient already has a
// committed line item with the same amount.
func replayMatches(committed map[string]decimal.Decimal, recipients []Recipient) bool {
	for _, rec := range recipients {
		amount, ok := committed[rec.WalletID]
		if !ok || !amount.Equal(rec.Amount) {
			return false
		}
	}
	return true
}

// Cancel refunds the remaining escrow and closes the pool.
func (r *PostgresRepository) Cancel(ctx context.Context, poolID, refundRef string) (RewardPool, ledger.Transaction, error) {
	id, err := uuid.Parse(poolID)
	if err != nil {
		return RewardPool{}, ledger.Transaction{}, ErrPoolNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return RewardPool{}, ledger.Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	p, err := scanPool(tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM reward_pools
        WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return RewardPool{}, ledger.Transaction{}, err
	}
	if p.Status != StatusActive {
		return p, ledger.Transaction{}, ErrPoolNotActive
	}

	var refund ledger.Transaction
	if p.RemainingAmount.IsPositive() {
		refund, err = ledger.RecordTx(ctx, tx, ledger.RecordInput{
			WalletID:    p.FunderWalletID,
			Type:        ledger.TxCredit,
			Amount:      p.RemainingAmount,
			ReferenceID: refundRef,
			Effect:      ledger.EffectCredit,
			Metadata:    map[string]string{"pool_id": poolID, "reason": "pool_cancelled"},
		})
		if err != nil {
			return RewardPool{}, ledger.Transaction{}, err
		}
	}

	p.Status = StatusCancelled
	if _, err := tx.Exec(ctx, `UPDATE reward_pools SET status = $1 WHERE id = $2`, p.Status, id); err != nil {
		return RewardPool{}, ledger.Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RewardPool{}, ledger.Transaction{}, err
	}
	return p, refund, nil
}

// Get fetches a pool by identifier.
func (r *PostgresRepository) Get(ctx context.Context, poolID string) (RewardPool, error) {
	id, err := uuid.Parse(poolID)
	if err != nil {
		return RewardPool{}, ErrPoolNotFound
	}
	return scanPool(r.db.QueryRow(ctx, `SELECT `+poolColumns+` FROM reward_pools WHERE id = $1`, id))
}

// ListByFunder returns the funder's pools, newest first.
func (r *PostgresRepository) ListByFunder(ctx context.Context, funderWalletID string, page, perPage int) ([]RewardPool, int64, error) {
	walletID, err := uuid.Parse(funderWalletID)
	if err != nil {
		return nil, 0, ledger.ErrWalletNotFound
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reward_pools WHERE funder_wallet_id = $1`, walletID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+poolColumns+` FROM reward_pools
        WHERE funder_wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		walletID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []RewardPool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// ListDistributions returns the pool's committed payout line items.
func (r *PostgresRepository) ListDistributions(ctx context.Context, poolID string) ([]Distribution, error) {
	id, err := uuid.Parse(poolID)
	if err != nil {
		return nil, ErrPoolNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT id, pool_id, wallet_id, amount, created_at
        FROM distributions WHERE pool_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Distribution
	for rows.Next() {
		var (
			d                      Distribution
			dID, poolUUID, wallUUID uuid.UUID
		)
		if err := rows.Scan(&dID, &poolUUID, &wallUUID, &d.Amount, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.ID = dID.String()
		d.PoolID = poolUUID.String()
		d.WalletID = wallUUID.String()
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

// RewardReference derives the idempotency reference for one recipient credit.
func RewardReference(poolID, walletID string) string {
	return poolID + ":" + walletID
}
