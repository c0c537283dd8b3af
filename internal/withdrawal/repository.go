package withdrawal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reward-rail/reward_rail/internal/ledger"
)

// Repository persists withdrawal requests and performs the completion commit
// that pairs the terminal state change with the ledger debit.
type Repository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)

	// Decide transitions pending -> approved|rejected, guarded against
	// concurrent decisions. Returns ErrStateConflict when the request is not
	// pending.
	Decide(ctx context.Context, id, status, note string) (Request, error)

	// Complete transitions approved -> completed and debits the wallet in the
	// same unit of work. When the balance no longer covers the amount it
	// transitions to failed with a reason instead, debiting nothing.
	Complete(ctx context.Context, id string) (Request, ledger.Transaction, error)

	ListByWallet(ctx context.Context, walletID string, page, perPage int) ([]Request, int64, error)
	ListByStatus(ctx context.Context, status string, page, perPage int) ([]Request, int64, error)
}

// PostgresRepository stores withdrawal requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const requestColumns = `id, wallet_id, amount, status, admin_note, failure_reason, requested_at, processed_at`

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req         Request
		id          uuid.UUID
		walletID    uuid.UUID
		processedAt *time.Time
	)
	err := row.Scan(&id, &walletID, &req.Amount, &req.Status, &req.AdminNote,
		&req.FailureReason, &req.RequestedAt, &processedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	req.ID = id.String()
	req.WalletID = walletID.String()
	req.RequestedAt = req.RequestedAt.UTC()
	if processedAt != nil {
		utc := processedAt.UTC()
		req.ProcessedAt = &utc
	}
	return req, nil
}

// Create inserts a pending request.
func (r *PostgresRepository) Create(ctx context.Context, req Request) error {
	_, err := r.db.Exec(ctx, `INSERT INTO withdrawal_requests
        (id, wallet_id, amount, status, admin_note, failure_reason, requested_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.MustParse(req.ID), uuid.MustParse(req.WalletID), req.Amount,
		req.Status, req.AdminNote, req.FailureReason, req.RequestedAt)
	return err
}

// Get fetches a request by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ErrNotFound
	}
	return scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+`
        FROM withdrawal_requests WHERE id = $1`, reqID))
}

// Decide applies the admin decision to a pending request.
func (r *PostgresRepository) Decide(ctx context.Context, id, status, note string) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ErrNotFound
	}

	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `UPDATE withdrawal_requests
        SET status = $1, admin_note = $2, processed_at = CASE WHEN $1 = 'rejected' THEN $3 ELSE processed_at END
        WHERE id = $4 AND status = 'pending'
        RETURNING `+requestColumns, status, note, now, reqID)
	req, err := scanRequest(row)
	if errors.Is(err, ErrNotFound) {
		// Distinguish a missing request from a decided one.
		if _, getErr := r.Get(ctx, id); getErr == nil {
			return Request{}, ErrStateConflict
		}
		return Request{}, ErrNotFound
	}
	return req, err
}

// Complete finalizes an approved request, debiting the wallet atomically with
// the state change.
func (r *PostgresRepository) Complete(ctx context.Context, id string) (Request, ledger.Transaction, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ledger.Transaction{}, ErrNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, ledger.Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	req, err := scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns+`
        FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, reqID))
	if err != nil {
		return Request{}, ledger.Transaction{}, err
	}
	if req.Status != StatusApproved {
		return req, ledger.Transaction{}, ErrStateConflict
	}

	debit, err := ledger.RecordTx(ctx, tx, ledger.RecordInput{
		WalletID:    req.WalletID,
		Type:        ledger.TxWithdrawal,
		Amount:      req.Amount,
		ReferenceID: req.ID,
		Effect:      ledger.EffectDebit,
	})
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		// The balance moved since approval. Record the failure outside the
		// rolled-back debit transaction.
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return Request{}, ledger.Transaction{}, rbErr
		}
		return r.markFailed(ctx, reqID, "insufficient balance at completion time")
	}
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		return Request{}, ledger.Transaction{}, err
	}

	now := time.Now().UTC()
	req.Status = StatusCompleted
	req.ProcessedAt = &now
	_, err = tx.Exec(ctx, `UPDATE withdrawal_requests SET status = $1, processed_at = $2 WHERE id = $3`,
		req.Status, now, reqID)
	if err != nil {
		return Request{}, ledger.Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, ledger.Transaction{}, err
	}
	return req, debit, nil
}

func (r *PostgresRepository) markFailed(ctx context.Context, reqID uuid.UUID, reason string) (Request, ledger.Transaction, error) {
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `UPDATE withdrawal_requests
        SET status = 'failed', failure_reason = $1, processed_at = $2
        WHERE id = $3 AND status = 'approved'
        RETURNING `+requestColumns, reason, now, reqID)
	req, err := scanRequest(row)
	if err != nil {
		return Request{}, ledger.Transaction{}, err
	}
	return req, ledger.Transaction{}, ledger.ErrInsufficientFunds
}

// ListByWallet returns the wallet's requests, newest first.
func (r *PostgresRepository) ListByWallet(ctx context.Context, walletID string, page, perPage int) ([]Request, int64, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, 0, ledger.ErrWalletNotFound
	}
	return r.list(ctx, `wallet_id = $1`, id, `requested_at DESC`, page, perPage)
}

// ListByStatus returns requests in the given status, oldest first so admins
// work the queue in arrival order.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status string, page, perPage int) ([]Request, int64, error) {
	return r.list(ctx, `status = $1`, status, `requested_at`, page, perPage)
}

func (r *PostgresRepository) list(ctx context.Context, where string, arg any, orderBy string, page, perPage int) ([]Request, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawal_requests WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests
        WHERE `+where+` ORDER BY `+orderBy+` LIMIT $2 OFFSET $3`, arg, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}
