package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Auditor periodically sweeps the ledger for invariant violations: wallet
// balances that drift from their aggregates and pools whose distributed
// total no longer reconciles. Violations are logged, never auto-repaired.
type Auditor struct {
	db     *pgxpool.Pool
	logger *slog.Logger
	cron   *cron.Cron
}

// NewAuditor builds the audit job runner.
func NewAuditor(db *pgxpool.Pool, logger *slog.Logger) *Auditor {
	return &Auditor{db: db, logger: logger, cron: cron.New()}
}

// Start schedules the sweep. The schedule uses cron syntax, e.g. "@every 15m".
func (a *Auditor) Start(schedule string) error {
	if _, err := a.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Sweep(ctx)
	}); err != nil {
		return err
	}
	a.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (a *Auditor) Stop() {
	<-a.cron.Stop().Done()
}

// Sweep runs one audit pass and returns the number of violations found.
func (a *Auditor) Sweep(ctx context.Context) int {
	violations := 0
	violations += a.sweepWallets(ctx)
	violations += a.sweepPools(ctx)
	if violations == 0 {
		a.logger.Info("ledger audit clean")
	}
	return violations
}

func (a *Auditor) sweepWallets(ctx context.Context) int {
	rows, err := a.db.Query(ctx, `SELECT id, balance,
            total_deposited + total_earned - total_spent - total_withdrawn AS expected
        FROM wallets
        WHERE balance < 0
           OR balance <> total_deposited + total_earned - total_spent - total_withdrawn`)
	if err != nil {
		a.logger.Error("wallet audit query failed", slog.Any("error", err))
		return 0
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id string
		var balance, expected decimal.Decimal
		if err := rows.Scan(&id, &balance, &expected); err != nil {
			a.logger.Error("wallet audit scan failed", slog.Any("error", err))
			return count
		}
		count++
		a.logger.Error("wallet invariant violated",
			slog.String("wallet_id", id),
			slog.String("balance", balance.String()),
			slog.String("expected", expected.String()),
		)
	}
	return count
}

func (a *Auditor) sweepPools(ctx context.Context) int {
	rows, err := a.db.Query(ctx, `SELECT p.id, p.total_amount, p.remaining_amount,
            COALESCE(SUM(d.amount), 0) AS distributed
        FROM reward_pools p
        LEFT JOIN distributions d ON d.pool_id = p.id
        GROUP BY p.id
        HAVING p.remaining_amount < 0
            OR p.remaining_amount > p.total_amount
            OR p.total_amount - p.remaining_amount <> COALESCE(SUM(d.amount), 0)`)
	if err != nil {
		a.logger.Error("pool audit query failed", slog.Any("error", err))
		return 0
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id string
		var total, remaining, distributed decimal.Decimal
		if err := rows.Scan(&id, &total, &remaining, &distributed); err != nil {
			a.logger.Error("pool audit scan failed", slog.Any("error", err))
			return count
		}
		count++
		a.logger.Error("pool invariant violated",
			slog.String("pool_id", id),
			slog.String("total", total.String()),
			slog.String("remaining", remaining.String()),
			slog.String("distributed", distributed.String()),
		)
	}
	return count
}
