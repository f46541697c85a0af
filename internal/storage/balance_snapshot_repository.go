package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/types"
)

const balanceSnapshotColumns = `
	account_id,
	period_type,
	period_start,
	period_end,
	balance,
	balance_update_time,
	balance_change_amount,
	balance_change_pct,
	transfer_amount,
	transfer_description,
	invested_amount,
	net_gain,
	net_gain_pct,
	orders_executed,
	comment`

// BalanceSnapshotRepository handles account balance snapshot storage.
// Snapshots are addressed by their natural key (account, period type,
// period end) and written with upserts so identity survives recompute.
type BalanceSnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewBalanceSnapshotRepository creates a new balance snapshot repository
func NewBalanceSnapshotRepository(pool *pgxpool.Pool) *BalanceSnapshotRepository {
	return &BalanceSnapshotRepository{pool: pool}
}

// Upsert writes a snapshot by its natural key, updating all derived
// fields in place when the key already exists.
func (r *BalanceSnapshotRepository) Upsert(ctx context.Context, snapshot *models.AccountBalanceSnapshot) error {
	query := `
		INSERT INTO account_balance_snapshots (` + balanceSnapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (account_id, period_type, period_end)
		DO UPDATE SET
			period_start = EXCLUDED.period_start,
			balance = EXCLUDED.balance,
			balance_update_time = EXCLUDED.balance_update_time,
			balance_change_amount = EXCLUDED.balance_change_amount,
			balance_change_pct = EXCLUDED.balance_change_pct,
			transfer_amount = EXCLUDED.transfer_amount,
			transfer_description = EXCLUDED.transfer_description,
			invested_amount = EXCLUDED.invested_amount,
			net_gain = EXCLUDED.net_gain,
			net_gain_pct = EXCLUDED.net_gain_pct,
			orders_executed = EXCLUDED.orders_executed,
			comment = EXCLUDED.comment
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		snapshot.AccountID,
		snapshot.PeriodType,
		snapshot.PeriodStart,
		snapshot.PeriodEnd,
		snapshot.Balance,
		snapshot.BalanceUpdateTime,
		snapshot.BalanceChangeAmount,
		snapshot.BalanceChangePct,
		snapshot.TransferAmount,
		snapshot.TransferDescription,
		snapshot.InvestedAmount,
		snapshot.NetGain,
		snapshot.NetGainPct,
		snapshot.OrdersExecuted,
		snapshot.Comment,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance snapshot: %w", err)
	}

	return nil
}

// GetByKey retrieves a snapshot by natural key. Returns nil when no
// snapshot exists for the key.
func (r *BalanceSnapshotRepository) GetByKey(ctx context.Context, accountID string, periodType types.RollupPeriodType, periodEnd time.Time) (*models.AccountBalanceSnapshot, error) {
	query := `
		SELECT ` + balanceSnapshotColumns + `
		FROM account_balance_snapshots
		WHERE account_id = $1 AND period_type = $2 AND period_end = $3
	`

	row := r.pool.QueryRow(ctx, query, accountID, periodType, periodEnd)
	snapshot, err := scanBalanceSnapshot(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query balance snapshot: %w", err)
	}

	return snapshot, nil
}

// GetPrior retrieves the snapshot of the same period type with the
// greatest period end strictly before the given date. Returns nil when
// no earlier snapshot exists.
func (r *BalanceSnapshotRepository) GetPrior(ctx context.Context, accountID string, periodType types.RollupPeriodType, before time.Time) (*models.AccountBalanceSnapshot, error) {
	query := `
		SELECT ` + balanceSnapshotColumns + `
		FROM account_balance_snapshots
		WHERE account_id = $1 AND period_type = $2 AND period_end < $3
		ORDER BY period_end DESC
		LIMIT 1
	`

	row := r.pool.QueryRow(ctx, query, accountID, periodType, before)
	snapshot, err := scanBalanceSnapshot(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prior balance snapshot: %w", err)
	}

	return snapshot, nil
}

// GetRange retrieves snapshots whose period end falls within [from, to],
// in chronological order.
func (r *BalanceSnapshotRepository) GetRange(ctx context.Context, accountID string, periodType types.RollupPeriodType, from, to time.Time) ([]*models.AccountBalanceSnapshot, error) {
	query := `
		SELECT ` + balanceSnapshotColumns + `
		FROM account_balance_snapshots
		WHERE account_id = $1 AND period_type = $2
			AND period_end >= $3 AND period_end <= $4
		ORDER BY period_end ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID, periodType, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance snapshot range: %w", err)
	}
	defer rows.Close()

	return collectBalanceSnapshots(rows)
}

// GetAllFrom retrieves all snapshots of a period type with period end on
// or after from (or all history when from is nil), in chronological
// order. The backfill walk depends on this ordering.
func (r *BalanceSnapshotRepository) GetAllFrom(ctx context.Context, accountID string, periodType types.RollupPeriodType, from *time.Time) ([]*models.AccountBalanceSnapshot, error) {
	query := `
		SELECT ` + balanceSnapshotColumns + `
		FROM account_balance_snapshots
		WHERE account_id = $1 AND period_type = $2
			AND ($3::timestamptz IS NULL OR period_end >= $3)
		ORDER BY period_end ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID, periodType, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance snapshot history: %w", err)
	}
	defer rows.Close()

	return collectBalanceSnapshots(rows)
}

// GetLatestTwo retrieves the two most recent snapshots of a period
// type, most recent first. The transfer ledger merge needs the latest
// snapshot as its mutation target and the one before it as baseline.
func (r *BalanceSnapshotRepository) GetLatestTwo(ctx context.Context, accountID string, periodType types.RollupPeriodType) (latest, previous *models.AccountBalanceSnapshot, err error) {
	query := `
		SELECT ` + balanceSnapshotColumns + `
		FROM account_balance_snapshots
		WHERE account_id = $1 AND period_type = $2
		ORDER BY period_end DESC
		LIMIT 2
	`

	rows, err := r.pool.Query(ctx, query, accountID, periodType)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query latest balance snapshots: %w", err)
	}
	defer rows.Close()

	snapshots, err := collectBalanceSnapshots(rows)
	if err != nil {
		return nil, nil, err
	}

	if len(snapshots) > 0 {
		latest = snapshots[0]
	}
	if len(snapshots) > 1 {
		previous = snapshots[1]
	}
	return latest, previous, nil
}

// CountByKey returns the number of rows sharing a natural key. Used by
// consistency checks; anything other than 0 or 1 is an invariant
// violation upstream.
func (r *BalanceSnapshotRepository) CountByKey(ctx context.Context, accountID string, periodType types.RollupPeriodType, periodEnd time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM account_balance_snapshots
		WHERE account_id = $1 AND period_type = $2 AND period_end = $3
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, accountID, periodType, periodEnd).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count balance snapshots: %w", err)
	}
	return count, nil
}

func collectBalanceSnapshots(rows pgx.Rows) ([]*models.AccountBalanceSnapshot, error) {
	var snapshots []*models.AccountBalanceSnapshot
	for rows.Next() {
		snapshot, err := scanBalanceSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance snapshot row: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance snapshot rows: %w", err)
	}
	return snapshots, nil
}

func scanBalanceSnapshot(row pgx.Row) (*models.AccountBalanceSnapshot, error) {
	var s models.AccountBalanceSnapshot
	err := row.Scan(
		&s.AccountID,
		&s.PeriodType,
		&s.PeriodStart,
		&s.PeriodEnd,
		&s.Balance,
		&s.BalanceUpdateTime,
		&s.BalanceChangeAmount,
		&s.BalanceChangePct,
		&s.TransferAmount,
		&s.TransferDescription,
		&s.InvestedAmount,
		&s.NetGain,
		&s.NetGainPct,
		&s.OrdersExecuted,
		&s.Comment,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
