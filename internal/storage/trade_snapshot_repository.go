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

const tradeSnapshotColumns = `
	account_id,
	trade_id,
	period_type,
	period_start,
	period_end,
	period_gain,
	period_gain_pct,
	total_gain,
	total_gain_pct,
	current_value,
	current_cost,
	current_price_at_period_end,
	open_quantity_at_period_end,
	breakeven_at_period_end,
	realized_gain_at_period_end,
	unrealized_gain_at_period_end`

// TradeSnapshotRepository handles trade gain snapshot storage.
// Natural key: (account, trade, period type, period end).
type TradeSnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewTradeSnapshotRepository creates a new trade snapshot repository
func NewTradeSnapshotRepository(pool *pgxpool.Pool) *TradeSnapshotRepository {
	return &TradeSnapshotRepository{pool: pool}
}

// Upsert writes a trade snapshot by its natural key.
func (r *TradeSnapshotRepository) Upsert(ctx context.Context, snapshot *models.TradeGainSnapshot) error {
	query := `
		INSERT INTO trade_gain_snapshots (` + tradeSnapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (account_id, trade_id, period_type, period_end)
		DO UPDATE SET
			period_start = EXCLUDED.period_start,
			period_gain = EXCLUDED.period_gain,
			period_gain_pct = EXCLUDED.period_gain_pct,
			total_gain = EXCLUDED.total_gain,
			total_gain_pct = EXCLUDED.total_gain_pct,
			current_value = EXCLUDED.current_value,
			current_cost = EXCLUDED.current_cost,
			current_price_at_period_end = EXCLUDED.current_price_at_period_end,
			open_quantity_at_period_end = EXCLUDED.open_quantity_at_period_end,
			breakeven_at_period_end = EXCLUDED.breakeven_at_period_end,
			realized_gain_at_period_end = EXCLUDED.realized_gain_at_period_end,
			unrealized_gain_at_period_end = EXCLUDED.unrealized_gain_at_period_end
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		snapshot.AccountID,
		snapshot.TradeID,
		snapshot.PeriodType,
		snapshot.PeriodStart,
		snapshot.PeriodEnd,
		snapshot.PeriodGain,
		snapshot.PeriodGainPct,
		snapshot.TotalGain,
		snapshot.TotalGainPct,
		snapshot.CurrentValue,
		snapshot.CurrentCost,
		snapshot.CurrentPriceAtPeriodEnd,
		snapshot.OpenQuantityAtPeriodEnd,
		snapshot.BreakevenAtPeriodEnd,
		snapshot.RealizedGainAtPeriodEnd,
		snapshot.UnrealizedGainAtPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trade snapshot: %w", err)
	}

	return nil
}

// GetByKey retrieves a trade snapshot by natural key. Returns nil when
// no snapshot exists.
func (r *TradeSnapshotRepository) GetByKey(ctx context.Context, accountID, tradeID string, periodType types.RollupPeriodType, periodEnd time.Time) (*models.TradeGainSnapshot, error) {
	query := `
		SELECT ` + tradeSnapshotColumns + `
		FROM trade_gain_snapshots
		WHERE account_id = $1 AND trade_id = $2 AND period_type = $3 AND period_end = $4
	`

	row := r.pool.QueryRow(ctx, query, accountID, tradeID, periodType, periodEnd)
	snapshot, err := scanTradeSnapshot(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade snapshot: %w", err)
	}

	return snapshot, nil
}

// GetTradeHistory retrieves all snapshots of a period type for one
// trade, in chronological order.
func (r *TradeSnapshotRepository) GetTradeHistory(ctx context.Context, accountID, tradeID string, periodType types.RollupPeriodType) ([]*models.TradeGainSnapshot, error) {
	query := `
		SELECT ` + tradeSnapshotColumns + `
		FROM trade_gain_snapshots
		WHERE account_id = $1 AND trade_id = $2 AND period_type = $3
		ORDER BY period_end ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID, tradeID, periodType)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade snapshot history: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.TradeGainSnapshot
	for rows.Next() {
		snapshot, err := scanTradeSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade snapshot row: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade snapshot rows: %w", err)
	}

	return snapshots, nil
}

func scanTradeSnapshot(row pgx.Row) (*models.TradeGainSnapshot, error) {
	var s models.TradeGainSnapshot
	err := row.Scan(
		&s.AccountID,
		&s.TradeID,
		&s.PeriodType,
		&s.PeriodStart,
		&s.PeriodEnd,
		&s.PeriodGain,
		&s.PeriodGainPct,
		&s.TotalGain,
		&s.TotalGainPct,
		&s.CurrentValue,
		&s.CurrentCost,
		&s.CurrentPriceAtPeriodEnd,
		&s.OpenQuantityAtPeriodEnd,
		&s.BreakevenAtPeriodEnd,
		&s.RealizedGainAtPeriodEnd,
		&s.UnrealizedGainAtPeriodEnd,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
