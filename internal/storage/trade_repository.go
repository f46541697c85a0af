package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/models"
)

const tradeColumns = `
	id,
	account_id,
	symbol,
	opened_at,
	closed_at,
	total_gain,
	current_value,
	current_cost,
	current_price,
	open_quantity,
	breakeven_price,
	realized_gain,
	unrealized_gain`

// TradeRepository handles trade data access
type TradeRepository struct {
	pool *pgxpool.Pool
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(pool *pgxpool.Pool) *TradeRepository {
	return &TradeRepository{pool: pool}
}

// GetActiveSince retrieves trades that are open, or were closed on or
// after the given date. These are the trades whose period snapshots
// still need refreshing.
func (r *TradeRepository) GetActiveSince(ctx context.Context, accountID string, closedOnOrAfter time.Time) ([]*models.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE account_id = $1
			AND (closed_at IS NULL OR closed_at >= $2)
		ORDER BY opened_at ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID, closedOnOrAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to query active trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}

	return trades, nil
}

// GetByID retrieves a trade by ID. Returns nil when not found.
func (r *TradeRepository) GetByID(ctx context.Context, id string) (*models.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE id = $1
	`

	trade, err := scanTrade(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade: %w", err)
	}

	return trade, nil
}

// RefreshFromQuotes updates the open trades of an account from the
// latest quote prices inside one transaction.
//
// Lock order: quote rows are share-locked before any trade row is
// written. Multiple accounts' refresh pipelines run concurrently
// against the shared quotes relation, and taking the quote locks first
// in every pipeline prevents deadlocks between them.
func (r *TradeRepository) RefreshFromQuotes(ctx context.Context, accountID string) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin quote refresh transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	lockQuery := `
		SELECT q.symbol, q.price
		FROM quotes q
		WHERE q.symbol IN (
			SELECT DISTINCT symbol FROM trades
			WHERE account_id = $1 AND closed_at IS NULL
		)
		FOR SHARE OF q
	`

	rows, err := tx.Query(ctx, lockQuery, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock quote rows: %w", err)
	}

	prices := make(map[string]decimal.Decimal)
	for rows.Next() {
		var symbol string
		var price decimal.Decimal
		if err := rows.Scan(&symbol, &price); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan quote row: %w", err)
		}
		prices[symbol] = price
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating quote rows: %w", err)
	}
	rows.Close()

	var updated int64
	for symbol, price := range prices {
		updateQuery := `
			UPDATE trades
			SET current_price = $3,
				current_value = $3 * open_quantity,
				unrealized_gain = ($3 * open_quantity) - current_cost,
				total_gain = COALESCE(realized_gain, 0) + (($3 * open_quantity) - current_cost)
			WHERE account_id = $1 AND symbol = $2 AND closed_at IS NULL
				AND open_quantity IS NOT NULL AND current_cost IS NOT NULL
		`
		tag, err := tx.Exec(ctx, updateQuery, accountID, symbol, price)
		if err != nil {
			return 0, fmt.Errorf("failed to refresh trades for symbol %s: %w", symbol, err)
		}
		updated += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit quote refresh: %w", err)
	}

	return updated, nil
}

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var t models.Trade
	err := row.Scan(
		&t.ID,
		&t.AccountID,
		&t.Symbol,
		&t.OpenedAt,
		&t.ClosedAt,
		&t.TotalGain,
		&t.CurrentValue,
		&t.CurrentCost,
		&t.CurrentPrice,
		&t.OpenQuantity,
		&t.BreakevenPrice,
		&t.RealizedGain,
		&t.UnrealizedGain,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
