package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository exposes the order facts the rollup engine reads. The
// import pipeline that writes orders is external.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CountExecutedOn returns the number of orders executed for an account
// on the given calendar date.
func (r *OrderRepository) CountExecutedOn(ctx context.Context, accountID string, date time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM orders
		WHERE account_id = $1
			AND status = 'executed'
			AND executed_at >= $2
			AND executed_at < $2 + INTERVAL '1 day'
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, accountID, date).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count executed orders: %w", err)
	}

	return count, nil
}
