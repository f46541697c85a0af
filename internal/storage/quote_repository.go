package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/account-rollup/internal/models"
)

// QuoteRepository reads and writes the latest-price quote rows. Quote
// rows are the revaluation source for open trades; they are updated by
// the external fetcher and read here.
type QuoteRepository struct {
	pool *pgxpool.Pool
}

// NewQuoteRepository creates a new quote repository
func NewQuoteRepository(pool *pgxpool.Pool) *QuoteRepository {
	return &QuoteRepository{pool: pool}
}

// GetBySymbol returns the latest quote for a symbol, or nil when the
// symbol is unknown.
func (r *QuoteRepository) GetBySymbol(ctx context.Context, symbol string) (*models.Quote, error) {
	query := `
		SELECT symbol, price, as_of, updated_at
		FROM quotes
		WHERE symbol = $1
	`

	var q models.Quote
	err := r.pool.QueryRow(ctx, query, symbol).Scan(&q.Symbol, &q.Price, &q.AsOf, &q.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}

	return &q, nil
}

// Upsert stores the latest quote for a symbol, replacing any older one.
func (r *QuoteRepository) Upsert(ctx context.Context, quote *models.Quote) error {
	query := `
		INSERT INTO quotes (symbol, price, as_of, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			price = EXCLUDED.price,
			as_of = EXCLUDED.as_of,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, quote.Symbol, quote.Price, quote.AsOf)
	if err != nil {
		return fmt.Errorf("failed to upsert quote for %s: %w", quote.Symbol, err)
	}

	return nil
}
