package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/account-rollup/internal/models"
)

const accountColumns = `
	id,
	name,
	broker,
	rollup_window_start,
	all_time_high,
	all_time_high_date,
	drawdown_from_ath,
	drawdown_pct_from_ath,
	created_at,
	updated_at`

// AccountRepository handles account data access
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// List retrieves all accounts ordered by ID
func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

// GetByID retrieves an account by ID. Returns nil when not found.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1
	`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	return account, nil
}

// UpdateStats writes the all-time-high and drawdown fields computed
// from daily snapshot history onto the account record.
func (r *AccountRepository) UpdateStats(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET all_time_high = $2,
			all_time_high_date = $3,
			drawdown_from_ath = $4,
			drawdown_pct_from_ath = $5,
			updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		account.ID,
		account.AllTimeHigh,
		account.AllTimeHighDate,
		account.DrawdownFromATH,
		account.DrawdownPctFromATH,
	)
	if err != nil {
		return fmt.Errorf("failed to update account stats: %w", err)
	}

	return nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Broker,
		&a.RollupWindowStart,
		&a.AllTimeHigh,
		&a.AllTimeHighDate,
		&a.DrawdownFromATH,
		&a.DrawdownPctFromATH,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
