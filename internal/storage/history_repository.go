package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/models"
)

// HistoryRepository writes the append-only chart history mirror kept in
// ClickHouse. The relational snapshots remain the source of truth; this
// mirror exists so charting range scans never touch the ledger tables.
type HistoryRepository struct {
	db *ClickHouseDB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *ClickHouseDB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendBalancePoint appends one daily balance point. The table uses a
// ReplacingMergeTree keyed on (account_id, date), so re-marking the
// same date converges to the latest values.
func (r *HistoryRepository) AppendBalancePoint(ctx context.Context, point *models.BalanceHistoryPoint) error {
	query := `
		INSERT INTO balance_history (account_id, date, balance, invested, net_gain)
		VALUES (?, ?, ?, ?, ?)
	`

	var invested, netGain *string
	if point.Invested != nil {
		v := point.Invested.String()
		invested = &v
	}
	if point.NetGain != nil {
		v := point.NetGain.String()
		netGain = &v
	}

	if err := r.db.Conn().Exec(ctx, query,
		point.AccountID,
		point.Date,
		point.Balance.String(),
		invested,
		netGain,
	); err != nil {
		return fmt.Errorf("failed to append balance history point: %w", err)
	}

	return nil
}

// GetBalanceHistory retrieves balance points for a date range, in
// chronological order.
func (r *HistoryRepository) GetBalanceHistory(ctx context.Context, accountID string, from, to time.Time) ([]*models.BalanceHistoryPoint, error) {
	query := `
		SELECT account_id, date, balance, invested, net_gain
		FROM balance_history FINAL
		WHERE account_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance history: %w", err)
	}
	defer rows.Close()

	var points []*models.BalanceHistoryPoint
	for rows.Next() {
		var p models.BalanceHistoryPoint
		var balance string
		var invested, netGain *string
		if err := rows.Scan(&p.AccountID, &p.Date, &balance, &invested, &netGain); err != nil {
			return nil, fmt.Errorf("failed to scan balance history row: %w", err)
		}

		p.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance %q: %w", balance, err)
		}
		if invested != nil {
			v, err := decimal.NewFromString(*invested)
			if err != nil {
				return nil, fmt.Errorf("failed to parse invested %q: %w", *invested, err)
			}
			p.Invested = &v
		}
		if netGain != nil {
			v, err := decimal.NewFromString(*netGain)
			if err != nil {
				return nil, fmt.Errorf("failed to parse net gain %q: %w", *netGain, err)
			}
			p.NetGain = &v
		}

		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balance history rows: %w", err)
	}

	return points, nil
}
