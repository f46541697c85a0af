package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/types"
)

// In-memory repositories for testing. Upserts store deep copies so the
// mocks behave like a real database: later mutations of the caller's
// object never leak into stored state.

type mockSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[string]*models.AccountBalanceSnapshot
	upserts   int
}

func newMockSnapshotRepo() *mockSnapshotRepo {
	return &mockSnapshotRepo{snapshots: make(map[string]*models.AccountBalanceSnapshot)}
}

func snapshotKey(accountID string, periodType types.RollupPeriodType, periodEnd time.Time) string {
	return fmt.Sprintf("%s|%s|%s", accountID, periodType, periodEnd.Format("2006-01-02"))
}

func copySnapshot(s *models.AccountBalanceSnapshot) *models.AccountBalanceSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Balance = copyDec(s.Balance)
	c.BalanceChangeAmount = copyDec(s.BalanceChangeAmount)
	c.BalanceChangePct = copyDec(s.BalanceChangePct)
	c.TransferAmount = copyDec(s.TransferAmount)
	c.InvestedAmount = copyDec(s.InvestedAmount)
	c.NetGain = copyDec(s.NetGain)
	c.NetGainPct = copyDec(s.NetGainPct)
	if s.TransferDescription != nil {
		c.TransferDescription = types.StringPtr(*s.TransferDescription)
	}
	if s.Comment != nil {
		c.Comment = types.StringPtr(*s.Comment)
	}
	if s.BalanceUpdateTime != nil {
		c.BalanceUpdateTime = types.TimePtr(*s.BalanceUpdateTime)
	}
	return &c
}

func copyDec(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func (m *mockSnapshotRepo) Upsert(ctx context.Context, snapshot *models.AccountBalanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	m.snapshots[snapshotKey(snapshot.AccountID, snapshot.PeriodType, snapshot.PeriodEnd)] = copySnapshot(snapshot)
	return nil
}

func (m *mockSnapshotRepo) GetByKey(ctx context.Context, accountID string, periodType types.RollupPeriodType, periodEnd time.Time) (*models.AccountBalanceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySnapshot(m.snapshots[snapshotKey(accountID, periodType, periodEnd)]), nil
}

// sorted returns the account's snapshots of one period type in
// ascending period-end order.
func (m *mockSnapshotRepo) sorted(accountID string, periodType types.RollupPeriodType) []*models.AccountBalanceSnapshot {
	var out []*models.AccountBalanceSnapshot
	for _, s := range m.snapshots {
		if s.AccountID == accountID && s.PeriodType == periodType {
			out = append(out, copySnapshot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodEnd.Before(out[j].PeriodEnd) })
	return out
}

func (m *mockSnapshotRepo) GetPrior(ctx context.Context, accountID string, periodType types.RollupPeriodType, before time.Time) (*models.AccountBalanceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var prior *models.AccountBalanceSnapshot
	for _, s := range m.sorted(accountID, periodType) {
		if s.PeriodEnd.Before(before) {
			prior = s
		}
	}
	return prior, nil
}

func (m *mockSnapshotRepo) GetRange(ctx context.Context, accountID string, periodType types.RollupPeriodType, from, to time.Time) ([]*models.AccountBalanceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AccountBalanceSnapshot
	for _, s := range m.sorted(accountID, periodType) {
		if !s.PeriodEnd.Before(from) && !s.PeriodEnd.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSnapshotRepo) GetAllFrom(ctx context.Context, accountID string, periodType types.RollupPeriodType, from *time.Time) ([]*models.AccountBalanceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AccountBalanceSnapshot
	for _, s := range m.sorted(accountID, periodType) {
		if from == nil || !s.PeriodEnd.Before(*from) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSnapshotRepo) GetLatestTwo(ctx context.Context, accountID string, periodType types.RollupPeriodType) (*models.AccountBalanceSnapshot, *models.AccountBalanceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(accountID, periodType)
	switch len(all) {
	case 0:
		return nil, nil, nil
	case 1:
		return all[0], nil, nil
	default:
		return all[len(all)-1], all[len(all)-2], nil
	}
}

type mockAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	updated  map[string]*models.Account
}

func newMockAccountRepo(accounts ...*models.Account) *mockAccountRepo {
	m := &mockAccountRepo{
		accounts: make(map[string]*models.Account),
		updated:  make(map[string]*models.Account),
	}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *mockAccountRepo) List(ctx context.Context) ([]*models.Account, error) {
	out := make([]*models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return m.accounts[id], nil
}

func (m *mockAccountRepo) UpdateStats(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	m.updated[account.ID] = account
	m.mu.Unlock()
	return nil
}

type mockOrderRepo struct {
	counts map[string]int // accountID|date -> executed count
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{counts: make(map[string]int)}
}

func (m *mockOrderRepo) setCount(accountID string, date time.Time, count int) {
	m.counts[accountID+"|"+date.Format("2006-01-02")] = count
}

func (m *mockOrderRepo) CountExecutedOn(ctx context.Context, accountID string, date time.Time) (int, error) {
	return m.counts[accountID+"|"+date.Format("2006-01-02")], nil
}

type mockBroker struct {
	mu      sync.Mutex
	balance *decimal.Decimal
	err     error
	calls   int
}

func (m *mockBroker) TotalAccountValue(ctx context.Context, account *models.Account) (*decimal.Decimal, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return copyDec(m.balance), m.err
}

type mockHistoryStore struct {
	points []*models.BalanceHistoryPoint
}

func (m *mockHistoryStore) AppendBalancePoint(ctx context.Context, point *models.BalanceHistoryPoint) error {
	m.points = append(m.points, point)
	return nil
}

type mockTradeRepo struct {
	trades []*models.Trade
}

func (m *mockTradeRepo) GetActiveSince(ctx context.Context, accountID string, closedOnOrAfter time.Time) ([]*models.Trade, error) {
	var out []*models.Trade
	for _, tr := range m.trades {
		if tr.AccountID != accountID {
			continue
		}
		if tr.ClosedAt == nil || !tr.ClosedAt.Before(closedOnOrAfter) {
			out = append(out, tr)
		}
	}
	return out, nil
}

type mockTradeSnapshotRepo struct {
	snapshots map[string]*models.TradeGainSnapshot
}

func newMockTradeSnapshotRepo() *mockTradeSnapshotRepo {
	return &mockTradeSnapshotRepo{snapshots: make(map[string]*models.TradeGainSnapshot)}
}

func tradeSnapshotKey(accountID, tradeID string, periodType types.RollupPeriodType, periodEnd time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", accountID, tradeID, periodType, periodEnd.Format("2006-01-02"))
}

func (m *mockTradeSnapshotRepo) GetByKey(ctx context.Context, accountID, tradeID string, periodType types.RollupPeriodType, periodEnd time.Time) (*models.TradeGainSnapshot, error) {
	s := m.snapshots[tradeSnapshotKey(accountID, tradeID, periodType, periodEnd)]
	if s == nil {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *mockTradeSnapshotRepo) Upsert(ctx context.Context, snapshot *models.TradeGainSnapshot) error {
	c := *snapshot
	m.snapshots[tradeSnapshotKey(snapshot.AccountID, snapshot.TradeID, snapshot.PeriodType, snapshot.PeriodEnd)] = &c
	return nil
}

type mockJobStore struct {
	mu      sync.Mutex
	created []*models.BackfillJob
	updated []*models.BackfillJob
}

func (m *mockJobStore) Create(ctx context.Context, job *models.BackfillJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *job
	m.created = append(m.created, &c)
	return nil
}

func (m *mockJobStore) Update(ctx context.Context, job *models.BackfillJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *job
	m.updated = append(m.updated, &c)
	return nil
}
