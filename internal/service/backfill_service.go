package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/rollup"
	"github.com/account-rollup/internal/types"
)

// BackfillJobStore records backfill runs. Optional; a nil store skips
// the bookkeeping.
type BackfillJobStore interface {
	Create(ctx context.Context, job *models.BackfillJob) error
	Update(ctx context.Context, job *models.BackfillJob) error
}

// BackfillService recomputes ledger history chronologically. It is
// triggered when history is discovered retroactively or to repair
// drift, and regenerates snapshots key-stable: every recompute reuses
// the persisted snapshot's identity via natural-key upserts.
type BackfillService struct {
	snapshotRepo BalanceSnapshotStore
	accountRepo  AccountStore
	orderRepo    OrderStore
	jobRepo      BackfillJobStore
	clock        types.Clock
	simulated    bool
}

// NewBackfillService creates a new backfill service
func NewBackfillService(
	snapshotRepo BalanceSnapshotStore,
	accountRepo AccountStore,
	orderRepo OrderStore,
) *BackfillService {
	return &BackfillService{
		snapshotRepo: snapshotRepo,
		accountRepo:  accountRepo,
		orderRepo:    orderRepo,
		clock:        types.RealClock{},
	}
}

// WithJobStore enables backfill run bookkeeping.
func (s *BackfillService) WithJobStore(jobRepo BackfillJobStore) *BackfillService {
	s.jobRepo = jobRepo
	return s
}

// WithClock overrides the clock for simulated or test runs.
func (s *BackfillService) WithClock(clock types.Clock) *BackfillService {
	s.clock = clock
	return s
}

// WithSimulation switches the calculator to simulation mode.
func (s *BackfillService) WithSimulation(simulated bool) *BackfillService {
	s.simulated = simulated
	return s
}

// BackfillAll fans out one independent backfill per account. A failure
// in one account is logged and never cancels or affects the others.
func (s *BackfillService) BackfillAll(ctx context.Context, startDate *time.Time) error {
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts for backfill: %w", err)
	}

	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		go func(account *models.Account) {
			defer wg.Done()
			if err := s.BackfillAccount(ctx, account, startDate); err != nil {
				log.Printf("[Backfill] Account %s failed: %v", account.ID, err)
			}
		}(account)
	}
	wg.Wait()

	return nil
}

// BackfillAccount recomputes one account's history from startDate (all
// history when nil). The daily walk is strictly sequential: each step's
// invested amount depends on the immediately preceding one, so no
// parallelism is permitted inside an account's recompute.
func (s *BackfillService) BackfillAccount(ctx context.Context, account *models.Account, startDate *time.Time) error {
	if account == nil || account.ID == "" {
		return errors.NewMissingAccountIDError()
	}

	job := s.startJob(ctx, account.ID, startDate)

	recomputed, err := s.backfill(ctx, account, startDate)
	s.finishJob(ctx, job, recomputed, err)
	if err != nil {
		return err
	}

	log.Printf("[Backfill] Account %s: recomputed %d snapshots", account.ID, recomputed)
	return nil
}

func (s *BackfillService) backfill(ctx context.Context, account *models.Account, startDate *time.Time) (int64, error) {
	dailies, err := s.snapshotRepo.GetAllFrom(ctx, account.ID, types.PeriodDaily, startDate)
	if err != nil {
		return 0, fmt.Errorf("failed to load daily history for account %s: %w", account.ID, err)
	}
	if len(dailies) == 0 {
		log.Printf("[Backfill] Account %s: no daily history on or after start date", account.ID)
		return 0, nil
	}

	// The first element's baseline is the nearest persisted snapshot
	// before it; for a full-history run there is none.
	previous, err := s.snapshotRepo.GetPrior(ctx, account.ID, types.PeriodDaily, dailies[0].PeriodEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load backfill baseline for account %s: %w", account.ID, err)
	}

	now := s.clock.Now()
	var recomputed int64

	refreshed := make([]*models.AccountBalanceSnapshot, 0, len(dailies))
	for _, daily := range dailies {
		boundary := period.GetRollupPeriod(types.PeriodDaily, daily.PeriodEnd)

		balance := decimal.Zero
		switch {
		case daily.Balance != nil:
			balance = *daily.Balance
		case previous != nil && previous.Balance != nil:
			// A transfer-created snapshot that was never marked has no
			// balance of its own; carry the previous day's forward.
			balance = *previous.Balance
			log.Printf("[Backfill] Account %s: carrying balance forward for %s", account.ID, boundary.End.Format("2006-01-02"))
		}

		ordersExecuted, err := s.orderRepo.CountExecutedOn(ctx, account.ID, boundary.End)
		if err != nil {
			return recomputed, fmt.Errorf("failed to count orders for account %s on %s: %w", account.ID, boundary.End.Format("2006-01-02"), err)
		}

		snapshot, err := rollup.ComputeSnapshot(rollup.ComputeInput{
			AccountID:           account.ID,
			PeriodType:          types.PeriodDaily,
			Period:              boundary,
			Balance:             balance,
			Existing:            daily,
			Previous:            previous,
			OrdersExecutedToday: ordersExecuted,
			Simulated:           s.simulated,
			Now:                 now,
		})
		if err != nil {
			return recomputed, err
		}

		if err := s.snapshotRepo.Upsert(ctx, snapshot); err != nil {
			return recomputed, fmt.Errorf("failed to upsert daily snapshot for account %s: %w", account.ID, err)
		}

		refreshed = append(refreshed, snapshot)
		previous = snapshot
		recomputed++
	}

	for _, periodType := range []types.RollupPeriodType{types.PeriodWeekly, types.PeriodMonthly} {
		n, err := s.replayGroups(ctx, account.ID, periodType, refreshed, now)
		if err != nil {
			return recomputed, err
		}
		recomputed += n
	}

	return recomputed, nil
}

// replayGroups buckets the refreshed daily snapshots by their computed
// weekly or monthly period end and replays each group through the
// calculator in ascending period-end order, using the group's most
// recent daily balance as the period's balance.
func (s *BackfillService) replayGroups(
	ctx context.Context,
	accountID string,
	periodType types.RollupPeriodType,
	dailies []*models.AccountBalanceSnapshot,
	now time.Time,
) (int64, error) {
	groups := make(map[time.Time][]*models.AccountBalanceSnapshot)
	boundaries := make(map[time.Time]period.Boundary)
	for _, d := range dailies {
		boundary := period.GetRollupPeriod(periodType, d.PeriodEnd)
		groups[boundary.End] = append(groups[boundary.End], d)
		boundaries[boundary.End] = boundary
	}

	ends := make([]time.Time, 0, len(groups))
	for end := range groups {
		ends = append(ends, end)
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i].Before(ends[j]) })

	var recomputed int64
	for _, end := range ends {
		group := groups[end]
		lastDaily := group[len(group)-1]

		balance := decimal.Zero
		if lastDaily.Balance != nil {
			balance = *lastDaily.Balance
		}

		existing, err := s.snapshotRepo.GetByKey(ctx, accountID, periodType, end)
		if err != nil {
			return recomputed, fmt.Errorf("failed to load %s snapshot for account %s: %w", periodType, accountID, err)
		}
		previous, err := s.snapshotRepo.GetPrior(ctx, accountID, periodType, end)
		if err != nil {
			return recomputed, fmt.Errorf("failed to load prior %s snapshot for account %s: %w", periodType, accountID, err)
		}

		snapshot, err := rollup.ComputeSnapshot(rollup.ComputeInput{
			AccountID:  accountID,
			PeriodType: periodType,
			Period:     boundaries[end],
			Balance:    balance,
			Existing:   existing,
			Previous:   previous,
			Dailies:    group,
			// Passing the last daily's own count makes the stale-count
			// replacement a no-op during replay.
			OrdersExecutedToday: lastDaily.OrdersExecuted,
			Simulated:           s.simulated,
			Now:                 now,
		})
		if err != nil {
			return recomputed, err
		}

		if err := s.snapshotRepo.Upsert(ctx, snapshot); err != nil {
			return recomputed, fmt.Errorf("failed to upsert %s snapshot for account %s: %w", periodType, accountID, err)
		}
		recomputed++
	}

	return recomputed, nil
}

func (s *BackfillService) startJob(ctx context.Context, accountID string, startDate *time.Time) *models.BackfillJob {
	if s.jobRepo == nil {
		return nil
	}

	job := &models.BackfillJob{
		JobID:     uuid.New().String(),
		AccountID: accountID,
		StartDate: startDate,
		Status:    types.BackfillStatusInProgress,
		StartedAt: s.clock.Now(),
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		log.Printf("[Backfill] Warning: failed to record job for account %s: %v", accountID, err)
		return nil
	}
	return job
}

func (s *BackfillService) finishJob(ctx context.Context, job *models.BackfillJob, recomputed int64, runErr error) {
	if job == nil {
		return
	}

	job.SnapshotsRecomputed = recomputed
	job.CompletedAt = types.TimePtr(s.clock.Now())
	if runErr != nil {
		job.Status = types.BackfillStatusFailed
		job.Error = types.StringPtr(runErr.Error())
	} else {
		job.Status = types.BackfillStatusCompleted
	}
	if err := s.jobRepo.Update(ctx, job); err != nil {
		log.Printf("[Backfill] Warning: failed to update job %s: %v", job.JobID, err)
	}
}
