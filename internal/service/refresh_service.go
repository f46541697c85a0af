package service

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
)

// TradeRefresher revalues open trades from the latest quotes.
type TradeRefresher interface {
	RefreshFromQuotes(ctx context.Context, accountID string) (int64, error)
}

// RefreshService is the end-to-end refresh pipeline. On every tick it
// walks all accounts in parallel; inside one account the steps run in
// strict order: quote revaluation, trade rollup, current-day mark, and
// any backfill that was requested since the previous cycle. The broker
// read inside the mark step is paced by a shared rate limiter so a
// large account set cannot burst the broker API.
type RefreshService struct {
	accountRepo AccountStore
	tradeRepo   TradeRefresher
	rollup      *RollupService
	tradeRollup *TradeRollupService
	backfill    *BackfillService

	limiter  *rate.Limiter
	interval time.Duration

	mu              sync.Mutex
	pendingBackfill map[string]*time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefreshService creates a new refresh service
func NewRefreshService(
	accountRepo AccountStore,
	tradeRepo TradeRefresher,
	rollup *RollupService,
	tradeRollup *TradeRollupService,
	backfill *BackfillService,
	interval time.Duration,
	brokerRatePerSecond float64,
	brokerBurst int,
) *RefreshService {
	return &RefreshService{
		accountRepo:     accountRepo,
		tradeRepo:       tradeRepo,
		rollup:          rollup,
		tradeRollup:     tradeRollup,
		backfill:        backfill,
		limiter:         rate.NewLimiter(rate.Limit(brokerRatePerSecond), brokerBurst),
		interval:        interval,
		pendingBackfill: make(map[string]*time.Time),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// RequestBackfill queues a historical recompute for the account,
// executed at the end of its next refresh cycle. A nil startDate means
// full history. Repeated requests keep the earliest start date so no
// requested range is ever narrowed.
func (s *RefreshService) RequestBackfill(accountID string, startDate *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, queued := s.pendingBackfill[accountID]
	if queued && (existing == nil || (startDate != nil && existing.Before(*startDate))) {
		return
	}
	s.pendingBackfill[accountID] = startDate
}

// Start runs the refresh loop until Stop is called. One cycle runs
// immediately.
func (s *RefreshService) Start(ctx context.Context) {
	log.Printf("[Refresh] Starting refresh loop with interval %s", s.interval)

	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RefreshAll(ctx)
		for {
			select {
			case <-ticker.C:
				s.RefreshAll(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the refresh loop and waits for the in-flight cycle to
// finish.
func (s *RefreshService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	log.Printf("[Refresh] Refresh loop stopped")
}

// RefreshAll runs one refresh cycle over every account. Accounts run
// concurrently and independently; one account's failure never blocks
// another.
func (s *RefreshService) RefreshAll(ctx context.Context) {
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		log.Printf("[Refresh] Failed to list accounts: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		go func(account *models.Account) {
			defer wg.Done()
			s.refreshAccount(ctx, account)
		}(account)
	}
	wg.Wait()
}

// refreshAccount runs one account's pipeline. Steps within the account
// are strictly sequential: the mark must see trades already revalued,
// and a backfill must not race the mark's writes.
func (s *RefreshService) refreshAccount(ctx context.Context, account *models.Account) {
	if n, err := s.tradeRepo.RefreshFromQuotes(ctx, account.ID); err != nil {
		log.Printf("[Refresh] Quote revaluation failed for account %s: %v", account.ID, err)
		return
	} else if n > 0 {
		log.Printf("[Refresh] Account %s: revalued %d trades", account.ID, n)
	}

	if err := s.tradeRollup.MarkTrades(ctx, account.ID); err != nil {
		log.Printf("[Refresh] Trade rollup failed for account %s: %v", account.ID, err)
		if errors.IsFatal(err) {
			return
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	if err := s.rollup.MarkCurrentDay(ctx, account); err != nil {
		log.Printf("[Refresh] Current-day mark failed for account %s: %v", account.ID, err)
		return
	}

	if startDate, ok := s.takeBackfillRequest(account.ID); ok {
		if err := s.backfill.BackfillAccount(ctx, account, startDate); err != nil {
			log.Printf("[Refresh] Backfill failed for account %s: %v", account.ID, err)
		}
	}
}

// takeBackfillRequest atomically claims a pending backfill request. A
// failed backfill is not requeued; the caller that noticed the gap
// requests again.
func (s *RefreshService) takeBackfillRequest(accountID string) (*time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startDate, ok := s.pendingBackfill[accountID]
	if ok {
		delete(s.pendingBackfill, accountID)
	}
	return startDate, ok
}
