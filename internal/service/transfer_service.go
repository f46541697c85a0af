package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/types"
)

// TransferService merges broker transfer transactions into the daily
// ledger. Every applied transfer leaves a fingerprint in the snapshot's
// transfer description, so re-delivering the same transaction is a
// no-op regardless of how many times the feed replays it.
type TransferService struct {
	snapshotRepo BalanceSnapshotStore
}

// NewTransferService creates a new transfer service
func NewTransferService(snapshotRepo BalanceSnapshotStore) *TransferService {
	return &TransferService{snapshotRepo: snapshotRepo}
}

// ApplyTransfer merges one transfer transaction into the account's
// daily snapshot for the transaction's date, creating the snapshot when
// the transfer is the first event of its day. The stored snapshot for
// that date is always the mutation target, so a feed re-import of an
// older transaction lands on the row that already holds its
// fingerprint. Malformed transactions are rejected as fatal;
// zero-amount and already-applied transactions are silent no-ops.
func (s *TransferService) ApplyTransfer(ctx context.Context, tx *models.TransferTransaction) error {
	if err := validateTransfer(tx); err != nil {
		return err
	}
	if tx.Amount.IsZero() {
		log.Printf("[Transfer] Skipping zero-amount transaction %s for account %s", tx.ExternalID, tx.AccountID)
		return nil
	}

	fingerprint := transferFingerprint(tx)

	boundary := period.GetRollupPeriod(types.PeriodDaily, *tx.Date)

	target, err := s.snapshotRepo.GetByKey(ctx, tx.AccountID, types.PeriodDaily, boundary.End)
	if err != nil {
		return fmt.Errorf("failed to load daily snapshot for account %s: %w", tx.AccountID, err)
	}
	if target == nil {
		prior, err := s.snapshotRepo.GetPrior(ctx, tx.AccountID, types.PeriodDaily, boundary.End)
		if err != nil {
			return fmt.Errorf("failed to load prior daily snapshot for account %s: %w", tx.AccountID, err)
		}

		// First event of the transfer's day. The new snapshot carries
		// the cost basis forward but has no balance until the next mark.
		target = &models.AccountBalanceSnapshot{
			AccountID:   tx.AccountID,
			PeriodType:  types.PeriodDaily,
			PeriodStart: boundary.Start,
			PeriodEnd:   boundary.End,
		}
		if prior != nil && prior.InvestedAmount != nil {
			invested := *prior.InvestedAmount
			target.InvestedAmount = &invested
		}
	}

	if target.TransferDescription != nil && strings.Contains(*target.TransferDescription, fingerprint) {
		log.Printf("[Transfer] Transaction %s already applied to account %s, skipping", tx.ExternalID, tx.AccountID)
		return nil
	}

	amount := *tx.Amount
	if target.TransferAmount != nil {
		amount = target.TransferAmount.Add(amount)
	}
	target.TransferAmount = &amount

	line := fmt.Sprintf("%s %s", strings.TrimSpace(tx.Description), fingerprint)
	if target.TransferDescription != nil && *target.TransferDescription != "" {
		line = *target.TransferDescription + "\n" + line
	}
	target.TransferDescription = &line

	if err := s.snapshotRepo.Upsert(ctx, target); err != nil {
		return fmt.Errorf("failed to upsert transfer snapshot for account %s: %w", tx.AccountID, err)
	}

	log.Printf("[Transfer] Applied %s %s to account %s for %s",
		tx.Amount.StringFixed(2), tx.ExternalID, tx.AccountID, boundary.End.Format("2006-01-02"))
	return nil
}

func validateTransfer(tx *models.TransferTransaction) error {
	if tx == nil || tx.AccountID == "" {
		return errors.NewMissingAccountIDError()
	}
	if tx.Type != types.TransactionTransfer {
		return errors.NewInvalidTransferError(fmt.Sprintf("transaction %s has type %q, expected transfer", tx.ExternalID, tx.Type))
	}
	if tx.Amount == nil {
		return errors.NewInvalidTransferError(fmt.Sprintf("transaction %s has no amount", tx.ExternalID))
	}
	if tx.Date == nil {
		return errors.NewInvalidTransferError(fmt.Sprintf("transaction %s has no date", tx.ExternalID))
	}
	return nil
}

// transferFingerprint builds the idempotence marker embedded in the
// transfer description. The amount is part of the key so a corrected
// re-delivery with a different amount is applied, not suppressed.
func transferFingerprint(tx *models.TransferTransaction) string {
	return fmt.Sprintf("[txn:%s:%s]", tx.ExternalID, tx.Amount.String())
}
