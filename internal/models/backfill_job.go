package models

import (
	"time"

	"github.com/account-rollup/internal/types"
)

// BackfillJob represents one historical recompute run in the database
// (one per account per trigger).
type BackfillJob struct {
	JobID               string               `json:"jobId" db:"job_id"`
	AccountID           string               `json:"accountId" db:"account_id"`
	StartDate           *time.Time           `json:"startDate,omitempty" db:"start_date"`
	Status              types.BackfillStatus `json:"status" db:"status"`
	SnapshotsRecomputed int64                `json:"snapshotsRecomputed" db:"snapshots_recomputed"`
	StartedAt           time.Time            `json:"startedAt" db:"started_at"`
	CompletedAt         *time.Time           `json:"completedAt,omitempty" db:"completed_at"`
	Error               *string              `json:"error,omitempty" db:"error"`
}
