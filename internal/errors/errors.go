package errors

import (
	goerrors "errors"
	"fmt"

	"github.com/account-rollup/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed input facts (fatal for the current step)
	CategoryValidation ErrorCategory = "validation"
	// CategoryInvariant represents a violated data invariant (fatal for the current step)
	CategoryInvariant ErrorCategory = "invariant"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryProvider represents broker/data provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with a category and stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Fatal input errors: these abort the current account's processing step.

// NewMissingAccountIDError creates an error for a rollup request without an account
func NewMissingAccountIDError() *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "MISSING_ACCOUNT_ID",
		Message:  "account identifier is required",
	}
}

// NewMissingTradeIDError creates an error for a trade update without an identifier
func NewMissingTradeIDError() *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "MISSING_TRADE_ID",
		Message:  "trade identifier is required",
	}
}

// NewInvalidTransferError creates an error for a transfer transaction of the
// wrong type or with a null amount or date
func NewInvalidTransferError(reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "INVALID_TRANSFER",
		Message:  fmt.Sprintf("invalid transfer transaction: %s", reason),
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewDuplicateDailySnapshotError signals a natural-key uniqueness violation:
// more than one daily snapshot shares the same period end.
func NewDuplicateDailySnapshotError(accountID string, periodEnd string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryInvariant,
		Code:     "DUPLICATE_DAILY_SNAPSHOT",
		Message:  fmt.Sprintf("multiple daily snapshots found for account %s at period end %s", accountID, periodEnd),
		Details: map[string]interface{}{
			"accountId": accountID,
			"periodEnd": periodEnd,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryDatabase,
		Code:     "DATABASE_ERROR",
		Message:  fmt.Sprintf("database error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewProviderError creates a broker/data provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryProvider,
		Code:     "PROVIDER_ERROR",
		Message:  fmt.Sprintf("data provider error: %s", provider),
		Cause:    cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryCache,
		Code:     "CACHE_ERROR",
		Message:  fmt.Sprintf("cache error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an unexpected internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySystem,
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Cause:    cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized (possibly wrapped), return as-is
	var catErr *CategorizedError
	if goerrors.As(err, &catErr) {
		return catErr
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// IsFatal reports whether the error should abort the current account's
// processing step. Validation and invariant errors are fatal; transient
// provider, cache, and database errors are left to the next cycle.
func IsFatal(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryValidation, CategoryInvariant:
		return true
	default:
		return false
	}
}

// IsRetryable determines if an error is retryable on a later cycle
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase, CategoryCache:
		return true
	default:
		return false
	}
}
