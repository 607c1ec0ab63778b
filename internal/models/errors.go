// Centralized error types for the expense core.
//
// Validation and structural errors are raised before any persistence
// call and carry both the expected and actual values. Concurrency errors
// are surfaced to the caller to refresh and retry; they are never
// auto-resolved.
package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors, for use with errors.Is.
var (
	// ErrNotFound is returned when an expense, split, or household is absent.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when an update carries an
	// expected version that no longer matches the stored version.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNotHouseholdMember is returned when the acting member does not
	// belong to the household being mutated.
	ErrNotHouseholdMember = errors.New("not a household member")
)

// ValidationError reports malformed or out-of-range input. It is always
// raised before any persistence call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidSplitTotalError reports a split set whose sum differs from the
// expense total beyond the rounding tolerance.
type InvalidSplitTotalError struct {
	Expected  decimal.Decimal
	Actual    decimal.Decimal
	Tolerance decimal.Decimal
}

func (e *InvalidSplitTotalError) Error() string {
	return fmt.Sprintf("splits sum to %s, expected %s (tolerance %s)",
		e.Actual, e.Expected, e.Tolerance)
}

// ConcurrentModificationError carries the version the caller observed and
// the version actually stored. The caller must re-fetch and retry.
type ConcurrentModificationError struct {
	ExpenseID       string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("expense %s was modified: expected version %d, found %d; refresh and retry",
		e.ExpenseID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrentModificationError) Unwrap() error {
	return ErrConcurrentModification
}

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	var ste *InvalidSplitTotalError
	return errors.As(err, &ve) || errors.As(err, &ste)
}
