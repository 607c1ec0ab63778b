package models

import (
	"github.com/shopspring/decimal"
)

// Limits enforced by validation before anything reaches storage.
const (
	// MaxParticipants is the maximum number of splits on one expense.
	MaxParticipants = 50

	// MaxDescriptionLength bounds expense and settlement descriptions.
	MaxDescriptionLength = 200

	// MaxMemberIDLength bounds member and household identifiers.
	MaxMemberIDLength = 64
)

// MaxAmount is the largest amount accepted for an expense, split,
// payment, or settlement.
var MaxAmount = decimal.RequireFromString("999999.99")

// Expense represents a shared household expense.
// Created, updated, and deleted only through the expense service so that
// split validity, optimistic concurrency, and settled-split adjustments
// are enforced on every mutation.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// HouseholdID is the household this expense belongs to.
	// Households are owned by an external service; this is an opaque id.
	HouseholdID string

	// Description is the human-readable label. Non-empty, bounded length.
	Description string

	// Amount is the total expense amount. Positive, at most MaxAmount.
	Amount decimal.Decimal

	// Date is the Unix timestamp of when the expense occurred.
	Date int64

	// Version increments on every update. Updates carrying a stale
	// expected version are rejected, never merged.
	Version int64

	// Deleted marks a soft-deleted expense. Expenses with settled splits
	// are soft-deleted so their settlement history stays intact.
	Deleted bool

	// DeletedAt is the Unix timestamp of the soft delete, 0 otherwise.
	DeletedAt int64

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64

	// CreatedBy is the member who recorded the expense.
	CreatedBy string

	// Payments records who paid. Their amounts sum to Amount.
	Payments []Payment

	// Splits records who owes what. Their effective amounts sum to Amount.
	Splits []Split
}

// Payment is one payer's contribution to an expense. An expense has one
// or more payments; multi-payer expenses are supported.
type Payment struct {
	ID        string
	ExpenseID string
	PayerID   string
	Amount    decimal.Decimal
}

// Split is one member's assigned share of an expense.
//
// State machine: unsettled -> settled (via the settlement flow)
// -> settled+adjusted (via an update after settlement)
// -> reversed (via a delete after settlement).
// Once Settled is true, Amount is logically immutable; later edits append
// Adjustments instead of overwriting it.
type Split struct {
	ID        string
	ExpenseID string
	MemberID  string

	// Amount is the share assigned when the split was last unsettled.
	// For settled splits this is the settled base amount.
	Amount decimal.Decimal

	Settled   bool
	SettledAt int64

	// Adjustments is the append-only correction history, oldest first.
	// Only settled splits carry adjustments.
	Adjustments []Adjustment
}

// AdjustmentTotal returns the sum of all adjustment deltas.
func (s *Split) AdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, adj := range s.Adjustments {
		total = total.Add(adj.Delta)
	}
	return total
}

// EffectiveAmount is the share used by all balance computations:
// the base amount plus every adjustment layered on it.
func (s *Split) EffectiveAmount() decimal.Decimal {
	return s.Amount.Add(s.AdjustmentTotal())
}

// Adjustment is an append-only correction on a settled split.
// The split's effective amount is its base amount plus all deltas.
type Adjustment struct {
	ID        string
	SplitID   string
	Delta     decimal.Decimal
	Reason    string
	CreatedBy string
	CreatedAt int64
}
