// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/hausmate/hausmate/internal/models"
)

// CreateExpenseResult reports the outcome of an expense creation.
// Idempotent is true when the idempotency key matched an existing
// expense and no new rows were written; Version is then the stored
// version of that expense, which may exceed 1 if it was updated since.
type CreateExpenseResult struct {
	ExpenseID  string
	Version    int64
	Idempotent bool
}

// Store is the persistence boundary of the expense core. Every mutation
// is a single atomic operation: the core issues one request and the
// store applies it all-or-nothing. The core holds no in-process locks;
// update conflicts are resolved by the version check inside
// ApplyExpenseUpdate.
type Store interface {
	// CreateExpense persists a new expense with its payments and splits.
	// The expense ID is populated by the store. A non-empty
	// idempotencyKey is enforced atomically with the insert: a retry
	// carrying the same key returns the original expense id with
	// Idempotent set instead of inserting a duplicate.
	CreateExpense(ctx context.Context, expense *models.Expense, idempotencyKey string) (*CreateExpenseResult, error)

	// GetExpense retrieves an expense with its payments, splits, and
	// adjustments. Returns models.ErrNotFound if absent or soft-deleted.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// ApplyExpenseUpdate atomically replaces the expense's mutable fields,
	// payments, and unsettled splits, appends the given adjustments to
	// settled splits, and bumps the version. expectedVersion is compared
	// against the stored version inside the transaction; on mismatch the
	// update is discarded and models.ErrConcurrentModification returned.
	// Settled split rows are never rewritten. Returns the new version.
	ApplyExpenseUpdate(ctx context.Context, expense *models.Expense, adjustments []models.Adjustment, expectedVersion int64) (int64, error)

	// ApplyExpenseDelete removes an expense. With no reversals the
	// expense and its rows are hard-deleted. With reversals (settled
	// history exists) the expense is soft-deleted and the reversal
	// adjustments are appended, all in one transaction.
	ApplyExpenseDelete(ctx context.Context, expenseID string, reversals []models.Adjustment) error

	// SettleSplits marks the given splits settled at settledAt and bumps
	// the expense version, so concurrent updates holding a pre-settle
	// snapshot fail their version check. Already-settled splits are left
	// untouched.
	SettleSplits(ctx context.Context, expenseID string, splitIDs []string, settledAt int64) error

	// ListExpenses returns all of a household's expenses including
	// soft-deleted ones, each with payments, splits, and adjustments,
	// ordered by creation time.
	ListExpenses(ctx context.Context, householdID string) ([]*models.Expense, error)

	// CreateSettlement records a payment between two members.
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error

	// ListSettlements returns a household's settlements, newest first.
	ListSettlements(ctx context.Context, householdID string) ([]*models.Settlement, error)

	// IsMember reports whether a member belongs to a household. The
	// membership roster is owned by an external service and mirrored
	// here; this check runs before every mutation.
	IsMember(ctx context.Context, householdID, memberID string) (bool, error)

	// AddMembers records household members. Used by the membership sync
	// and by tests.
	AddMembers(ctx context.Context, householdID string, memberIDs []string) error

	// Close releases any resources held by the store.
	Close() error
}
