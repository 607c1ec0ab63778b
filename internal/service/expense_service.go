// Package service orchestrates the expense core: it validates requests,
// enforces household membership, and drives the persistence boundary.
// All the arithmetic lives in the calculator package; all the atomicity
// lives in the storage package.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hausmate/hausmate/internal/calculator"
	"github.com/hausmate/hausmate/internal/models"
	"github.com/hausmate/hausmate/internal/storage"
)

// ExpenseService owns every mutation of expenses: create, update,
// delete, settling shares, and recording settlements. It is an explicit,
// injected instance; construct one per store and pass it where needed.
type ExpenseService struct {
	store storage.Store
}

// NewExpenseService creates a new ExpenseService with the given storage
// backend.
func NewExpenseService(store storage.Store) *ExpenseService {
	return &ExpenseService{store: store}
}

// PaymentInput is one payer's contribution in a create or update request.
type PaymentInput struct {
	PayerID string
	Amount  decimal.Decimal
}

// CreateExpenseRequest carries everything needed to record an expense.
type CreateExpenseRequest struct {
	HouseholdID string
	ActorID     string
	Description string
	Amount      decimal.Decimal
	Date        int64
	Payments    []PaymentInput
	Mode        calculator.SplitMode
	Splits      []calculator.SplitInput

	// IdempotencyKey makes retries safe: a second create with the same
	// key returns the original expense instead of inserting a duplicate.
	IdempotencyKey string
}

// CreateExpenseResult reports the created (or replayed) expense.
type CreateExpenseResult struct {
	ExpenseID  string
	Version    int64
	Idempotent bool
	Shares     []calculator.MemberShare
}

// UpdateExpenseRequest enumerates every mutable field of an expense.
// All fields are required and validated as a whole; there is no partial
// patch. ExpectedVersion, when set, must match the stored version or the
// update fails with ErrConcurrentModification.
type UpdateExpenseRequest struct {
	ExpenseID   string
	ActorID     string
	Description string
	Amount      decimal.Decimal
	Date        int64
	Payments    []PaymentInput
	Mode        calculator.SplitMode
	Splits      []calculator.SplitInput

	ExpectedVersion *int64

	// Reason is attached to any adjustments this update creates on
	// settled splits.
	Reason string
}

// UpdateExpenseResult reports the new version and any adjustments the
// update appended to settled splits.
type UpdateExpenseResult struct {
	ExpenseID   string
	Version     int64
	Adjustments []models.Adjustment
}

// DeleteExpenseResult reports how the delete was carried out.
type DeleteExpenseResult struct {
	ExpenseID string
	// Reversed is true when settled history forced a soft delete with
	// reversal adjustments instead of a hard delete.
	Reversed bool
}

// RecordSettlementRequest records a payment between two members.
type RecordSettlementRequest struct {
	HouseholdID string
	ActorID     string
	PayerID     string
	PayeeID     string
	Amount      decimal.Decimal
	Description string
}

// requireMember rejects mutations by non-members before anything is
// validated or persisted.
func (s *ExpenseService) requireMember(ctx context.Context, householdID, memberID string) error {
	if memberID == "" {
		return &models.ValidationError{Field: "actor", Message: "must not be empty"}
	}
	ok, err := s.store.IsMember(ctx, householdID, memberID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("member %s in household %s: %w", memberID, householdID, models.ErrNotHouseholdMember)
	}
	return nil
}

// computeShares validates the request's split inputs and turns them into
// cent-exact shares.
func computeShares(total decimal.Decimal, mode calculator.SplitMode, inputs []calculator.SplitInput) ([]calculator.MemberShare, error) {
	if mode == calculator.SplitPercentage {
		if err := calculator.ValidatePercentages(inputs); err != nil {
			return nil, err
		}
	}
	shares, err := calculator.CalculateSplits(total, mode, inputs)
	if err != nil {
		return nil, &models.ValidationError{Field: "splits", Message: err.Error()}
	}
	if err := calculator.ValidateSplits(total, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

func paymentShares(payments []PaymentInput) []calculator.MemberShare {
	shares := make([]calculator.MemberShare, len(payments))
	for i, p := range payments {
		shares[i] = calculator.MemberShare{MemberID: p.PayerID, Amount: p.Amount.Round(2)}
	}
	return shares
}

// Create validates and persists a new expense. Everything is checked
// before the single atomic store call.
func (s *ExpenseService) Create(ctx context.Context, req CreateExpenseRequest) (*CreateExpenseResult, error) {
	if err := s.requireMember(ctx, req.HouseholdID, req.ActorID); err != nil {
		return nil, err
	}
	if err := calculator.ValidateExpense(req.Description, req.Amount); err != nil {
		return nil, err
	}
	payments := paymentShares(req.Payments)
	if err := calculator.ValidatePayments(req.Amount, payments); err != nil {
		return nil, err
	}
	shares, err := computeShares(req.Amount, req.Mode, req.Splits)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		HouseholdID: req.HouseholdID,
		Description: req.Description,
		Amount:      req.Amount.Round(2),
		Date:        req.Date,
		CreatedBy:   req.ActorID,
	}
	for _, p := range payments {
		expense.Payments = append(expense.Payments, models.Payment{PayerID: p.MemberID, Amount: p.Amount})
	}
	for _, share := range shares {
		expense.Splits = append(expense.Splits, models.Split{MemberID: share.MemberID, Amount: share.Amount})
	}

	result, err := s.store.CreateExpense(ctx, expense, req.IdempotencyKey)
	if err != nil {
		slog.Error("CreateExpense failed", "household_id", req.HouseholdID, "error", err)
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}

	if result.Idempotent {
		slog.Info("CreateExpense replayed idempotently",
			"expense_id", result.ExpenseID, "idempotency_key", req.IdempotencyKey)
	} else {
		slog.Info("Expense created",
			"expense_id", result.ExpenseID, "household_id", req.HouseholdID, "amount", req.Amount)
	}

	return &CreateExpenseResult{
		ExpenseID:  result.ExpenseID,
		Version:    result.Version,
		Idempotent: result.Idempotent,
		Shares:     shares,
	}, nil
}

// Update applies a full replacement of an expense's mutable fields.
//
// Unsettled splits are replaced outright. Settled splits are never
// rewritten: the difference between the new share and the split's
// current effective amount becomes an appended Adjustment carrying the
// actor and reason. A settled split whose member disappears from the new
// split set is adjusted down to zero.
func (s *ExpenseService) Update(ctx context.Context, req UpdateExpenseRequest) (*UpdateExpenseResult, error) {
	existing, err := s.store.GetExpense(ctx, req.ExpenseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, existing.HouseholdID, req.ActorID); err != nil {
		return nil, err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != existing.Version {
		return nil, &models.ConcurrentModificationError{
			ExpenseID:       existing.ID,
			ExpectedVersion: *req.ExpectedVersion,
			ActualVersion:   existing.Version,
		}
	}

	if err := calculator.ValidateExpense(req.Description, req.Amount); err != nil {
		return nil, err
	}
	payments := paymentShares(req.Payments)
	if err := calculator.ValidatePayments(req.Amount, payments); err != nil {
		return nil, err
	}
	shares, err := computeShares(req.Amount, req.Mode, req.Splits)
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "expense updated"
	}
	splits, adjustments := planSplitChanges(existing.Splits, shares, req.ActorID, reason, time.Now().Unix())

	updated := &models.Expense{
		ID:          existing.ID,
		HouseholdID: existing.HouseholdID,
		Description: req.Description,
		Amount:      req.Amount.Round(2),
		Date:        req.Date,
		Splits:      splits,
	}
	for _, p := range payments {
		updated.Payments = append(updated.Payments, models.Payment{PayerID: p.MemberID, Amount: p.Amount})
	}

	newVersion, err := s.store.ApplyExpenseUpdate(ctx, updated, adjustments, existing.Version)
	if err != nil {
		if !models.IsClientError(err) {
			slog.Error("UpdateExpense failed", "expense_id", req.ExpenseID, "error", err)
		}
		return nil, err
	}

	slog.Info("Expense updated",
		"expense_id", existing.ID, "version", newVersion, "adjustments", len(adjustments))
	return &UpdateExpenseResult{
		ExpenseID:   existing.ID,
		Version:     newVersion,
		Adjustments: adjustments,
	}, nil
}

// planSplitChanges merges the new shares into the existing splits.
// It returns the splits to store (immutable settled rows plus fresh
// unsettled rows) and the adjustments to append.
func planSplitChanges(existing []models.Split, shares []calculator.MemberShare, actorID, reason string, now int64) ([]models.Split, []models.Adjustment) {
	settledByMember := make(map[string]*models.Split, len(existing))
	for i := range existing {
		if existing[i].Settled {
			settledByMember[existing[i].MemberID] = &existing[i]
		}
	}

	var splits []models.Split
	var adjustments []models.Adjustment
	covered := make(map[string]bool, len(shares))

	for _, share := range shares {
		settled, ok := settledByMember[share.MemberID]
		if !ok {
			splits = append(splits, models.Split{MemberID: share.MemberID, Amount: share.Amount})
			continue
		}
		covered[share.MemberID] = true
		splits = append(splits, *settled)

		delta := share.Amount.Sub(settled.EffectiveAmount())
		if !delta.IsZero() {
			adjustments = append(adjustments, models.Adjustment{
				SplitID:   settled.ID,
				Delta:     delta,
				Reason:    reason,
				CreatedBy: actorID,
				CreatedAt: now,
			})
		}
	}

	// Settled splits dropped from the new split set are adjusted to zero,
	// not deleted: their settlement already happened.
	for _, split := range existing {
		if !split.Settled || covered[split.MemberID] {
			continue
		}
		splits = append(splits, split)
		if delta := split.EffectiveAmount().Neg(); !delta.IsZero() {
			adjustments = append(adjustments, models.Adjustment{
				SplitID:   split.ID,
				Delta:     delta,
				Reason:    reason,
				CreatedBy: actorID,
				CreatedAt: now,
			})
		}
	}

	return splits, adjustments
}

// Delete removes an expense. With no settled splits this is a hard
// delete. Any settled history instead forces a soft delete with reversal
// adjustments that zero each settled split's effective amount, so the
// balances implied by past settlements survive.
func (s *ExpenseService) Delete(ctx context.Context, expenseID, actorID string) (*DeleteExpenseResult, error) {
	existing, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, existing.HouseholdID, actorID); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	var reversals []models.Adjustment
	for _, split := range existing.Splits {
		if !split.Settled {
			continue
		}
		if delta := split.EffectiveAmount().Neg(); !delta.IsZero() {
			reversals = append(reversals, models.Adjustment{
				SplitID:   split.ID,
				Delta:     delta,
				Reason:    "expense deleted",
				CreatedBy: actorID,
				CreatedAt: now,
			})
		}
	}

	if err := s.store.ApplyExpenseDelete(ctx, expenseID, reversals); err != nil {
		slog.Error("DeleteExpense failed", "expense_id", expenseID, "error", err)
		return nil, err
	}

	slog.Info("Expense deleted", "expense_id", expenseID, "reversed", len(reversals) > 0)
	return &DeleteExpenseResult{ExpenseID: expenseID, Reversed: len(reversals) > 0}, nil
}

// SettleShares marks the given members' splits on an expense as settled,
// recording that they paid their share to the expense's payers outside
// the ledger. Members without an unsettled split on the expense are
// rejected.
func (s *ExpenseService) SettleShares(ctx context.Context, expenseID, actorID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return &models.ValidationError{Field: "members", Message: "must name at least one member"}
	}

	existing, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if err := s.requireMember(ctx, existing.HouseholdID, actorID); err != nil {
		return err
	}

	unsettled := make(map[string]string, len(existing.Splits))
	for _, split := range existing.Splits {
		if !split.Settled {
			unsettled[split.MemberID] = split.ID
		}
	}

	splitIDs := make([]string, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		splitID, ok := unsettled[memberID]
		if !ok {
			return &models.ValidationError{
				Field:   "members",
				Message: fmt.Sprintf("member %q has no unsettled split on this expense", memberID),
			}
		}
		splitIDs = append(splitIDs, splitID)
	}

	if err := s.store.SettleSplits(ctx, expenseID, splitIDs, time.Now().Unix()); err != nil {
		slog.Error("SettleShares failed", "expense_id", expenseID, "error", err)
		return err
	}
	slog.Info("Shares settled", "expense_id", expenseID, "members", memberIDs)
	return nil
}

// RecordSettlement records a direct payment between two members.
func (s *ExpenseService) RecordSettlement(ctx context.Context, req RecordSettlementRequest) (*models.Settlement, error) {
	if err := s.requireMember(ctx, req.HouseholdID, req.ActorID); err != nil {
		return nil, err
	}
	if req.PayerID == req.PayeeID {
		return nil, &models.ValidationError{Field: "payee", Message: "payer and payee must differ"}
	}
	for field, memberID := range map[string]string{"payer": req.PayerID, "payee": req.PayeeID} {
		ok, err := s.store.IsMember(ctx, req.HouseholdID, memberID)
		if err != nil {
			return nil, fmt.Errorf("failed to check membership: %w", err)
		}
		if !ok {
			return nil, &models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%q is not a household member", memberID),
			}
		}
	}
	if !req.Amount.IsPositive() || req.Amount.GreaterThan(models.MaxAmount) {
		return nil, &models.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("must be positive and at most %s, got %s", models.MaxAmount, req.Amount),
		}
	}
	if len(req.Description) > models.MaxDescriptionLength {
		return nil, &models.ValidationError{Field: "description", Message: "too long"}
	}

	settlement := &models.Settlement{
		HouseholdID: req.HouseholdID,
		PayerID:     req.PayerID,
		PayeeID:     req.PayeeID,
		Amount:      req.Amount.Round(2),
		Description: req.Description,
		CreatedBy:   req.ActorID,
	}
	if err := s.store.CreateSettlement(ctx, settlement); err != nil {
		slog.Error("RecordSettlement failed", "household_id", req.HouseholdID, "error", err)
		return nil, fmt.Errorf("failed to record settlement: %w", err)
	}

	slog.Info("Settlement recorded",
		"settlement_id", settlement.ID, "payer", req.PayerID, "payee", req.PayeeID, "amount", settlement.Amount)
	return settlement, nil
}
