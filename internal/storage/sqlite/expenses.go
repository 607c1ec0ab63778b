package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hausmate/hausmate/internal/models"
	"github.com/hausmate/hausmate/internal/storage"
)

// CreateExpense persists a new expense with its payments and splits in
// one transaction. Idempotency is enforced by the unique index on
// (household_id, idempotency_key): a duplicate insert fails atomically
// and the original expense id is returned instead. There is no
// read-then-write window for two retries to race through.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense, idempotencyKey string) (*storage.CreateExpenseResult, error) {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}

	var key interface{}
	if idempotencyKey != "" {
		key = idempotencyKey
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, household_id, description, amount, date, version, created_at, created_by, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		expense.ID, expense.HouseholdID, expense.Description, expense.Amount.String(),
		expense.Date, expense.CreatedAt, expense.CreatedBy, key,
	)
	if err != nil {
		if idempotencyKey != "" && strings.Contains(err.Error(), "UNIQUE constraint failed") {
			// Release the transaction's connection before the replay lookup;
			// the pool may be pinned to a single connection.
			tx.Rollback()
			return s.existingExpenseForKey(ctx, expense.HouseholdID, idempotencyKey)
		}
		return nil, fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertPayments(ctx, tx, expense.ID, expense.Payments); err != nil {
		return nil, err
	}
	if err := insertSplits(ctx, tx, expense.ID, expense.Splits); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	expense.Version = 1
	return &storage.CreateExpenseResult{ExpenseID: expense.ID, Version: 1}, nil
}

// existingExpenseForKey resolves an idempotent replay to the expense
// originally created with the key, at its current version.
func (s *SQLiteStore) existingExpenseForKey(ctx context.Context, householdID, idempotencyKey string) (*storage.CreateExpenseResult, error) {
	var id string
	var version int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, version FROM expenses WHERE household_id = ? AND idempotency_key = ?",
		householdID, idempotencyKey,
	).Scan(&id, &version)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve idempotency key: %w", err)
	}
	return &storage.CreateExpenseResult{ExpenseID: id, Version: version, Idempotent: true}, nil
}

// GetExpense retrieves a live expense with its payments, splits, and
// adjustments.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := s.scanExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.Deleted {
		return nil, fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	return expense, nil
}

func (s *SQLiteStore) scanExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense := &models.Expense{}
	var amount string
	var deleted int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, household_id, description, amount, date, version, deleted, deleted_at, created_at, created_by
		 FROM expenses WHERE id = ?`,
		expenseID,
	).Scan(&expense.ID, &expense.HouseholdID, &expense.Description, &amount, &expense.Date,
		&expense.Version, &deleted, &expense.DeletedAt, &expense.CreatedAt, &expense.CreatedBy)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	expense.Deleted = deleted != 0
	if expense.Amount, err = scanAmount(amount); err != nil {
		return nil, err
	}

	if expense.Payments, err = s.loadPayments(ctx, expense.ID); err != nil {
		return nil, err
	}
	if expense.Splits, err = s.loadSplits(ctx, expense.ID); err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns every expense of a household, soft-deleted ones
// included, in creation order.
func (s *SQLiteStore) ListExpenses(ctx context.Context, householdID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM expenses WHERE household_id = ? ORDER BY created_at, id",
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expense id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	expenses := make([]*models.Expense, 0, len(ids))
	for _, id := range ids {
		expense, err := s.scanExpense(ctx, id)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	return expenses, nil
}

// ApplyExpenseUpdate rewrites the expense's mutable state and appends
// adjustments in one transaction. The version check is a compare-and-set
// in the UPDATE itself, so a concurrent writer cannot slip between check
// and write.
func (s *SQLiteStore) ApplyExpenseUpdate(ctx context.Context, expense *models.Expense, adjustments []models.Adjustment, expectedVersion int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET description = ?, amount = ?, date = ?, version = version + 1
		 WHERE id = ? AND version = ? AND deleted = 0`,
		expense.Description, expense.Amount.String(), expense.Date,
		expense.ID, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// Release the transaction's connection before the conflict lookup;
		// the pool may be pinned to a single connection.
		tx.Rollback()
		return 0, s.versionConflict(ctx, expense.ID, expectedVersion)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM payments WHERE expense_id = ?", expense.ID); err != nil {
		return 0, fmt.Errorf("failed to clear payments: %w", err)
	}
	if err := insertPayments(ctx, tx, expense.ID, expense.Payments); err != nil {
		return 0, err
	}

	// Unsettled splits are simply replaced; settled rows are immutable
	// and only ever gain adjustments.
	if _, err := tx.ExecContext(ctx, "DELETE FROM splits WHERE expense_id = ? AND settled = 0", expense.ID); err != nil {
		return 0, fmt.Errorf("failed to clear unsettled splits: %w", err)
	}
	var unsettled []models.Split
	for _, split := range expense.Splits {
		if !split.Settled {
			unsettled = append(unsettled, split)
		}
	}
	if err := insertSplits(ctx, tx, expense.ID, unsettled); err != nil {
		return 0, err
	}

	if err := insertAdjustments(ctx, tx, adjustments); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return expectedVersion + 1, nil
}

// versionConflict distinguishes a missing expense from a lost race.
func (s *SQLiteStore) versionConflict(ctx context.Context, expenseID string, expectedVersion int64) error {
	var actual int64
	err := s.db.QueryRowContext(ctx,
		"SELECT version FROM expenses WHERE id = ? AND deleted = 0", expenseID,
	).Scan(&actual)
	if err == sql.ErrNoRows {
		return fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read expense version: %w", err)
	}
	return &models.ConcurrentModificationError{
		ExpenseID:       expenseID,
		ExpectedVersion: expectedVersion,
		ActualVersion:   actual,
	}
}

// ApplyExpenseDelete removes an expense. A hard delete cascades to all
// rows; a soft delete (settled history present) keeps every row and
// appends the reversal adjustments.
func (s *SQLiteStore) ApplyExpenseDelete(ctx context.Context, expenseID string, reversals []models.Adjustment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(reversals) == 0 {
		res, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
		if err != nil {
			return fmt.Errorf("failed to delete expense: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			"UPDATE expenses SET deleted = 1, deleted_at = ? WHERE id = ? AND deleted = 0",
			time.Now().Unix(), expenseID,
		)
		if err != nil {
			return fmt.Errorf("failed to soft-delete expense: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
		}
		if err := insertAdjustments(ctx, tx, reversals); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SettleSplits marks the given splits settled and bumps the expense
// version in the same transaction. The bump is what makes settling
// visible to the update CAS: an updater whose snapshot predates the
// settle fails its version check instead of re-inserting an unsettled
// split for a member who already paid.
func (s *SQLiteStore) SettleSplits(ctx context.Context, expenseID string, splitIDs []string, settledAt int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, splitID := range splitIDs {
		_, err := tx.ExecContext(ctx,
			"UPDATE splits SET settled = 1, settled_at = ? WHERE id = ? AND expense_id = ? AND settled = 0",
			settledAt, splitID, expenseID,
		)
		if err != nil {
			return fmt.Errorf("failed to settle split: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE expenses SET version = version + 1 WHERE id = ? AND deleted = 0", expenseID,
	)
	if err != nil {
		return fmt.Errorf("failed to bump expense version: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertPayments(ctx context.Context, tx *sql.Tx, expenseID string, payments []models.Payment) error {
	for i := range payments {
		p := &payments[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.ExpenseID = expenseID
		_, err := tx.ExecContext(ctx,
			"INSERT INTO payments (id, expense_id, payer_id, amount) VALUES (?, ?, ?, ?)",
			p.ID, expenseID, p.PayerID, p.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
	}
	return nil
}

func insertSplits(ctx context.Context, tx *sql.Tx, expenseID string, splits []models.Split) error {
	for i := range splits {
		split := &splits[i]
		if split.ID == "" {
			split.ID = uuid.New().String()
		}
		split.ExpenseID = expenseID
		settled := 0
		if split.Settled {
			settled = 1
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO splits (id, expense_id, member_id, amount, settled, settled_at) VALUES (?, ?, ?, ?, ?, ?)",
			split.ID, expenseID, split.MemberID, split.Amount.String(), settled, split.SettledAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}
	return nil
}

func insertAdjustments(ctx context.Context, tx *sql.Tx, adjustments []models.Adjustment) error {
	for i := range adjustments {
		adj := &adjustments[i]
		if adj.ID == "" {
			adj.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO adjustments (id, split_id, delta, reason, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			adj.ID, adj.SplitID, adj.Delta.String(), adj.Reason, adj.CreatedBy, adj.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert adjustment: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadPayments(ctx context.Context, expenseID string) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payer_id, amount FROM payments WHERE expense_id = ? ORDER BY id",
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p := models.Payment{ExpenseID: expenseID}
		var amount string
		if err := rows.Scan(&p.ID, &p.PayerID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if p.Amount, err = scanAmount(amount); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

func (s *SQLiteStore) loadSplits(ctx context.Context, expenseID string) ([]models.Split, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, member_id, amount, settled, settled_at FROM splits WHERE expense_id = ? ORDER BY id",
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get splits: %w", err)
	}
	defer rows.Close()

	var splits []models.Split
	for rows.Next() {
		split := models.Split{ExpenseID: expenseID}
		var amount string
		var settled int
		if err := rows.Scan(&split.ID, &split.MemberID, &amount, &settled, &split.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		split.Settled = settled != 0
		if split.Amount, err = scanAmount(amount); err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", err)
	}

	for i := range splits {
		if !splits[i].Settled {
			continue
		}
		adjustments, err := s.loadAdjustments(ctx, splits[i].ID)
		if err != nil {
			return nil, err
		}
		splits[i].Adjustments = adjustments
	}
	return splits, nil
}

func (s *SQLiteStore) loadAdjustments(ctx context.Context, splitID string) ([]models.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, delta, reason, created_by, created_at FROM adjustments WHERE split_id = ? ORDER BY created_at, id",
		splitID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []models.Adjustment
	for rows.Next() {
		adj := models.Adjustment{SplitID: splitID}
		var delta string
		if err := rows.Scan(&adj.ID, &delta, &adj.Reason, &adj.CreatedBy, &adj.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		if adj.Delta, err = scanAmount(delta); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate adjustments: %w", err)
	}
	return adjustments, nil
}
