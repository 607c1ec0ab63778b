package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hausmate/hausmate/internal/models"
)

// CreateSettlement persists a new settlement to the database.
func (s *SQLiteStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = time.Now().Unix()
	}

	var description interface{}
	if settlement.Description != "" {
		description = settlement.Description
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (id, household_id, payer_id, payee_id, amount, description, created_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		settlement.ID, settlement.HouseholdID, settlement.PayerID, settlement.PayeeID,
		settlement.Amount.String(), description, settlement.CreatedAt, settlement.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// ListSettlements retrieves all settlements for a household, newest first.
func (s *SQLiteStore) ListSettlements(ctx context.Context, householdID string) ([]*models.Settlement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, household_id, payer_id, payee_id, amount, description, created_at, created_by
		 FROM settlements WHERE household_id = ? ORDER BY created_at DESC, id`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		settlement := &models.Settlement{}
		var amount string
		var description sql.NullString

		if err := rows.Scan(&settlement.ID, &settlement.HouseholdID, &settlement.PayerID, &settlement.PayeeID,
			&amount, &description, &settlement.CreatedAt, &settlement.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		if settlement.Amount, err = scanAmount(amount); err != nil {
			return nil, err
		}
		if description.Valid {
			settlement.Description = description.String
		}
		settlements = append(settlements, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}
