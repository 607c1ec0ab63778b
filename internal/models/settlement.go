package models

import "github.com/shopspring/decimal"

// Settlement represents a payment between two household members to clear
// outstanding balances. Settlements are standalone facts: they credit the
// payer and debit the payee, independent of any particular expense.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// HouseholdID is the household this settlement belongs to.
	HouseholdID string

	// PayerID is the member who paid (debtor settling up).
	PayerID string

	// PayeeID is the member who received payment (creditor being paid).
	PayeeID string

	// Amount is the payment amount.
	Amount decimal.Decimal

	// Description is an optional note for the settlement.
	Description string

	// CreatedAt is the Unix timestamp when the settlement was recorded.
	CreatedAt int64

	// CreatedBy is the member who recorded this settlement.
	CreatedBy string
}
