package api

import (
	"github.com/shopspring/decimal"

	"github.com/hausmate/hausmate/internal/calculator"
	"github.com/hausmate/hausmate/internal/models"
	"github.com/hausmate/hausmate/internal/service"
)

// Request bodies. Amounts travel as JSON strings so no float ever
// touches a money value.

type paymentDTO struct {
	PayerID string          `json:"payer_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type splitInputDTO struct {
	MemberID   string          `json:"member_id"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	Percentage decimal.Decimal `json:"percentage,omitempty"`
}

type createExpenseDTO struct {
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Date           int64           `json:"date"`
	Payments       []paymentDTO    `json:"payments"`
	SplitMode      string          `json:"split_mode"`
	Splits         []splitInputDTO `json:"splits"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type updateExpenseDTO struct {
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Date            int64           `json:"date"`
	Payments        []paymentDTO    `json:"payments"`
	SplitMode       string          `json:"split_mode"`
	Splits          []splitInputDTO `json:"splits"`
	ExpectedVersion *int64          `json:"expected_version,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

type settleSharesDTO struct {
	MemberIDs []string `json:"member_ids"`
}

type recordSettlementDTO struct {
	PayerID     string          `json:"payer_id"`
	PayeeID     string          `json:"payee_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// Response bodies.

type createExpenseResponse struct {
	ExpenseID  string     `json:"expense_id"`
	Version    int64      `json:"version"`
	Idempotent bool       `json:"idempotent"`
	Shares     []shareDTO `json:"shares"`
}

type shareDTO struct {
	MemberID string `json:"member_id"`
	Amount   string `json:"amount"`
}

type updateExpenseResponse struct {
	ExpenseID   string          `json:"expense_id"`
	Version     int64           `json:"version"`
	Adjustments []adjustmentDTO `json:"adjustments"`
}

type adjustmentDTO struct {
	SplitID   string `json:"split_id"`
	Delta     string `json:"delta"`
	Reason    string `json:"reason"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}

type deleteExpenseResponse struct {
	ExpenseID string `json:"expense_id"`
	Reversed  bool   `json:"reversed"`
}

type balanceDTO struct {
	MemberID string `json:"member_id"`
	Balance  string `json:"balance"`
}

type transferDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type expenseDTO struct {
	ID          string     `json:"id"`
	HouseholdID string     `json:"household_id"`
	Description string     `json:"description"`
	Amount      string     `json:"amount"`
	Date        int64      `json:"date"`
	Version     int64      `json:"version"`
	CreatedAt   int64      `json:"created_at"`
	CreatedBy   string     `json:"created_by"`
	Payments    []shareDTO `json:"payments"`
	Splits      []splitDTO `json:"splits"`
}

type splitDTO struct {
	ID              string          `json:"id"`
	MemberID        string          `json:"member_id"`
	Amount          string          `json:"amount"`
	EffectiveAmount string          `json:"effective_amount"`
	Settled         bool            `json:"settled"`
	SettledAt       int64           `json:"settled_at,omitempty"`
	Adjustments     []adjustmentDTO `json:"adjustments,omitempty"`
}

type settlementDTO struct {
	ID          string `json:"id"`
	HouseholdID string `json:"household_id"`
	PayerID     string `json:"payer_id"`
	PayeeID     string `json:"payee_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	CreatedBy   string `json:"created_by"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func parseSplitMode(raw string) (calculator.SplitMode, error) {
	switch raw {
	case "equal", "":
		return calculator.SplitEqual, nil
	case "custom":
		return calculator.SplitCustom, nil
	case "percentage":
		return calculator.SplitPercentage, nil
	default:
		return "", &models.ValidationError{Field: "split_mode", Message: "must be equal, custom, or percentage"}
	}
}

func toSplitInputs(dtos []splitInputDTO) []calculator.SplitInput {
	inputs := make([]calculator.SplitInput, len(dtos))
	for i, d := range dtos {
		inputs[i] = calculator.SplitInput{MemberID: d.MemberID, Amount: d.Amount, Percentage: d.Percentage}
	}
	return inputs
}

func toPaymentInputs(dtos []paymentDTO) []service.PaymentInput {
	inputs := make([]service.PaymentInput, len(dtos))
	for i, d := range dtos {
		inputs[i] = service.PaymentInput{PayerID: d.PayerID, Amount: d.Amount}
	}
	return inputs
}

func toShareDTOs(shares []calculator.MemberShare) []shareDTO {
	out := make([]shareDTO, len(shares))
	for i, s := range shares {
		out[i] = shareDTO{MemberID: s.MemberID, Amount: s.Amount.StringFixed(2)}
	}
	return out
}

func toAdjustmentDTOs(adjustments []models.Adjustment) []adjustmentDTO {
	out := make([]adjustmentDTO, len(adjustments))
	for i, a := range adjustments {
		out[i] = adjustmentDTO{
			SplitID:   a.SplitID,
			Delta:     a.Delta.StringFixed(2),
			Reason:    a.Reason,
			CreatedBy: a.CreatedBy,
			CreatedAt: a.CreatedAt,
		}
	}
	return out
}

func toExpenseDTO(exp *models.Expense) expenseDTO {
	dto := expenseDTO{
		ID:          exp.ID,
		HouseholdID: exp.HouseholdID,
		Description: exp.Description,
		Amount:      exp.Amount.StringFixed(2),
		Date:        exp.Date,
		Version:     exp.Version,
		CreatedAt:   exp.CreatedAt,
		CreatedBy:   exp.CreatedBy,
	}
	for _, p := range exp.Payments {
		dto.Payments = append(dto.Payments, shareDTO{MemberID: p.PayerID, Amount: p.Amount.StringFixed(2)})
	}
	for _, split := range exp.Splits {
		dto.Splits = append(dto.Splits, splitDTO{
			ID:              split.ID,
			MemberID:        split.MemberID,
			Amount:          split.Amount.StringFixed(2),
			EffectiveAmount: split.EffectiveAmount().StringFixed(2),
			Settled:         split.Settled,
			SettledAt:       split.SettledAt,
			Adjustments:     toAdjustmentDTOs(split.Adjustments),
		})
	}
	return dto
}

func toSettlementDTO(s *models.Settlement) settlementDTO {
	return settlementDTO{
		ID:          s.ID,
		HouseholdID: s.HouseholdID,
		PayerID:     s.PayerID,
		PayeeID:     s.PayeeID,
		Amount:      s.Amount.StringFixed(2),
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		CreatedBy:   s.CreatedBy,
	}
}
