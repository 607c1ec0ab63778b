package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hausmate/hausmate/internal/models"
)

var centTolerance = decimal.RequireFromString("0.01")

// tolerance grows with participant count to absorb one cent of rounding
// per member.
func tolerance(n int) decimal.Decimal {
	return centTolerance.Mul(decimal.NewFromInt(int64(n)))
}

// ValidateExpense checks the structural fields shared by every expense
// mutation: description presence and length, and total range.
func ValidateExpense(description string, total decimal.Decimal) error {
	if description == "" {
		return &models.ValidationError{Field: "description", Message: "must not be empty"}
	}
	if len(description) > models.MaxDescriptionLength {
		return &models.ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("must be at most %d characters, got %d", models.MaxDescriptionLength, len(description)),
		}
	}
	if !total.IsPositive() {
		return &models.ValidationError{Field: "amount", Message: fmt.Sprintf("must be positive, got %s", total)}
	}
	if total.GreaterThan(models.MaxAmount) {
		return &models.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("must be at most %s, got %s", models.MaxAmount, total),
		}
	}
	return nil
}

// ValidateSplits checks a computed or caller-supplied split set against
// the expense total: participant count, member id shape and uniqueness,
// per-split range, and the sum-vs-total tolerance of 0.01 per split.
func ValidateSplits(total decimal.Decimal, shares []MemberShare) error {
	if len(shares) == 0 {
		return &models.ValidationError{Field: "splits", Message: "must have at least one participant"}
	}
	if len(shares) > models.MaxParticipants {
		return &models.ValidationError{
			Field:   "splits",
			Message: fmt.Sprintf("must have at most %d participants, got %d", models.MaxParticipants, len(shares)),
		}
	}

	seen := make(map[string]bool, len(shares))
	for _, share := range shares {
		if share.MemberID == "" {
			return &models.ValidationError{Field: "splits", Message: "member id must not be empty"}
		}
		if len(share.MemberID) > models.MaxMemberIDLength {
			return &models.ValidationError{
				Field:   "splits",
				Message: fmt.Sprintf("member id must be at most %d characters", models.MaxMemberIDLength),
			}
		}
		if seen[share.MemberID] {
			return &models.ValidationError{
				Field:   "splits",
				Message: fmt.Sprintf("duplicate member %q", share.MemberID),
			}
		}
		seen[share.MemberID] = true

		if share.Amount.IsNegative() {
			return &models.ValidationError{
				Field:   "splits",
				Message: fmt.Sprintf("split for %q must not be negative, got %s", share.MemberID, share.Amount),
			}
		}
		if share.Amount.GreaterThan(models.MaxAmount) {
			return &models.ValidationError{
				Field:   "splits",
				Message: fmt.Sprintf("split for %q must be at most %s, got %s", share.MemberID, models.MaxAmount, share.Amount),
			}
		}
	}

	sum := SumShares(shares)
	tol := tolerance(len(shares))
	if sum.Sub(total).Abs().GreaterThan(tol) {
		return &models.InvalidSplitTotalError{Expected: total, Actual: sum, Tolerance: tol}
	}
	return nil
}

// ValidatePercentages checks percentage-mode inputs: each percentage in
// [0, 100] and the sum within 0.01 per participant of 100.
func ValidatePercentages(inputs []SplitInput) error {
	sum := decimal.Zero
	for _, in := range inputs {
		if in.Percentage.IsNegative() || in.Percentage.GreaterThan(oneHundred) {
			return &models.ValidationError{
				Field:   "splits",
				Message: fmt.Sprintf("percentage for %q must be between 0 and 100, got %s", in.MemberID, in.Percentage),
			}
		}
		sum = sum.Add(in.Percentage)
	}
	tol := tolerance(len(inputs))
	if sum.Sub(oneHundred).Abs().GreaterThan(tol) {
		return &models.ValidationError{
			Field:   "splits",
			Message: fmt.Sprintf("percentages sum to %s, expected 100 (tolerance %s)", sum, tol),
		}
	}
	return nil
}

// ValidatePayments checks that payments are present, well-formed, and sum
// to the expense total within one cent per payer.
func ValidatePayments(total decimal.Decimal, payments []MemberShare) error {
	if len(payments) == 0 {
		return &models.ValidationError{Field: "payments", Message: "must have at least one payer"}
	}

	seen := make(map[string]bool, len(payments))
	sum := decimal.Zero
	for _, p := range payments {
		if p.MemberID == "" {
			return &models.ValidationError{Field: "payments", Message: "payer id must not be empty"}
		}
		if seen[p.MemberID] {
			return &models.ValidationError{
				Field:   "payments",
				Message: fmt.Sprintf("duplicate payer %q", p.MemberID),
			}
		}
		seen[p.MemberID] = true

		if !p.Amount.IsPositive() {
			return &models.ValidationError{
				Field:   "payments",
				Message: fmt.Sprintf("payment by %q must be positive, got %s", p.MemberID, p.Amount),
			}
		}
		if p.Amount.GreaterThan(models.MaxAmount) {
			return &models.ValidationError{
				Field:   "payments",
				Message: fmt.Sprintf("payment by %q must be at most %s", p.MemberID, models.MaxAmount),
			}
		}
		sum = sum.Add(p.Amount)
	}

	tol := tolerance(len(payments))
	if sum.Sub(total).Abs().GreaterThan(tol) {
		return &models.ValidationError{
			Field:   "payments",
			Message: fmt.Sprintf("payments sum to %s, expected %s (tolerance %s)", sum, total, tol),
		}
	}
	return nil
}
