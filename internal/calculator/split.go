// Package calculator contains the pure, I/O-free core of the expense
// engine: split calculation, split validation, balance derivation, and
// debt simplification. Nothing in this package touches storage or needs
// household context, which makes it the primary unit-test surface.
package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SplitMode selects how an expense total is divided among participants.
type SplitMode string

const (
	SplitEqual      SplitMode = "equal"
	SplitCustom     SplitMode = "custom"
	SplitPercentage SplitMode = "percentage"
)

// SplitInput is one participant's entry in a split request. Amount is
// read in custom mode, Percentage in percentage mode; equal mode uses
// only the member id. Order matters: the last participant absorbs the
// rounding remainder.
type SplitInput struct {
	MemberID   string
	Amount     decimal.Decimal
	Percentage decimal.Decimal
}

// MemberShare is one participant's computed share of an expense.
type MemberShare struct {
	MemberID string
	Amount   decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// CalculateSplits divides total among the participants according to mode.
// The returned shares are rounded to cents and sum exactly to total,
// never by further rounding: equal mode works in integer cents and
// assigns the leftover cents to the tail of the participant list, so all
// shares differ by at most one cent; percentage mode gives every
// participant but the last a rounded share and the last the exact
// remainder.
func CalculateSplits(total decimal.Decimal, mode SplitMode, inputs []SplitInput) ([]MemberShare, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("total must be positive, got %s", total)
	}

	shares := make([]MemberShare, len(inputs))
	last := len(inputs) - 1

	switch mode {
	case SplitEqual:
		n := int64(len(inputs))
		totalCents := total.Round(2).Mul(oneHundred).IntPart()
		base := totalCents / n
		extra := totalCents % n
		for i, in := range inputs {
			cents := base
			// The last `extra` participants absorb one leftover cent each.
			if int64(len(inputs)-i) <= extra {
				cents++
			}
			shares[i] = MemberShare{MemberID: in.MemberID, Amount: decimal.New(cents, -2)}
		}

	case SplitPercentage:
		assigned := decimal.Zero
		for i, in := range inputs[:last] {
			amount := total.Mul(in.Percentage).Div(oneHundred).Round(2)
			shares[i] = MemberShare{MemberID: in.MemberID, Amount: amount}
			assigned = assigned.Add(amount)
		}
		shares[last] = MemberShare{MemberID: inputs[last].MemberID, Amount: total.Sub(assigned)}

	case SplitCustom:
		for i, in := range inputs {
			shares[i] = MemberShare{MemberID: in.MemberID, Amount: in.Amount.Round(2)}
		}

	default:
		return nil, fmt.Errorf("unknown split mode %q", mode)
	}

	return shares, nil
}

// SumShares returns the total of all share amounts.
func SumShares(shares []MemberShare) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Amount)
	}
	return sum
}
