package calculator

import "github.com/shopspring/decimal"

// ExpenseFact carries the minimal expense information needed for balance
// derivation. Facts are snapshots of persisted state; the engine never
// maintains a separately mutated running total.
type ExpenseFact struct {
	Deleted  bool
	Payments []PaymentFact
	Splits   []SplitFact
}

// PaymentFact is one payer's contribution to an expense.
type PaymentFact struct {
	PayerID string
	Amount  decimal.Decimal
}

// SplitFact is one member's share of an expense, with the append-only
// adjustment deltas layered on it after settlement.
type SplitFact struct {
	MemberID    string
	Amount      decimal.Decimal
	Settled     bool
	Adjustments []decimal.Decimal
}

// SettlementFact is a recorded payment between two members.
type SettlementFact struct {
	PayerID string
	PayeeID string
	Amount  decimal.Decimal
}

// MemberBalance is one member's derived net balance.
// Positive = owed to them, negative = they owe.
type MemberBalance struct {
	MemberID string
	Balance  decimal.Decimal
}

// balanceSheet accumulates per-member amounts in deterministic
// first-seen order.
type balanceSheet struct {
	balances map[string]decimal.Decimal
	order    []string
}

func newBalanceSheet() *balanceSheet {
	return &balanceSheet{balances: make(map[string]decimal.Decimal)}
}

func (b *balanceSheet) add(memberID string, amount decimal.Decimal) {
	if _, ok := b.balances[memberID]; !ok {
		b.order = append(b.order, memberID)
	}
	b.balances[memberID] = b.balances[memberID].Add(amount)
}

func (b *balanceSheet) result() []MemberBalance {
	out := make([]MemberBalance, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, MemberBalance{MemberID: id, Balance: b.balances[id].Round(2)})
	}
	return out
}

// CalculateBalances derives every member's signed net balance from the
// recorded facts. Per member it accumulates:
//
//   - payments they made on live expenses: credit
//   - their unsettled splits on live expenses: debit
//   - adjustments on their settled splits: debit (the base amount of a
//     settled split was already paid out-of-band when it was settled;
//     only the post-settlement residual is still owed)
//   - the settled base amounts of expenses they paid, apportioned across
//     payers: debit (the paid-out-of-band counterpart of the above)
//   - settlements: payer credit, payee debit
//
// Soft-deleted expenses keep only their settled-history terms: the payer
// netting and the adjustment stream, which the delete extended with
// reversals. The sum of all balances in a household is exactly zero.
func CalculateBalances(expenses []ExpenseFact, settlements []SettlementFact) []MemberBalance {
	sheet := newBalanceSheet()

	for _, exp := range expenses {
		settledBase := decimal.Zero

		for _, split := range exp.Splits {
			if split.Settled {
				settledBase = settledBase.Add(split.Amount)
				for _, delta := range split.Adjustments {
					sheet.add(split.MemberID, delta.Neg())
				}
				continue
			}
			if !exp.Deleted {
				sheet.add(split.MemberID, split.Amount.Neg())
			}
		}

		if !exp.Deleted {
			for _, p := range exp.Payments {
				sheet.add(p.PayerID, p.Amount)
			}
		}

		if settledBase.IsPositive() {
			for _, share := range apportion(settledBase, exp.Payments) {
				sheet.add(share.MemberID, share.Amount.Neg())
			}
		}
	}

	for _, s := range settlements {
		sheet.add(s.PayerID, s.Amount)
		sheet.add(s.PayeeID, s.Amount.Neg())
	}

	return sheet.result()
}

// apportion divides amount across payers proportionally to their payment
// shares, rounding each portion to cents and giving the last payer the
// exact remainder so the portions sum to amount.
func apportion(amount decimal.Decimal, payments []PaymentFact) []MemberShare {
	if len(payments) == 0 {
		return nil
	}

	totalPaid := decimal.Zero
	for _, p := range payments {
		totalPaid = totalPaid.Add(p.Amount)
	}
	if !totalPaid.IsPositive() {
		return nil
	}

	shares := make([]MemberShare, len(payments))
	last := len(payments) - 1
	assigned := decimal.Zero
	for i, p := range payments[:last] {
		portion := amount.Mul(p.Amount).Div(totalPaid).Round(2)
		shares[i] = MemberShare{MemberID: p.PayerID, Amount: portion}
		assigned = assigned.Add(portion)
	}
	shares[last] = MemberShare{MemberID: payments[last].PayerID, Amount: amount.Sub(assigned)}
	return shares
}
