package calculator

import (
	"math/bits"
	"sort"

	"github.com/shopspring/decimal"
)

// Transfer is one suggested payment: From pays To the given amount.
type Transfer struct {
	FromMemberID string
	ToMemberID   string
	Amount       decimal.Decimal
}

// SettlementStrategy turns a set of balances summing to ~0 into transfers
// that zero them out. Strategies differ only in how few transfers they
// produce; applying the result always settles every balance.
type SettlementStrategy interface {
	Name() string
	Plan(balances []MemberBalance) []Transfer
}

// SuggestSettlements proposes transfers that zero out the balances using
// the default greedy strategy. Greedy is provably minimal for up to six
// participants and a good approximation beyond; use ExactStrategy when
// the true minimum matters for small groups.
func SuggestSettlements(balances []MemberBalance) []Transfer {
	return GreedyStrategy{}.Plan(balances)
}

// GreedyStrategy repeatedly matches the largest debtor with the largest
// creditor, retiring whichever side is smaller. O(n log n), at most n-1
// transfers. Ties are processed in original balance-list order.
type GreedyStrategy struct{}

func (GreedyStrategy) Name() string { return "greedy" }

func (GreedyStrategy) Plan(balances []MemberBalance) []Transfer {
	var debtors, creditors []MemberBalance
	for _, b := range balances {
		switch {
		case b.Balance.LessThan(centTolerance.Neg()):
			debtors = append(debtors, b)
		case b.Balance.GreaterThan(centTolerance):
			creditors = append(creditors, b)
		}
	}

	// Stable sorts keep original order for equal magnitudes.
	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].Balance.LessThan(debtors[j].Balance)
	})
	sort.SliceStable(creditors, func(i, j int) bool {
		return creditors[i].Balance.GreaterThan(creditors[j].Balance)
	})

	owed := make(map[string]decimal.Decimal, len(debtors))
	for _, d := range debtors {
		owed[d.MemberID] = d.Balance.Neg()
	}
	due := make(map[string]decimal.Decimal, len(creditors))
	for _, c := range creditors {
		due[c.MemberID] = c.Balance
	}

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor := debtors[i].MemberID
		creditor := creditors[j].MemberID

		amount := owed[debtor]
		if due[creditor].LessThan(amount) {
			amount = due[creditor]
		}

		if amount.GreaterThan(decimal.Zero) {
			transfers = append(transfers, Transfer{
				FromMemberID: debtor,
				ToMemberID:   creditor,
				Amount:       amount,
			})
		}

		owed[debtor] = owed[debtor].Sub(amount)
		due[creditor] = due[creditor].Sub(amount)

		if owed[debtor].LessThan(centTolerance) {
			i++
		}
		if due[creditor].LessThan(centTolerance) {
			j++
		}
	}

	return transfers
}

// ExactStrategy finds the true minimum number of transfers by searching
// for the maximum count of disjoint zero-sum subsets of the balances
// (each subset of size k settles internally with k-1 transfers). The
// search is exponential in the number of non-zero balances, so it only
// runs for groups of at most MaxParticipants and falls back to greedy
// above that.
type ExactStrategy struct {
	// MaxParticipants caps the number of non-zero balances the exact
	// search will accept. Zero means DefaultExactLimit.
	MaxParticipants int
}

// DefaultExactLimit bounds the 2^n subset search to a negligible cost.
const DefaultExactLimit = 8

func (ExactStrategy) Name() string { return "exact" }

func (s ExactStrategy) Plan(balances []MemberBalance) []Transfer {
	limit := s.MaxParticipants
	if limit <= 0 {
		limit = DefaultExactLimit
	}

	var active []MemberBalance
	for _, b := range balances {
		if b.Balance.Abs().GreaterThan(centTolerance) {
			active = append(active, b)
		}
	}
	if len(active) > limit {
		return GreedyStrategy{}.Plan(balances)
	}
	if len(active) == 0 {
		return nil
	}

	// Work in integer cents so subset sums compare exactly.
	cents := make([]int64, len(active))
	for i, b := range active {
		cents[i] = b.Balance.Mul(oneHundred).Round(0).IntPart()
	}

	n := len(active)
	full := 1 << n

	sums := make([]int64, full)
	for mask := 1; mask < full; mask++ {
		low := mask & (-mask)
		sums[mask] = sums[mask^low] + cents[bits.TrailingZeros(uint(low))]
	}

	// groups[mask] = max disjoint zero-sum subsets within mask.
	// pick[mask] = the zero-sum subset chosen for mask, for reconstruction.
	groups := make([]int, full)
	pick := make([]int, full)
	for mask := 1; mask < full; mask++ {
		groups[mask] = -1 << 30
		low := mask & (-mask)
		for sub := mask; sub > 0; sub = (sub - 1) & mask {
			if sub&low == 0 || sums[sub] != 0 {
				continue
			}
			if g := groups[mask^sub] + 1; g > groups[mask] {
				groups[mask] = g
				pick[mask] = sub
			}
		}
		if groups[mask] < 0 {
			// No zero-sum subset contains the lowest member; it can only
			// settle together with the rest of the mask.
			groups[mask] = 0
			pick[mask] = mask
		}
	}

	var transfers []Transfer
	for mask := full - 1; mask > 0; mask ^= pick[mask] {
		part := pick[mask]
		var group []MemberBalance
		for i := 0; i < n; i++ {
			if part&(1<<i) != 0 {
				group = append(group, active[i])
			}
		}
		transfers = append(transfers, GreedyStrategy{}.Plan(group)...)
	}
	return transfers
}
