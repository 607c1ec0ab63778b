package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hausmate/hausmate/internal/calculator"
	"github.com/hausmate/hausmate/internal/models"
	"github.com/hausmate/hausmate/internal/storage/sqlite"
)

const household = "hh-1"

func newTestServices(t *testing.T) (*ExpenseService, *BalanceService) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.AddMembers(context.Background(), household, []string{"alice", "bob", "charlie"})
	require.NoError(t, err)

	return NewExpenseService(store), NewBalanceService(store)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func equalSplit(members ...string) []calculator.SplitInput {
	inputs := make([]calculator.SplitInput, len(members))
	for i, m := range members {
		inputs[i] = calculator.SplitInput{MemberID: m}
	}
	return inputs
}

func createRequest(amount string) CreateExpenseRequest {
	return CreateExpenseRequest{
		HouseholdID: household,
		ActorID:     "alice",
		Description: "groceries",
		Amount:      dec(amount),
		Date:        1700000000,
		Payments:    []PaymentInput{{PayerID: "alice", Amount: dec(amount)}},
		Mode:        calculator.SplitEqual,
		Splits:      equalSplit("alice", "bob", "charlie"),
	}
}

func balanceOf(t *testing.T, balances []calculator.MemberBalance, memberID string) decimal.Decimal {
	t.Helper()
	for _, b := range balances {
		if b.MemberID == memberID {
			return b.Balance
		}
	}
	t.Fatalf("no balance for %s", memberID)
	return decimal.Zero
}

func TestCreate_PersistsExpenseAndBalances(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	result, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.ExpenseID)
	assert.False(t, result.Idempotent)
	assert.Equal(t, int64(1), result.Version)
	require.Len(t, result.Shares, 3)

	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, got, "alice").Equal(dec("60")), "alice: %s", balanceOf(t, got, "alice"))
	assert.True(t, balanceOf(t, got, "bob").Equal(dec("-30")))
	assert.True(t, balanceOf(t, got, "charlie").Equal(dec("-30")))
}

func TestCreate_IdempotentReplay(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	req := createRequest("90.00")
	req.IdempotencyKey = "retry-abc"

	first, err := expenses.Create(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Idempotent)

	second, err := expenses.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.ExpenseID, second.ExpenseID)

	// The replay must not have written a second set of facts.
	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, got, "alice").Equal(dec("60")))

	live, err := balances.ListExpenses(ctx, household)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestCreate_IdempotentReplayReturnsCurrentVersion(t *testing.T) {
	expenses, _ := newTestServices(t)
	ctx := context.Background()

	req := createRequest("90.00")
	req.IdempotencyKey = "retry-xyz"
	first, err := expenses.Create(ctx, req)
	require.NoError(t, err)

	_, err = expenses.Update(ctx, updateRequest(first.ExpenseID, "120.00"))
	require.NoError(t, err)

	replay, err := expenses.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, replay.Idempotent)
	assert.Equal(t, int64(2), replay.Version, "replay reports the stored version, not the create default")
}

func TestCreate_DistinctKeysCreateDistinctExpenses(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	req := createRequest("90.00")
	req.IdempotencyKey = "key-1"
	_, err := expenses.Create(ctx, req)
	require.NoError(t, err)

	req.IdempotencyKey = "key-2"
	second, err := expenses.Create(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Idempotent)

	live, err := balances.ListExpenses(ctx, household)
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestCreate_RejectsNonMember(t *testing.T) {
	expenses, _ := newTestServices(t)

	req := createRequest("90.00")
	req.ActorID = "mallory"

	_, err := expenses.Create(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotHouseholdMember)
}

func TestCreate_RejectsInvalidSplits(t *testing.T) {
	expenses, _ := newTestServices(t)

	req := createRequest("90.00")
	req.Mode = calculator.SplitCustom
	req.Splits = []calculator.SplitInput{
		{MemberID: "alice", Amount: dec("10.00")},
		{MemberID: "bob", Amount: dec("10.00")},
	}

	_, err := expenses.Create(context.Background(), req)
	require.Error(t, err)
	var ste *models.InvalidSplitTotalError
	assert.ErrorAs(t, err, &ste)
}

func updateRequest(expenseID, amount string) UpdateExpenseRequest {
	return UpdateExpenseRequest{
		ExpenseID:   expenseID,
		ActorID:     "alice",
		Description: "groceries",
		Amount:      dec(amount),
		Date:        1700000000,
		Payments:    []PaymentInput{{PayerID: "alice", Amount: dec(amount)}},
		Mode:        calculator.SplitEqual,
		Splits:      equalSplit("alice", "bob", "charlie"),
	}
}

func TestUpdate_ReplacesUnsettledSplits(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)

	result, err := expenses.Update(ctx, updateRequest(created.ExpenseID, "120.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Version)
	assert.Empty(t, result.Adjustments, "no settled splits, so no adjustments")

	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, got, "alice").Equal(dec("80")))
	assert.True(t, balanceOf(t, got, "bob").Equal(dec("-40")))
}

func TestUpdate_SettledSplitsGetAdjustments(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	// 90 split three ways, then bob and charlie settle their 30 shares.
	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)
	err = expenses.SettleShares(ctx, created.ExpenseID, "alice", []string{"bob", "charlie"})
	require.NoError(t, err)

	// Raising the total to 120 makes each share 40. The settled splits
	// keep their 30 base and gain a +10 adjustment each.
	req := updateRequest(created.ExpenseID, "120.00")
	req.Reason = "forgot the wine"
	result, err := expenses.Update(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Version, "settling bumped the version before the update")
	require.Len(t, result.Adjustments, 2)
	for _, adj := range result.Adjustments {
		assert.True(t, adj.Delta.Equal(dec("10")), "delta: %s", adj.Delta)
		assert.Equal(t, "forgot the wine", adj.Reason)
		assert.Equal(t, "alice", adj.CreatedBy)
	}

	// bob and charlie already paid 30 out of band; only the +10 residual
	// is still owed. alice paid 120 and got 60 back, and her own share is 40.
	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, got, "alice").Equal(dec("20")), "alice: %s", balanceOf(t, got, "alice"))
	assert.True(t, balanceOf(t, got, "bob").Equal(dec("-10")))
	assert.True(t, balanceOf(t, got, "charlie").Equal(dec("-10")))
}

func TestUpdate_AdjustmentsStack(t *testing.T) {
	expenses, _ := newTestServices(t)
	ctx := context.Background()

	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)
	err = expenses.SettleShares(ctx, created.ExpenseID, "alice", []string{"bob"})
	require.NoError(t, err)

	_, err = expenses.Update(ctx, updateRequest(created.ExpenseID, "120.00"))
	require.NoError(t, err)

	// Second update back to 90: bob's effective share is 40 now, so the
	// new adjustment is -10, leaving the effective amount at 30 again.
	result, err := expenses.Update(ctx, updateRequest(created.ExpenseID, "90.00"))
	require.NoError(t, err)
	require.Len(t, result.Adjustments, 1)
	assert.True(t, result.Adjustments[0].Delta.Equal(dec("-10")))
}

func TestUpdate_StaleVersionRejected(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)

	_, err = expenses.Update(ctx, updateRequest(created.ExpenseID, "120.00"))
	require.NoError(t, err)

	// A second writer still holding version 1 must be rejected untouched.
	stale := updateRequest(created.ExpenseID, "150.00")
	v1 := int64(1)
	stale.ExpectedVersion = &v1

	_, err = expenses.Update(ctx, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConcurrentModification)

	var cme *models.ConcurrentModificationError
	require.ErrorAs(t, err, &cme)
	assert.Equal(t, int64(1), cme.ExpectedVersion)
	assert.Equal(t, int64(2), cme.ActualVersion)

	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, got, "alice").Equal(dec("80")), "rejected update must not change data")
}

func TestUpdate_MemberRemovedAfterSettling(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)
	err = expenses.SettleShares(ctx, created.ExpenseID, "alice", []string{"charlie"})
	require.NoError(t, err)

	// Rewrite the split set without charlie: his settled split stays but
	// is adjusted down to zero, so he ends up owed his out-of-band payment.
	req := updateRequest(created.ExpenseID, "90.00")
	req.Splits = equalSplit("alice", "bob")
	result, err := expenses.Update(ctx, req)
	require.NoError(t, err)
	require.Len(t, result.Adjustments, 1)
	assert.True(t, result.Adjustments[0].Delta.Equal(dec("-30")))

	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, got, "charlie").Equal(dec("30")), "charlie: %s", balanceOf(t, got, "charlie"))
	assert.True(t, balanceOf(t, got, "alice").Equal(dec("15")))
	assert.True(t, balanceOf(t, got, "bob").Equal(dec("-45")))
}

func TestUpdate_NotFound(t *testing.T) {
	expenses, _ := newTestServices(t)

	_, err := expenses.Update(context.Background(), updateRequest("no-such-id", "10.00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDelete_HardDeleteWhenUnsettled(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)

	result, err := expenses.Delete(ctx, created.ExpenseID, "alice")
	require.NoError(t, err)
	assert.False(t, result.Reversed)

	_, err = expenses.store.GetExpense(ctx, created.ExpenseID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete_SettledSplitsAreReversed(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)
	err = expenses.SettleShares(ctx, created.ExpenseID, "alice", []string{"bob"})
	require.NoError(t, err)

	result, err := expenses.Delete(ctx, created.ExpenseID, "alice")
	require.NoError(t, err)
	assert.True(t, result.Reversed)

	// The expense is gone from reads but its settled history still counts:
	// bob paid alice 30 out of band for an expense that no longer exists,
	// so alice owes him 30 back.
	_, err = expenses.store.GetExpense(ctx, created.ExpenseID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, got, "bob").Equal(dec("30")), "bob: %s", balanceOf(t, got, "bob"))
	assert.True(t, balanceOf(t, got, "alice").Equal(dec("-30")))
}

func TestSettleShares_FlipsOnlyNamedMembers(t *testing.T) {
	expenses, _ := newTestServices(t)
	ctx := context.Background()

	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)

	err = expenses.SettleShares(ctx, created.ExpenseID, "alice", []string{"bob"})
	require.NoError(t, err)

	expense, err := expenses.store.GetExpense(ctx, created.ExpenseID)
	require.NoError(t, err)
	for _, split := range expense.Splits {
		if split.MemberID == "bob" {
			assert.True(t, split.Settled)
			assert.NotZero(t, split.SettledAt)
		} else {
			assert.False(t, split.Settled)
		}
	}
}

func TestSettleShares_RejectsMemberWithoutUnsettledSplit(t *testing.T) {
	expenses, _ := newTestServices(t)
	ctx := context.Background()

	created, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)
	err = expenses.SettleShares(ctx, created.ExpenseID, "alice", []string{"bob"})
	require.NoError(t, err)

	// Settling twice, or settling a non-participant, is a client error.
	err = expenses.SettleShares(ctx, created.ExpenseID, "alice", []string{"bob"})
	require.Error(t, err)
	assert.True(t, models.IsClientError(err))

	err = expenses.SettleShares(ctx, created.ExpenseID, "alice", []string{"mallory"})
	require.Error(t, err)
	assert.True(t, models.IsClientError(err))
}

func TestRecordSettlement_OffsetsBalances(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	_, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)

	settlement, err := expenses.RecordSettlement(ctx, RecordSettlementRequest{
		HouseholdID: household,
		ActorID:     "bob",
		PayerID:     "bob",
		PayeeID:     "alice",
		Amount:      dec("30.00"),
		Description: "rent share",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, settlement.ID)

	got, err := balances.Balances(ctx, household)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, got, "bob").IsZero(), "bob: %s", balanceOf(t, got, "bob"))
	assert.True(t, balanceOf(t, got, "alice").Equal(dec("30")))

	recorded, err := balances.ListSettlements(ctx, household)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "rent share", recorded[0].Description)
}

func TestRecordSettlement_Validation(t *testing.T) {
	expenses, _ := newTestServices(t)
	ctx := context.Background()

	base := RecordSettlementRequest{
		HouseholdID: household,
		ActorID:     "bob",
		PayerID:     "bob",
		PayeeID:     "alice",
		Amount:      dec("30.00"),
	}

	selfPay := base
	selfPay.PayeeID = "bob"
	_, err := expenses.RecordSettlement(ctx, selfPay)
	assert.True(t, models.IsClientError(err), "self-payment: %v", err)

	outsider := base
	outsider.PayeeID = "mallory"
	_, err = expenses.RecordSettlement(ctx, outsider)
	assert.True(t, models.IsClientError(err), "outsider payee: %v", err)

	negative := base
	negative.Amount = dec("-5.00")
	_, err = expenses.RecordSettlement(ctx, negative)
	assert.True(t, models.IsClientError(err), "negative amount: %v", err)
}

func TestSuggestSettlements_GreedyFromHistory(t *testing.T) {
	expenses, balances := newTestServices(t)
	ctx := context.Background()

	_, err := expenses.Create(ctx, createRequest("90.00"))
	require.NoError(t, err)

	transfers, err := balances.SuggestSettlements(ctx, household, nil)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	for _, tr := range transfers {
		assert.Equal(t, "alice", tr.ToMemberID)
		assert.True(t, tr.Amount.Equal(dec("30")))
	}
}
