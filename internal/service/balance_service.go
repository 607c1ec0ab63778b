package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hausmate/hausmate/internal/calculator"
	"github.com/hausmate/hausmate/internal/models"
	"github.com/hausmate/hausmate/internal/storage"
)

// BalanceService derives balances and settlement suggestions from the
// recorded facts. It is read-only: every call recomputes from storage,
// so balances can never drift from the expense history.
type BalanceService struct {
	store storage.Store
}

// NewBalanceService creates a new BalanceService with the given storage
// backend.
func NewBalanceService(store storage.Store) *BalanceService {
	return &BalanceService{store: store}
}

// expenseFacts flattens stored expenses into calculation facts.
func expenseFacts(expenses []*models.Expense) []calculator.ExpenseFact {
	facts := make([]calculator.ExpenseFact, 0, len(expenses))
	for _, exp := range expenses {
		fact := calculator.ExpenseFact{Deleted: exp.Deleted}
		for _, p := range exp.Payments {
			fact.Payments = append(fact.Payments, calculator.PaymentFact{
				PayerID: p.PayerID,
				Amount:  p.Amount,
			})
		}
		for _, split := range exp.Splits {
			sf := calculator.SplitFact{
				MemberID: split.MemberID,
				Amount:   split.Amount,
				Settled:  split.Settled,
			}
			for _, adj := range split.Adjustments {
				sf.Adjustments = append(sf.Adjustments, adj.Delta)
			}
			fact.Splits = append(fact.Splits, sf)
		}
		facts = append(facts, fact)
	}
	return facts
}

func settlementFacts(settlements []*models.Settlement) []calculator.SettlementFact {
	facts := make([]calculator.SettlementFact, 0, len(settlements))
	for _, s := range settlements {
		facts = append(facts, calculator.SettlementFact{
			PayerID: s.PayerID,
			PayeeID: s.PayeeID,
			Amount:  s.Amount,
		})
	}
	return facts
}

// Balances derives every member's net balance in the household from the
// full expense and settlement history.
func (s *BalanceService) Balances(ctx context.Context, householdID string) ([]calculator.MemberBalance, error) {
	expenses, err := s.store.ListExpenses(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	settlements, err := s.store.ListSettlements(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}

	balances := calculator.CalculateBalances(expenseFacts(expenses), settlementFacts(settlements))
	slog.Debug("Balances derived",
		"household_id", householdID, "expenses", len(expenses), "members", len(balances))
	return balances, nil
}

// SuggestSettlements proposes transfers that would zero out the
// household's balances, using the given strategy. A nil strategy means
// greedy.
func (s *BalanceService) SuggestSettlements(ctx context.Context, householdID string, strategy calculator.SettlementStrategy) ([]calculator.Transfer, error) {
	balances, err := s.Balances(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		strategy = calculator.GreedyStrategy{}
	}
	transfers := strategy.Plan(balances)
	slog.Debug("Settlement suggestions computed",
		"household_id", householdID, "strategy", strategy.Name(), "transfers", len(transfers))
	return transfers, nil
}

// ListExpenses returns the household's live (non-deleted) expenses.
func (s *BalanceService) ListExpenses(ctx context.Context, householdID string) ([]*models.Expense, error) {
	expenses, err := s.store.ListExpenses(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	live := make([]*models.Expense, 0, len(expenses))
	for _, exp := range expenses {
		if !exp.Deleted {
			live = append(live, exp)
		}
	}
	return live, nil
}

// ListSettlements returns the household's recorded settlements.
func (s *BalanceService) ListSettlements(ctx context.Context, householdID string) ([]*models.Settlement, error) {
	settlements, err := s.store.ListSettlements(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return settlements, nil
}
