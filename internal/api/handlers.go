package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hausmate/hausmate/internal/calculator"
	"github.com/hausmate/hausmate/internal/models"
	"github.com/hausmate/hausmate/internal/service"
)

// memberHeader identifies the acting member. Authentication happens
// upstream; by the time a request reaches this service the gateway has
// verified the identity and stamped it on the request.
const memberHeader = "X-Member-ID"

// Handler holds the services used by the HTTP handlers.
type Handler struct {
	expenses *service.ExpenseService
	balances *service.BalanceService
}

// NewHandler creates a new Handler with the given services.
func NewHandler(expenses *service.ExpenseService, balances *service.BalanceService) *Handler {
	return &Handler{expenses: expenses, balances: balances}
}

func actorID(r *http.Request) string {
	return r.Header.Get(memberHeader)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		resp.Field = ve.Field
		writeJSON(w, http.StatusBadRequest, resp)
	case models.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, resp)
	case errors.Is(err, models.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, models.ErrNotHouseholdMember):
		writeJSON(w, http.StatusForbidden, resp)
	default:
		slog.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, &models.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

// CreateExpense handles POST /api/households/{householdID}/expenses.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var body createExpenseDTO
	if !decodeBody(w, r, &body) {
		return
	}
	mode, err := parseSplitMode(body.SplitMode)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.expenses.Create(r.Context(), service.CreateExpenseRequest{
		HouseholdID:    chi.URLParam(r, "householdID"),
		ActorID:        actorID(r),
		Description:    body.Description,
		Amount:         body.Amount,
		Date:           body.Date,
		Payments:       toPaymentInputs(body.Payments),
		Mode:           mode,
		Splits:         toSplitInputs(body.Splits),
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Idempotent {
		status = http.StatusOK
	}
	writeJSON(w, status, createExpenseResponse{
		ExpenseID:  result.ExpenseID,
		Version:    result.Version,
		Idempotent: result.Idempotent,
		Shares:     toShareDTOs(result.Shares),
	})
}

// UpdateExpense handles PUT /api/expenses/{expenseID}.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	var body updateExpenseDTO
	if !decodeBody(w, r, &body) {
		return
	}
	mode, err := parseSplitMode(body.SplitMode)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.expenses.Update(r.Context(), service.UpdateExpenseRequest{
		ExpenseID:       chi.URLParam(r, "expenseID"),
		ActorID:         actorID(r),
		Description:     body.Description,
		Amount:          body.Amount,
		Date:            body.Date,
		Payments:        toPaymentInputs(body.Payments),
		Mode:            mode,
		Splits:          toSplitInputs(body.Splits),
		ExpectedVersion: body.ExpectedVersion,
		Reason:          body.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateExpenseResponse{
		ExpenseID:   result.ExpenseID,
		Version:     result.Version,
		Adjustments: toAdjustmentDTOs(result.Adjustments),
	})
}

// DeleteExpense handles DELETE /api/expenses/{expenseID}.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	result, err := h.expenses.Delete(r.Context(), chi.URLParam(r, "expenseID"), actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteExpenseResponse{
		ExpenseID: result.ExpenseID,
		Reversed:  result.Reversed,
	})
}

// SettleShares handles POST /api/expenses/{expenseID}/settle.
func (h *Handler) SettleShares(w http.ResponseWriter, r *http.Request) {
	var body settleSharesDTO
	if !decodeBody(w, r, &body) {
		return
	}

	err := h.expenses.SettleShares(r.Context(), chi.URLParam(r, "expenseID"), actorID(r), body.MemberIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetExpenses handles GET /api/households/{householdID}/expenses.
func (h *Handler) GetExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.balances.ListExpenses(r.Context(), chi.URLParam(r, "householdID"))
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]expenseDTO, 0, len(expenses))
	for _, exp := range expenses {
		dtos = append(dtos, toExpenseDTO(exp))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalances handles GET /api/households/{householdID}/balances.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.balances.Balances(r.Context(), chi.URLParam(r, "householdID"))
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]balanceDTO, 0, len(balances))
	for _, b := range balances {
		dtos = append(dtos, balanceDTO{MemberID: b.MemberID, Balance: b.Balance.StringFixed(2)})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSuggestions handles GET /api/households/{householdID}/suggestions.
// ?strategy=exact requests the minimum-transfer search for small groups.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	var strategy calculator.SettlementStrategy = calculator.GreedyStrategy{}
	switch r.URL.Query().Get("strategy") {
	case "", "greedy":
	case "exact":
		strategy = calculator.ExactStrategy{}
	default:
		writeError(w, &models.ValidationError{Field: "strategy", Message: "must be greedy or exact"})
		return
	}

	transfers, err := h.balances.SuggestSettlements(r.Context(), chi.URLParam(r, "householdID"), strategy)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]transferDTO, 0, len(transfers))
	for _, tr := range transfers {
		dtos = append(dtos, transferDTO{
			From:   tr.FromMemberID,
			To:     tr.ToMemberID,
			Amount: tr.Amount.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordSettlement handles POST /api/households/{householdID}/settlements.
func (h *Handler) RecordSettlement(w http.ResponseWriter, r *http.Request) {
	var body recordSettlementDTO
	if !decodeBody(w, r, &body) {
		return
	}

	settlement, err := h.expenses.RecordSettlement(r.Context(), service.RecordSettlementRequest{
		HouseholdID: chi.URLParam(r, "householdID"),
		ActorID:     actorID(r),
		PayerID:     body.PayerID,
		PayeeID:     body.PayeeID,
		Amount:      body.Amount,
		Description: body.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementDTO(settlement))
}

// GetSettlements handles GET /api/households/{householdID}/settlements.
func (h *Handler) GetSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.balances.ListSettlements(r.Context(), chi.URLParam(r, "householdID"))
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]settlementDTO, 0, len(settlements))
	for _, s := range settlements {
		dtos = append(dtos, toSettlementDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
