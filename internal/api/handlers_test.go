package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hausmate/hausmate/internal/service"
	"github.com/hausmate/hausmate/internal/storage/sqlite"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.AddMembers(context.Background(), "hh-1", []string{"alice", "bob", "charlie"})
	require.NoError(t, err)

	return NewRouter(NewHandler(
		service.NewExpenseService(store),
		service.NewBalanceService(store),
	))
}

func doJSON(t *testing.T, router http.Handler, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Member-ID", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createBody(amount string) map[string]interface{} {
	return map[string]interface{}{
		"description": "groceries",
		"amount":      amount,
		"date":        1700000000,
		"payments": []map[string]string{
			{"payer_id": "alice", "amount": amount},
		},
		"split_mode": "equal",
		"splits": []map[string]string{
			{"member_id": "alice"},
			{"member_id": "bob"},
			{"member_id": "charlie"},
		},
	}
}

func TestCreateExpenseEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/households/hh-1/expenses", "alice", createBody("90.00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ExpenseID string `json:"expense_id"`
		Version   int64  `json:"version"`
		Shares    []struct {
			MemberID string `json:"member_id"`
			Amount   string `json:"amount"`
		} `json:"shares"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ExpenseID)
	assert.Equal(t, int64(1), resp.Version)
	require.Len(t, resp.Shares, 3)
	for _, share := range resp.Shares {
		assert.Equal(t, "30.00", share.Amount)
	}
}

func TestCreateExpenseEndpoint_IdempotentReplayReturnsOK(t *testing.T) {
	router := newTestRouter(t)

	body := createBody("90.00")
	body["idempotency_key"] = "retry-1"

	first := doJSON(t, router, http.MethodPost, "/api/households/hh-1/expenses", "alice", body)
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, router, http.MethodPost, "/api/households/hh-1/expenses", "alice", body)
	require.Equal(t, http.StatusOK, second.Code)

	var firstResp, secondResp struct {
		ExpenseID  string `json:"expense_id"`
		Idempotent bool   `json:"idempotent"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.Equal(t, firstResp.ExpenseID, secondResp.ExpenseID)
	assert.True(t, secondResp.Idempotent)
}

func TestErrorStatusMapping(t *testing.T) {
	router := newTestRouter(t)

	// 403: actor is not a household member.
	rec := doJSON(t, router, http.MethodPost, "/api/households/hh-1/expenses", "mallory", createBody("90.00"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 400: splits do not cover the total.
	bad := createBody("90.00")
	bad["split_mode"] = "custom"
	bad["splits"] = []map[string]string{
		{"member_id": "alice", "amount": "10.00"},
		{"member_id": "bob", "amount": "10.00"},
	}
	rec = doJSON(t, router, http.MethodPost, "/api/households/hh-1/expenses", "alice", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 404: unknown expense.
	rec = doJSON(t, router, http.MethodDelete, "/api/expenses/no-such-id", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateConflictReturns409(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/households/hh-1/expenses", "alice", createBody("90.00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ExpenseID string `json:"expense_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	update := createBody("120.00")
	update["expected_version"] = 1
	rec = doJSON(t, router, http.MethodPut, "/api/expenses/"+created.ExpenseID, "alice", update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Same expected version again: the first update bumped it to 2.
	rec = doJSON(t, router, http.MethodPut, "/api/expenses/"+created.ExpenseID, "alice", update)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBalancesAndSuggestionsEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/households/hh-1/expenses", "alice", createBody("90.00"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/households/hh-1/balances", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balances []struct {
		MemberID string `json:"member_id"`
		Balance  string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balances))
	require.Len(t, balances, 3)
	byMember := make(map[string]string, len(balances))
	for _, b := range balances {
		byMember[b.MemberID] = b.Balance
	}
	assert.Equal(t, "60.00", byMember["alice"])
	assert.Equal(t, "-30.00", byMember["bob"])
	assert.Equal(t, "-30.00", byMember["charlie"])

	for _, strategy := range []string{"", "?strategy=greedy", "?strategy=exact"} {
		rec = doJSON(t, router, http.MethodGet, "/api/households/hh-1/suggestions"+strategy, "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var transfers []struct {
			From   string `json:"from"`
			To     string `json:"to"`
			Amount string `json:"amount"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transfers))
		assert.Len(t, transfers, 2, "strategy %q", strategy)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/households/hh-1/suggestions?strategy=psychic", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettleAndRecordSettlementEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/households/hh-1/expenses", "alice", createBody("90.00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ExpenseID string `json:"expense_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPost, "/api/expenses/"+created.ExpenseID+"/settle", "alice",
		map[string]interface{}{"member_ids": []string{"bob"}})
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/households/hh-1/settlements", "charlie",
		map[string]string{"payer_id": "charlie", "payee_id": "alice", "amount": "30.00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/households/hh-1/settlements", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settlements []struct {
		PayerID string `json:"payer_id"`
		Amount  string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settlements))
	require.Len(t, settlements, 1)
	assert.Equal(t, "charlie", settlements[0].PayerID)
	assert.Equal(t, "30.00", settlements[0].Amount)

	// Charlie settled via a recorded payment, bob via the settle flow:
	// everyone is square except the residuals already accounted for.
	rec = doJSON(t, router, http.MethodGet, "/api/households/hh-1/balances", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balances []struct {
		MemberID string `json:"member_id"`
		Balance  string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balances))
	for _, b := range balances {
		assert.Equal(t, "0.00", b.Balance, b.MemberID)
	}
}
