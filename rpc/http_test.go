package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"launchpad/core/state"
	"launchpad/native/referral"
	"launchpad/native/sale"
	"launchpad/native/sale/settlement"
	"launchpad/storage"
)

const testAuthToken = "secret-token"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())

	registry := referral.NewRegistry("owner", nil)
	registry.SetState(manager)

	engine := sale.NewEngine("owner", [sale.Levels]uint64{500, 200, 100})
	engine.SetState(manager)
	engine.SetReferralGraph(registry)
	engine.SetNowFunc(func() int64 { return 1_000 })

	pipeline := settlement.NewPipeline(engine, nil, &acceptingLedger{}, "wnative", nil)
	pipeline.SetMembership(registry)

	return NewServer(engine, registry, pipeline, testAuthToken, nil)
}

// acceptingLedger swallows movement requests so synchronous flows can run
// end to end without a resolver.
type acceptingLedger struct{}

func (acceptingLedger) Transfer(_ context.Context, _ *settlement.Request) error { return nil }
func (acceptingLedger) Wrap(_ context.Context, _ *settlement.Request) error     { return nil }
func (acceptingLedger) Unwrap(_ context.Context, _ *settlement.Request) error   { return nil }

func call(t *testing.T, server *Server, token, method string, params interface{}) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func createTestSale(t *testing.T, server *Server) uint64 {
	t.Helper()
	_, resp := call(t, server, testAuthToken, "sale_create", map[string]interface{}{
		"caller":       "owner",
		"metadata":     map[string]string{"name": "Test", "symbol": "TST"},
		"depositToken": "usd",
		"minBuy":       "1",
		"maxBuy":       "1000000",
		"startDate":    500,
		"endDate":      2000,
		"price":        "1000",
	})
	require.Nil(t, resp.Error)
	result, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var created struct {
		SaleID uint64 `json:"saleId"`
	}
	require.NoError(t, json.Unmarshal(result, &created))
	return created.SaleID
}

func TestPrivilegedMethodRequiresBearerToken(t *testing.T) {
	server := newTestServer(t)

	rec, resp := call(t, server, "", "sale_create", map[string]interface{}{"caller": "owner"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	rec, resp = call(t, server, "wrong-token", "sale_remove", map[string]interface{}{"caller": "owner", "saleId": 0})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
}

func TestSaleCreateAndGet(t *testing.T) {
	server := newTestServer(t)
	id := createTestSale(t, server)

	rec, resp := call(t, server, "", "sale_get", map[string]interface{}{"saleId": id})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result saleResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, "usd", result.DepositToken)
	require.Equal(t, "by_amount", result.Policy)
	require.Equal(t, "0", result.CollectedAmount)
}

func TestSaleGetUnknownReturnsNotFound(t *testing.T) {
	server := newTestServer(t)

	rec, resp := call(t, server, "", "sale_get", map[string]interface{}{"saleId": 42})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestReferralJoinAndDepositFlow(t *testing.T) {
	server := newTestServer(t)
	id := createTestSale(t, server)

	_, resp := call(t, server, "", "referral_join", map[string]interface{}{"account": "alice"})
	require.Nil(t, resp.Error)

	_, resp = call(t, server, "", "sale_deposit", map[string]interface{}{
		"saleId":  id,
		"account": "alice",
		"token":   "usd",
		"amount":  "100",
	})
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var deposited depositResult
	require.NoError(t, json.Unmarshal(raw, &deposited))
	require.True(t, deposited.Settled)

	_, resp = call(t, server, "", "sale_account", map[string]interface{}{"saleId": id, "account": "alice"})
	require.Nil(t, resp.Error)
	raw, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	var account saleAccountResult
	require.NoError(t, json.Unmarshal(raw, &account))
	require.Equal(t, "100", account.Amount)
}

func TestDepositRejectsUnregisteredAccount(t *testing.T) {
	server := newTestServer(t)
	id := createTestSale(t, server)

	rec, resp := call(t, server, "", "sale_deposit", map[string]interface{}{
		"saleId":  id,
		"account": "ghost",
		"token":   "usd",
		"amount":  "100",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
}

func TestUnknownMethod(t *testing.T) {
	server := newTestServer(t)

	rec, resp := call(t, server, "", "sale_bogus", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestMalformedRequestRejected(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSaleListPagination(t *testing.T) {
	server := newTestServer(t)
	for i := 0; i < 3; i++ {
		createTestSale(t, server)
	}

	_, resp := call(t, server, "", "sale_list", map[string]interface{}{"fromIndex": 1, "limit": 10})
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var sales []saleResult
	require.NoError(t, json.Unmarshal(raw, &sales))
	require.Len(t, sales, 2)
	require.Equal(t, uint64(1), sales[0].ID)
	require.Equal(t, uint64(2), sales[1].ID)
}
