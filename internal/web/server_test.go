package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/banana-dao/banana-vaults/internal/state"
	"github.com/banana-dao/banana-vaults/internal/types"
)

type mockService struct{ mock.Mock }

func (m *mockService) Instantiate(caller string, cfg types.VaultConfig) (types.VaultInfo, error) {
	args := m.Called(caller, cfg)
	return args.Get(0).(types.VaultInfo), args.Error(1)
}

func (m *mockService) Deposit(caller string, coin sdk.Coin) (types.DepositResult, error) {
	args := m.Called(caller, coin)
	return args.Get(0).(types.DepositResult), args.Error(1)
}

func (m *mockService) Withdraw(caller string, shares sdkmath.Int) (types.WithdrawResult, error) {
	args := m.Called(caller, shares)
	return args.Get(0).(types.WithdrawResult), args.Error(1)
}

func (m *mockService) ManagerTrade(caller string, route types.Route, amountIn, minAmountOut sdkmath.Int) (types.TradeResult, error) {
	args := m.Called(caller, route, amountIn, minAmountOut)
	return args.Get(0).(types.TradeResult), args.Error(1)
}

func (m *mockService) SetStatus(caller string, lifecycle types.Lifecycle) (types.VaultStatus, error) {
	args := m.Called(caller, lifecycle)
	return args.Get(0).(types.VaultStatus), args.Error(1)
}

func (m *mockService) Halt(caller string) (types.VaultStatus, error) {
	args := m.Called(caller)
	return args.Get(0).(types.VaultStatus), args.Error(1)
}

func (m *mockService) Resume(caller string) (types.VaultStatus, error) {
	args := m.Called(caller)
	return args.Get(0).(types.VaultStatus), args.Error(1)
}

func (m *mockService) Unlock(caller string) (types.VaultStatus, error) {
	args := m.Called(caller)
	return args.Get(0).(types.VaultStatus), args.Error(1)
}

func (m *mockService) UpdateConfig(caller string, update types.ConfigUpdate) (types.VaultConfig, error) {
	args := m.Called(caller, update)
	return args.Get(0).(types.VaultConfig), args.Error(1)
}

func (m *mockService) UpdateManager(caller, manager string) (types.VaultConfig, error) {
	args := m.Called(caller, manager)
	return args.Get(0).(types.VaultConfig), args.Error(1)
}

func (m *mockService) UpdateWhitelist(caller string, add, remove []string) ([]string, error) {
	args := m.Called(caller, add, remove)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockService) ForceExit(caller, account string) (types.WithdrawResult, error) {
	args := m.Called(caller, account)
	return args.Get(0).(types.WithdrawResult), args.Error(1)
}

func (m *mockService) VaultInfo() (types.VaultInfo, error) {
	args := m.Called()
	return args.Get(0).(types.VaultInfo), args.Error(1)
}

func (m *mockService) NAV() (types.NAVResponse, error) {
	args := m.Called()
	return args.Get(0).(types.NAVResponse), args.Error(1)
}

func (m *mockService) AccountShares(addr string) (types.AccountShares, error) {
	args := m.Called(addr)
	return args.Get(0).(types.AccountShares), args.Error(1)
}

func (m *mockService) Whitelist() ([]string, error) {
	args := m.Called()
	return args.Get(0).([]string), args.Error(1)
}

type fixedSnapshots struct {
	snapshot *types.NAVSnapshot
}

func (f fixedSnapshots) Latest() (types.NAVSnapshot, bool) {
	if f.snapshot == nil {
		return types.NAVSnapshot{}, false
	}
	return *f.snapshot, true
}

type failingAudit struct{}

func (failingAudit) Ping(context.Context) error { return errors.New("connection refused") }
func (failingAudit) GetRecentSnapshots(context.Context, int) ([]types.NAVSnapshot, error) {
	return nil, errors.New("connection refused")
}
func (failingAudit) GetSnapshotByID(_ context.Context, id int64) (types.NAVSnapshot, error) {
	return types.NAVSnapshot{}, state.ErrSnapshotNotFound
}
func (failingAudit) GetRecentReceipts(context.Context, int, []string) ([]types.InstructionReceipt, error) {
	return nil, errors.New("connection refused")
}
func (failingAudit) GetVaultSummary(context.Context) (state.VaultSummary, error) {
	return state.VaultSummary{}, nil
}
func (failingAudit) GetPerformanceMetrics(context.Context) (state.PerformanceMetrics, error) {
	return state.PerformanceMetrics{}, nil
}

func newServer(t *testing.T, svc *mockService, cfg Config) *WebServer {
	t.Helper()
	cfg.Vault = svc
	ws, err := NewWebServer(cfg)
	require.NoError(t, err)
	return ws
}

const (
	aliceToken = "alice-token-0123456789"
	ownerToken = "owner-token-0123456789"
)

var tokens = map[string]string{aliceToken: "alice", ownerToken: "owner"}

func do(ws *WebServer, method, path, body string) *httptest.ResponseRecorder {
	return doAs(ws, "", method, path, body)
}

// doAs sends the request with token as its bearer credential, if set.
func doAs(ws *WebServer, token, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	ws.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDepositSuccess(t *testing.T) {
	// ARRANGE
	svc := &mockService{}
	svc.On("Deposit", "alice", sdk.NewInt64Coin("uusdc", 1000)).
		Return(types.DepositResult{SharesMinted: sdkmath.NewInt(1000)}, nil)
	ws := newServer(t, svc, Config{Tokens: tokens})

	// ACT
	rec := doAs(ws, aliceToken, http.MethodPost, "/api/deposit", `{"denom":"uusdc","amount":"1000"}`)

	// ASSERT
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", decodeBody(t, rec)["shares_minted"])
	svc.AssertExpectations(t)
}

func TestDepositStalePriceIsRetryable(t *testing.T) {
	// ARRANGE
	svc := &mockService{}
	svc.On("Deposit", "alice", mock.Anything).
		Return(types.DepositResult{}, errorsmod.Wrap(types.ErrStalePrice, "ATOMUSDC is 2m old"))
	ws := newServer(t, svc, Config{Tokens: tokens})

	// ACT
	rec := doAs(ws, aliceToken, http.MethodPost, "/api/deposit", `{"denom":"uatom","amount":"5"}`)

	// ASSERT
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "VALUATION", body["kind"])
	assert.Equal(t, true, body["retryable"])
}

func TestInvalidBodyIsRejected(t *testing.T) {
	ws := newServer(t, &mockService{}, Config{Tokens: tokens})

	rec := doAs(ws, aliceToken, http.MethodPost, "/api/withdraw", `{"shares":"many"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doAs(ws, aliceToken, http.MethodPost, "/api/withdraw", `{"shares":"1","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the caller is never taken from the body
	rec = doAs(ws, aliceToken, http.MethodPost, "/api/withdraw", `{"caller":"owner","shares":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstructionsRequireToken(t *testing.T) {
	// ARRANGE
	svc := &mockService{}
	ws := newServer(t, svc, Config{Tokens: tokens})

	// ACT
	missing := do(ws, http.MethodPost, "/api/manager", `{"manager":"mallory"}`)
	unknown := doAs(ws, "mallory-token-0123456", http.MethodPost, "/api/manager", `{"manager":"mallory"}`)
	basic := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/halt", nil)
	req.Header.Set("Authorization", "Basic "+ownerToken)
	ws.Handler().ServeHTTP(basic, req)

	// ASSERT
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, basic.Code)
	assert.Contains(t, missing.Header().Get("WWW-Authenticate"), "Bearer")
	svc.AssertNotCalled(t, "UpdateManager", mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "Halt", mock.Anything)
}

func TestTokenSelectsCaller(t *testing.T) {
	svc := &mockService{}
	svc.On("Halt", "owner").Return(types.VaultStatus{Lifecycle: types.StatusOpen, Halted: true}, nil)
	svc.On("UpdateManager", "alice", "mallory").
		Return(types.VaultConfig{}, errorsmod.Wrap(types.ErrUnauthorized, "alice is not the owner"))
	ws := newServer(t, svc, Config{Tokens: tokens})

	halted := doAs(ws, ownerToken, http.MethodPost, "/api/halt", "")
	denied := doAs(ws, aliceToken, http.MethodPost, "/api/manager", `{"manager":"mallory"}`)

	require.Equal(t, http.StatusOK, halted.Code)
	assert.Equal(t, true, decodeBody(t, halted)["halted"])
	assert.Equal(t, http.StatusForbidden, denied.Code)
	svc.AssertExpectations(t)
}

func TestReadOnlyWithoutTokens(t *testing.T) {
	svc := &mockService{}
	svc.On("Whitelist").Return([]string(nil), nil)
	ws := newServer(t, svc, Config{})

	assert.Equal(t, http.StatusNotFound, doAs(ws, ownerToken, http.MethodPost, "/api/deposit", `{}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, doAs(ws, ownerToken, http.MethodPost, "/api/whitelist", `{}`).Code)
	assert.Equal(t, http.StatusOK, do(ws, http.MethodGet, "/api/whitelist", "").Code)

	preflight := do(ws, http.MethodOptions, "/api/vault", "")
	assert.NotContains(t, preflight.Header().Get("Access-Control-Allow-Methods"), "POST")
	svc.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything)
}

func TestTradeUnauthorized(t *testing.T) {
	// ARRANGE
	svc := &mockService{}
	route := types.Route{Kind: types.TradeSwap, PoolID: 1, DenomIn: "uusdc", DenomOut: "uatom"}
	svc.On("ManagerTrade", "alice", route, sdkmath.NewInt(300), sdkmath.NewInt(290)).
		Return(types.TradeResult{}, errorsmod.Wrap(types.ErrUnauthorized, "alice is not the manager"))
	ws := newServer(t, svc, Config{Tokens: tokens})

	// ACT
	rec := doAs(ws, aliceToken, http.MethodPost, "/api/trade",
		`{"route":{"kind":"SWAP","pool_id":1,"denom_in":"uusdc","denom_out":"uatom"},"amount_in":"300","min_amount_out":"290"}`)

	// ASSERT
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTHORIZATION", decodeBody(t, rec)["kind"])
}

func TestAccountShares(t *testing.T) {
	svc := &mockService{}
	svc.On("AccountShares", "bob").Return(types.AccountShares{Address: "bob", Shares: sdkmath.NewInt(5)}, nil)
	ws := newServer(t, svc, Config{})

	rec := do(ws, http.MethodGet, "/api/accounts/bob", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", decodeBody(t, rec)["shares"])
}

func TestNAVBeforeInstantiate(t *testing.T) {
	svc := &mockService{}
	svc.On("NAV").Return(types.NAVResponse{}, types.ErrNotInstantiated)
	ws := newServer(t, svc, Config{})

	rec := do(ws, http.MethodGet, "/api/nav", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWhitelistResponse(t *testing.T) {
	svc := &mockService{}
	svc.On("UpdateWhitelist", "owner", []string{"bob"}, []string(nil)).Return([]string{"bob"}, nil)
	svc.On("Whitelist").Return([]string{"bob"}, nil)
	ws := newServer(t, svc, Config{Tokens: tokens})

	rec := doAs(ws, ownerToken, http.MethodPost, "/api/whitelist", `{"add":["bob"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"bob"}, decodeBody(t, rec)["whitelist"])

	rec = do(ws, http.MethodGet, "/api/whitelist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"bob"}, decodeBody(t, rec)["whitelist"])
}

func TestWhitelistDuplicateAdd(t *testing.T) {
	svc := &mockService{}
	svc.On("UpdateWhitelist", "owner", []string{"bob"}, []string(nil)).
		Return([]string(nil), errorsmod.Wrap(types.ErrAddressInWhitelist, "bob"))
	ws := newServer(t, svc, Config{Tokens: tokens})

	rec := doAs(ws, ownerToken, http.MethodPost, "/api/whitelist", `{"add":["bob"]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decodeBody(t, rec)["kind"])
}

func TestHealth(t *testing.T) {
	// ARRANGE
	svc := &mockService{}
	svc.On("VaultInfo").Return(types.VaultInfo{}, types.ErrNotInstantiated).Once()
	svc.On("VaultInfo").Return(types.VaultInfo{Status: types.VaultStatus{Lifecycle: types.StatusOpen}, TotalShares: sdkmath.NewInt(3)}, nil)
	ws := newServer(t, svc, Config{})

	// ACT
	fresh := do(ws, http.MethodGet, "/health", "")
	running := do(ws, http.MethodGet, "/api/health", "")

	// ASSERT
	assert.Equal(t, http.StatusOK, fresh.Code)
	require.Equal(t, http.StatusOK, running.Code)
	assert.Equal(t, "OPEN", decodeBody(t, running)["vault"].(map[string]interface{})["lifecycle"])
}

func TestHealthDegradedWithoutDatabase(t *testing.T) {
	svc := &mockService{}
	svc.On("VaultInfo").Return(types.VaultInfo{}, nil)
	ws := newServer(t, svc, Config{Audit: failingAudit{}})

	rec := do(ws, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", decodeBody(t, rec)["status"])
}

func TestSnapshotsFallBackToMemory(t *testing.T) {
	latest := &types.NAVSnapshot{CycleNumber: 3, NAV: "1800", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ws := newServer(t, &mockService{}, Config{Snapshots: fixedSnapshots{snapshot: latest}})

	rec := do(ws, http.MethodGet, "/api/snapshots?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 1.0, body["count"])
	assert.Equal(t, 5.0, body["limit"])

	rec = do(ws, http.MethodGet, "/api/snapshots/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1800", decodeBody(t, rec)["nav"])

	rec = do(ws, http.MethodGet, "/api/receipts", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditErrors(t *testing.T) {
	ws := newServer(t, &mockService{}, Config{Audit: failingAudit{}})

	assert.Equal(t, http.StatusInternalServerError, do(ws, http.MethodGet, "/api/snapshots", "").Code)
	assert.Equal(t, http.StatusNotFound, do(ws, http.MethodGet, "/api/snapshots/12", "").Code)
	assert.Equal(t, http.StatusNotFound, do(ws, http.MethodGet, "/api/snapshots/latest", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(ws, http.MethodGet, "/api/receipts?instruction=Deposit", "").Code)
	assert.Equal(t, http.StatusOK, do(ws, http.MethodGet, "/api/performance", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("bvault_nav 1800\n"))
	})
	ws := newServer(t, &mockService{}, Config{Metrics: metrics})

	rec := do(ws, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bvault_nav")
}

func TestCORSPreflight(t *testing.T) {
	ws := newServer(t, &mockService{}, Config{Tokens: tokens})

	rec := do(ws, http.MethodOptions, "/api/deposit", "")

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.ErrInvalidDenom, http.StatusBadRequest},
		{types.ErrAddressNotInWhitelist, http.StatusBadRequest},
		{types.ErrPositionsMismatch, http.StatusInternalServerError},
		{types.ErrVaultClosed, http.StatusConflict},
		{types.ErrMissingFeed, http.StatusServiceUnavailable},
		{types.ErrInsufficientShares, http.StatusUnprocessableEntity},
		{types.ErrHoldingsMismatch, http.StatusInternalServerError},
		{types.ErrUnauthorized, http.StatusForbidden},
		{types.ErrReentrancyRejected, http.StatusConflict},
		{types.ErrVenueRejected, http.StatusBadGateway},
		{types.ErrSlippageExceeded, http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err), tt.err.Error())
	}
}

func TestNewWebServerRequiresVault(t *testing.T) {
	_, err := NewWebServer(Config{})
	assert.Error(t, err)
}

type historyAudit struct {
	failingAudit
	history []types.NAVSnapshot
}

func (h historyAudit) GetRecentSnapshots(context.Context, int) ([]types.NAVSnapshot, error) {
	return h.history, nil
}

func (historyAudit) GetPerformanceMetrics(context.Context) (state.PerformanceMetrics, error) {
	return state.PerformanceMetrics{FirstSharePrice: 1, LastSharePrice: 1.2, SharePriceReturn: 0.2, TotalSnapshots: 3}, nil
}

func TestPerformanceIncludesRiskFigures(t *testing.T) {
	// ARRANGE
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	audit := historyAudit{history: []types.NAVSnapshot{
		{Timestamp: start, SharePrice: 1.0},
		{Timestamp: start.Add(time.Hour), SharePrice: 1.5},
		{Timestamp: start.Add(2 * time.Hour), SharePrice: 1.2},
	}}
	ws := newServer(t, &mockService{}, Config{Audit: audit})

	// ACT
	rec := do(ws, http.MethodGet, "/api/performance", "")

	// ASSERT
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 0.2, body["share_price_return"])
	assert.InDelta(t, 0.2, body["max_drawdown"], 1e-9)
	assert.Greater(t, body["share_price_volatility"], 0.0)
}

func TestPerformanceWithoutHistory(t *testing.T) {
	ws := newServer(t, &mockService{}, Config{Audit: failingAudit{}})

	rec := do(ws, http.MethodGet, "/api/performance", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Nil(t, body["share_price_volatility"])
	assert.Nil(t, body["max_drawdown"])
}
