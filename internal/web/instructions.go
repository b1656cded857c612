package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// Request bodies. The account an instruction runs as comes from the bearer token, never the body.
// Amounts are decimal strings.
type (
	instantiateRequest struct {
		Config types.VaultConfig `json:"config"`
	}

	depositRequest struct {
		Denom  string      `json:"denom"`
		Amount sdkmath.Int `json:"amount"`
	}

	withdrawRequest struct {
		Shares sdkmath.Int `json:"shares"`
	}

	tradeRequest struct {
		Route        types.Route `json:"route"`
		AmountIn     sdkmath.Int `json:"amount_in"`
		MinAmountOut sdkmath.Int `json:"min_amount_out"`
	}

	statusRequest struct {
		Status types.Lifecycle `json:"status"`
	}

	forceExitRequest struct {
		Account string `json:"account"`
	}

	whitelistRequest struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	}

	configRequest struct {
		Update types.ConfigUpdate `json:"update"`
	}

	managerRequest struct {
		Manager string `json:"manager"`
	}
)

const maxBodyBytes = 1 << 20

// decode reads a JSON body into v, answering 400 itself on failure.
func (ws *WebServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// StatusForError maps an instruction error to an HTTP status by its kind.
func StatusForError(err error) int {
	switch types.KindOf(err) {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindAuthorization:
		return http.StatusForbidden
	case types.KindStatus, types.KindReentrancy:
		return http.StatusConflict
	case types.KindValuation:
		return http.StatusServiceUnavailable
	case types.KindAccounting, types.KindSlippage:
		return http.StatusUnprocessableEntity
	case types.KindVenue:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respond writes result, or err with its kind when the instruction failed.
func (ws *WebServer) respond(w http.ResponseWriter, result interface{}, err error) {
	if err == nil {
		ws.writeJSONResponse(w, http.StatusOK, result)
		return
	}

	kind := types.KindOf(err)
	status := StatusForError(err)
	if errors.Is(err, types.ErrNotInstantiated) {
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		webLogger.Error().Err(err).Str("kind", string(kind)).Msg("Instruction failed")
	}
	ws.writeJSONResponse(w, status, map[string]interface{}{
		"error":     true,
		"kind":      kind,
		"retryable": types.IsRetryable(err),
		"message":   err.Error(),
		"timestamp": time.Now().UTC(),
	})
}

func (ws *WebServer) handleInstantiate(w http.ResponseWriter, r *http.Request) {
	var req instantiateRequest
	if !ws.decode(w, r, &req) {
		return
	}
	info, err := ws.vault.Instantiate(callerFrom(r), req.Config)
	ws.respond(w, info, err)
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if req.Amount.IsNil() {
		req.Amount = sdkmath.ZeroInt()
	}
	res, err := ws.vault.Deposit(callerFrom(r), sdk.Coin{Denom: req.Denom, Amount: req.Amount})
	ws.respond(w, res, err)
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !ws.decode(w, r, &req) {
		return
	}
	res, err := ws.vault.Withdraw(callerFrom(r), req.Shares)
	ws.respond(w, res, err)
}

func (ws *WebServer) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !ws.decode(w, r, &req) {
		return
	}
	res, err := ws.vault.ManagerTrade(callerFrom(r), req.Route, req.AmountIn, req.MinAmountOut)
	ws.respond(w, res, err)
}

func (ws *WebServer) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !ws.decode(w, r, &req) {
		return
	}
	res, err := ws.vault.SetStatus(callerFrom(r), req.Status)
	ws.respond(w, res, err)
}

func (ws *WebServer) handleHalt(w http.ResponseWriter, r *http.Request) {
	res, err := ws.vault.Halt(callerFrom(r))
	ws.respond(w, res, err)
}

func (ws *WebServer) handleResume(w http.ResponseWriter, r *http.Request) {
	res, err := ws.vault.Resume(callerFrom(r))
	ws.respond(w, res, err)
}

func (ws *WebServer) handleUnlock(w http.ResponseWriter, r *http.Request) {
	res, err := ws.vault.Unlock(callerFrom(r))
	ws.respond(w, res, err)
}

func (ws *WebServer) handleForceExit(w http.ResponseWriter, r *http.Request) {
	var req forceExitRequest
	if !ws.decode(w, r, &req) {
		return
	}
	res, err := ws.vault.ForceExit(callerFrom(r), req.Account)
	ws.respond(w, res, err)
}

func (ws *WebServer) handleUpdateWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if !ws.decode(w, r, &req) {
		return
	}
	res, err := ws.vault.UpdateWhitelist(callerFrom(r), req.Add, req.Remove)
	ws.respond(w, map[string]interface{}{"whitelist": res}, err)
}

func (ws *WebServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !ws.decode(w, r, &req) {
		return
	}
	res, err := ws.vault.UpdateConfig(callerFrom(r), req.Update)
	ws.respond(w, res, err)
}

func (ws *WebServer) handleUpdateManager(w http.ResponseWriter, r *http.Request) {
	var req managerRequest
	if !ws.decode(w, r, &req) {
		return
	}
	res, err := ws.vault.UpdateManager(callerFrom(r), req.Manager)
	ws.respond(w, res, err)
}
